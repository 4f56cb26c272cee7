package logger

import "testing"

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := New(level)
		if l == nil {
			t.Fatalf("New(%q) returned nil", level)
		}
		l.Debug("debug line", "level", level)
		l.Info("info line", "level", level)
		l.Warn("warn line", "level", level)
		l.Error("error line", "level", level)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	if l == nil {
		t.Fatal("NewNop returned nil")
	}
	l.Info("discarded")
	l.Error("discarded", "key", "value")
}
