package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/platformbuilds/chpurge/internal/models"
)

func TestBuildDelete(t *testing.T) {
	stmt, err := BuildDelete("prod", "graphite", "Hostname", []string{"desktop01", "desktop02"})
	if err != nil {
		t.Fatalf("BuildDelete() error = %v", err)
	}
	wantSQL := "ALTER TABLE prod.graphite DELETE WHERE" +
		" Hostname LIKE 'desktop01%' OR Hostname LIKE 'desktop02%'"
	if stmt.SQL != wantSQL {
		t.Errorf("SQL = %q, want %q", stmt.SQL, wantSQL)
	}
	if stmt.Database != "prod" || stmt.Table != "graphite" {
		t.Errorf("statement scoped to %s.%s, want prod.graphite", stmt.Database, stmt.Table)
	}
	wantPredicate := `Hostname starting with "desktop01" or "desktop02"`
	if stmt.Predicate != wantPredicate {
		t.Errorf("Predicate = %q, want %q", stmt.Predicate, wantPredicate)
	}
}

func TestBuildDelete_OneClausePerPrefix(t *testing.T) {
	for n := 1; n <= 5; n++ {
		prefixes := make([]string, 0, n)
		for i := 0; i < n; i++ {
			prefixes = append(prefixes, fmt.Sprintf("host%02d", i))
		}
		stmt, err := BuildDelete("prod", "graphite", "Hostname", prefixes)
		if err != nil {
			t.Fatalf("BuildDelete() with %d prefixes: %v", n, err)
		}
		if got := strings.Count(stmt.SQL, " LIKE "); got != n {
			t.Errorf("%d prefixes produced %d LIKE clauses, want %d: %s", n, got, n, stmt.SQL)
		}
		if got := strings.Count(stmt.SQL, " OR "); got != n-1 {
			t.Errorf("%d prefixes produced %d OR joins, want %d: %s", n, got, n-1, stmt.SQL)
		}
	}
}

func TestBuildDelete_PrefixEscaping(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		clause string
	}{
		{"single quote", "it's", `Hostname LIKE 'it\'s%'`},
		{"percent", "50%off", `Hostname LIKE '50\%off%'`},
		{"underscore", "a_b", `Hostname LIKE 'a\_b%'`},
		{"backslash", `back\slash`, `Hostname LIKE 'back\\\\slash%'`},
		{"trailing backslash", `x\`, `Hostname LIKE 'x\\\\%'`},
		{"backslash then percent", `a\%`, `Hostname LIKE 'a\\\\\%%'`},
		{"all together", `x'_%\`, `Hostname LIKE 'x\'\_\%\\\\%'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := BuildDelete("prod", "graphite", "Hostname", []string{tt.prefix})
			if err != nil {
				t.Fatalf("BuildDelete() error = %v", err)
			}
			if !strings.HasSuffix(stmt.SQL, tt.clause) {
				t.Errorf("SQL = %q, want clause %q", stmt.SQL, tt.clause)
			}
		})
	}
}

// decodeQuotedLiteral reverses the store's reading of a single-quoted
// string: backslash pairs collapse into one, escaped quotes unquote, and a
// backslash before anything else survives untouched.
func decodeQuotedLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i+1])
			}
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// likeMatch interprets a decoded LIKE pattern against a value: a backslash
// escapes %, _ and itself, bare % matches any run, bare _ one character, and
// a backslash before any other character is itself literal.
func likeMatch(t *testing.T, pattern, value string) bool {
	t.Helper()
	var re strings.Builder
	re.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			if next == '%' || next == '_' || next == '\\' {
				re.WriteString(regexp.QuoteMeta(string(next)))
				i++
				continue
			}
			re.WriteString(regexp.QuoteMeta(`\`))
			continue
		}
		switch ch {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	re.WriteString("$")
	matched, err := regexp.MatchString(re.String(), value)
	if err != nil {
		t.Fatalf("pattern %q compiled to bad regexp %q: %v", pattern, re.String(), err)
	}
	return matched
}

// The encodings above only pin bytes; this reads each emitted clause back
// the way the store does and checks it selects exactly the rows starting
// with the prefix. Backslash-heavy prefixes are the cases that used to
// over- or under-delete.
func TestBuildDelete_ClauseMatchesPrefixedRows(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		deleted []string
		kept    []string
	}{
		{"plain", "desktop01", []string{"desktop01", "desktop01.lan"}, []string{"desktop02"}},
		{"percent", "50%off", []string{"50%off", "50%off-sale"}, []string{"50off", "5000off"}},
		{"underscore", "a_b", []string{"a_b", "a_bc"}, []string{"aXb"}},
		{"trailing backslash", `x\`, []string{`x\`, `x\data2026`}, []string{"x%", "xdata"}},
		{"backslash then percent", `a\%`, []string{`a\%`, `a\%full`}, []string{`a\backup01`, "a%"}},
		{"double backslash", `a\\b`, []string{`a\\b`, `a\\b7`}, []string{`a\b`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := BuildDelete("prod", "graphite", "Hostname", []string{tt.prefix})
			if err != nil {
				t.Fatalf("BuildDelete() error = %v", err)
			}
			start := strings.Index(stmt.SQL, "'")
			end := strings.LastIndex(stmt.SQL, "'")
			if start < 0 || end <= start {
				t.Fatalf("no quoted pattern in %q", stmt.SQL)
			}
			pattern := decodeQuotedLiteral(stmt.SQL[start+1 : end])
			for _, value := range tt.deleted {
				if !likeMatch(t, pattern, value) {
					t.Errorf("prefix %q: value %q starts with it but the clause leaves it alone (pattern %q)", tt.prefix, value, pattern)
				}
			}
			for _, value := range tt.kept {
				if likeMatch(t, pattern, value) {
					t.Errorf("prefix %q: value %q does not start with it but the clause would delete it (pattern %q)", tt.prefix, value, pattern)
				}
			}
		})
	}
}

func TestBuildDelete_InvalidInputs(t *testing.T) {
	tests := []struct {
		name     string
		database string
		table    string
		key      string
		prefixes []string
	}{
		{"bad database", "pr od", "graphite", "Hostname", []string{"a"}},
		{"bad table", "prod", "graphite; DROP", "Hostname", []string{"a"}},
		{"bad key", "prod", "graphite", "Host-name", []string{"a"}},
		{"no prefixes", "prod", "graphite", "Hostname", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildDelete(tt.database, tt.table, tt.key, tt.prefixes)
			if err == nil {
				t.Fatal("BuildDelete() error = nil, want InvalidRequestError")
			}
			var invalid *models.InvalidRequestError
			if !errors.As(err, &invalid) {
				t.Errorf("error type = %T, want *models.InvalidRequestError", err)
			}
		})
	}
}

func TestBuildStatusLookup(t *testing.T) {
	sql, err := BuildStatusLookup("prod", "graphite")
	if err != nil {
		t.Fatalf("BuildStatusLookup() error = %v", err)
	}
	want := "SELECT mutation_id, create_time, is_done, parts_to_do, latest_fail_reason" +
		" FROM system.mutations WHERE database = 'prod' AND table = 'graphite'" +
		" ORDER BY create_time ASC"
	if sql != want {
		t.Errorf("BuildStatusLookup() = %q, want %q", sql, want)
	}
}

func TestBuildStatusLookup_InvalidTable(t *testing.T) {
	_, err := BuildStatusLookup("prod", "system.mutations")
	if err == nil {
		t.Fatal("BuildStatusLookup() error = nil, want InvalidRequestError")
	}
	var invalid *models.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Errorf("error type = %T, want *models.InvalidRequestError", err)
	}
}

func TestBuildPreview(t *testing.T) {
	sql, err := BuildPreview("prod", "graphite", "Hostname", []string{"desktop01"}, 20)
	if err != nil {
		t.Fatalf("BuildPreview() error = %v", err)
	}
	want := "SELECT DISTINCT Hostname FROM prod.graphite" +
		" WHERE Hostname LIKE 'desktop01%' ORDER BY Hostname LIMIT 20"
	if sql != want {
		t.Errorf("BuildPreview() = %q, want %q", sql, want)
	}
}

func TestBuildPreview_BadLimit(t *testing.T) {
	if _, err := BuildPreview("prod", "graphite", "Hostname", []string{"a"}, 0); err == nil {
		t.Fatal("BuildPreview() with limit 0: error = nil, want InvalidRequestError")
	}
}

func TestBuildPreviewCount(t *testing.T) {
	sql, err := BuildPreviewCount("prod", "graphite", "Hostname", []string{"desktop01", "desktop02"})
	if err != nil {
		t.Fatalf("BuildPreviewCount() error = %v", err)
	}
	want := "SELECT count(DISTINCT Hostname) AS matches FROM prod.graphite" +
		" WHERE Hostname LIKE 'desktop01%' OR Hostname LIKE 'desktop02%'"
	if sql != want {
		t.Errorf("BuildPreviewCount() = %q, want %q", sql, want)
	}
}
