package clickhouse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/platformbuilds/chpurge/internal/config"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

func newFakeClickHouse(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	cfg := config.ClickHouseConfig{
		FQDN:      u.Hostname(),
		HTTPPort:  port,
		Protocol:  "http",
		Username:  "default",
		Password:  "secret",
		TimeoutMS: 2000,
	}
	return NewClient(cfg, logger.NewNop())
}

func TestClient_Execute(t *testing.T) {
	var gotStatement, gotMethod string
	var gotUser, gotPass string
	client := newFakeClickHouse(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotStatement = string(body)
		gotMethod = r.Method
		gotUser, gotPass, _ = r.BasicAuth()
		io.WriteString(w, "mutation_id\tis_done\nmutation_1.txt\t0\nmutation_2.txt\t1\n")
	})

	rows, err := client.Execute(context.Background(), "SELECT mutation_id, is_done FROM system.mutations")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotUser != "default" || gotPass != "secret" {
		t.Errorf("basic auth = %s:%s, want default:secret", gotUser, gotPass)
	}
	if !strings.HasSuffix(gotStatement, " FORMAT TSVWithNames") {
		t.Errorf("statement sent without tabular format clause: %q", gotStatement)
	}
	if len(rows) != 2 {
		t.Fatalf("Execute() returned %d rows, want 2", len(rows))
	}
	if rows[0]["mutation_id"] != "mutation_1.txt" || rows[0]["is_done"] != "0" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1]["mutation_id"] != "mutation_2.txt" || rows[1]["is_done"] != "1" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestClient_Execute_EmptyResult(t *testing.T) {
	client := newFakeClickHouse(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "mutation_id\tis_done\n")
	})
	rows, err := client.Execute(context.Background(), "SELECT mutation_id, is_done FROM system.mutations")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Execute() returned %d rows, want 0", len(rows))
	}
}

func TestClient_Execute_StoreError(t *testing.T) {
	client := newFakeClickHouse(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Code: 62. DB::Exception: Syntax error")
	})

	_, err := client.Execute(context.Background(), "SELECT nonsense")
	if err == nil {
		t.Fatal("Execute() error = nil, want StoreError")
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error type = %T, want *StoreError", err)
	}
	if storeErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", storeErr.StatusCode)
	}
	if !strings.Contains(storeErr.Body, "Syntax error") {
		t.Errorf("Body = %q, want store message preserved", storeErr.Body)
	}
}

func TestClient_Execute_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	srv.Close()

	cfg := config.ClickHouseConfig{FQDN: u.Hostname(), HTTPPort: port, TimeoutMS: 500}
	client := NewClient(cfg, logger.NewNop())

	_, err := client.Execute(context.Background(), "SELECT 1")
	if err == nil {
		t.Fatal("Execute() error = nil, want TransportError")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
}

func TestClient_Exec(t *testing.T) {
	var gotStatement string
	client := newFakeClickHouse(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotStatement = string(body)
	})

	stmt := "ALTER TABLE prod.graphite DELETE WHERE Hostname LIKE 'desktop01%'"
	if err := client.Exec(context.Background(), stmt); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if gotStatement != stmt {
		t.Errorf("statement sent = %q, want the bare statement %q", gotStatement, stmt)
	}
}

func TestClient_Exec_StoreError(t *testing.T) {
	client := newFakeClickHouse(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Code: 241. DB::Exception: Memory limit exceeded")
	})

	err := client.Exec(context.Background(), "ALTER TABLE prod.graphite DELETE WHERE 1")
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error type = %T, want *StoreError", err)
	}
	if storeErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", storeErr.StatusCode)
	}
}
