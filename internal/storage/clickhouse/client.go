package clickhouse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platformbuilds/chpurge/internal/config"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

// TransportError reports a network-level failure reaching the store:
// connection refused, timeout, TLS failure.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("clickhouse transport error (%s): %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StoreError reports a non-2xx response: the store reached us but rejected
// the statement.
type StoreError struct {
	StatusCode int
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("clickhouse returned status %d: %s", e.StatusCode, e.Body)
}

// Client executes statements against one ClickHouse HTTP endpoint. It does
// no retrying; callers decide retry policy.
type Client struct {
	endpoint string
	username string
	password string
	client   *http.Client
	logger   logger.Logger
}

func NewClient(cfg config.ClickHouseConfig, log logger.Logger) *Client {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "http"
	}
	port := cfg.HTTPPort
	if port == 0 {
		port = 8123
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: fmt.Sprintf("%s://%s:%d", protocol, cfg.FQDN, port),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

// Execute runs a row-returning statement and parses the store's tabular
// response into ordered column-name-to-value rows.
func (c *Client) Execute(ctx context.Context, stmt string) ([]map[string]string, error) {
	start := time.Now()
	resp, err := c.do(ctx, stmt+" FORMAT TSVWithNames")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	rows := parseTSVWithNames(string(body))

	c.logger.Debug("clickhouse statement executed",
		"statement", stmt,
		"rows", len(rows),
		"took", time.Since(start),
	)
	return rows, nil
}

// Exec runs a statement for effect only. The response body is discarded; a
// 2xx status means the store accepted the statement, nothing more.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	start := time.Now()
	resp, err := c.do(ctx, stmt)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Debug("clickhouse statement accepted",
		"statement", stmt,
		"took", time.Since(start),
	)
	return nil
}

func (c *Client) do(ctx context.Context, stmt string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(stmt))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &StoreError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(readBodySnippet(resp.Body)),
		}
	}
	return resp, nil
}

func readBodySnippet(r io.Reader) string {
	const max = 8 << 10 // 8KB
	b, _ := io.ReadAll(io.LimitReader(r, max))
	return string(b)
}
