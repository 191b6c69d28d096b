package producer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when probing many monitors
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Probe is the outcome of one HTTP check made by [Client].
type Probe struct {
	// StatusCode is zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error is set when the request could not complete. A non-2xx status
	// is not an error.
	Error error
}

// Client is an HTTP client wrapper for health probes.
//
// Timeouts are applied per request via context, so monitors can carry
// different timeouts. Bodies are drained up to 1MB so connections are reused.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a probing [Client] with bounded connection pooling.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Check probes m once and returns a [Probe]. Errors are reported in the
// Probe rather than returned separately.
func (c *Client) Check(ctx context.Context, m Monitor) Probe {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	start := time.Now()

	method := m.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, m.URL, nil)
	if err != nil {
		return Probe{Latency: time.Since(start), Error: fmt.Errorf("failed to create request: %w", err)}
	}
	for key, value := range m.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Probe{Latency: time.Since(start), Error: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize)); err != nil {
		return Probe{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Probe{StatusCode: resp.StatusCode, Latency: time.Since(start)}
}

// Close closes idle pooled connections. Safe to call multiple times and on
// a nil receiver; the client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
