package poller

import (
	"context"
	"net/http"
	"time"
)

// connection pooling limits; the watcher talks to a single host, so the
// pool is kept small
const (
	defaultMaxIdleConns    = 2
	defaultIdleConnTimeout = 60 * time.Second
)

// ProbeResult holds the outcome of one header-only probe.
//
// Probes never read a response body; the only facts that matter are the
// status code and the change-token header.
type ProbeResult struct {
	// StatusCode is the HTTP status code. Zero if the request failed before
	// a response was received.
	StatusCode int

	// ETag is the raw value of the ETag header, still quoted. Empty when the
	// header is absent.
	ETag string

	// Latency is the total time taken by the probe.
	Latency time.Duration

	// Err contains any transport-level error. nil means a response was
	// received (the status may still be an error status).
	Err error
}

// Client issues header-only probes against the watched URL.
//
// Timeouts are applied per request via context rather than on the underlying
// http.Client, following the same discipline as the rest of the module's
// HTTP handling.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a probe [Client] with conservative connection pooling.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no global timeout - per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:    defaultMaxIdleConns,
				IdleConnTimeout: defaultIdleConnTimeout,
			},
		},
	}
}

// Probe issues a HEAD request and returns a structured [ProbeResult].
//
// Errors are captured in the result rather than returned separately, which
// keeps the cycle logic a single classification pass.
func (c *Client) Probe(ctx context.Context, url string, timeout time.Duration) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{Latency: time.Since(start), Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeResult{Latency: time.Since(start), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	return ProbeResult{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		Latency:    time.Since(start),
	}
}

// Close releases idle connections. Safe to call multiple times.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
