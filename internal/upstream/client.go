// Package upstream owns the pooled HTTP client used for every request the
// proxy forwards. Construction and teardown happen in main; handlers only
// borrow it.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one full request/response exchange, body included.
// Generous because LLM completions routinely run for minutes.
const DefaultTimeout = 300 * time.Second

// Client is a thin wrapper around one pooled *http.Client aimed at a fixed
// base URL. Safe for concurrent use; the pool is shared by all in-flight
// proxy requests.
type Client struct {
	base *url.URL
	http *http.Client
}

// New validates the base URL and builds the client. A zero timeout falls
// back to DefaultTimeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("upstream: base URL required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q", base.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// BaseURL returns the configured upstream base.
func (c *Client) BaseURL() string { return c.base.String() }

// Do forwards one request. path keeps its leading slash; rawQuery is relayed
// as-is. The caller owns the response body.
func (c *Client) Do(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// Close releases pooled connections. Call once on shutdown.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
