// Package fetcher provides the outbound HTTP adapter used to load web pages.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes = 10 << 20

	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects = 10
)

// Ensure Client implements the interface.
var _ driven.HTTPFetcher = (*Client)(nil)

// Client is a net/http implementation of driven.HTTPFetcher.
type Client struct {
	secure   *http.Client
	insecure *http.Client
}

// New creates a fetcher. Two transports are kept so InsecureSkipVerify
// can be chosen per request without mutating shared state.
func New() *Client {
	return &Client{
		secure:   newHTTPClient(false),
		insecure: newHTTPClient(true),
	}
}

func newHTTPClient(skipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per request
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

// Get fetches url. Non-2xx responses are returned, not treated as errors.
func (c *Client) Get(ctx context.Context, url string, opts driven.FetchOptions) (*driven.HTTPResponse, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := c.secure
	if opts.InsecureSkipVerify {
		client = c.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &driven.HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}
