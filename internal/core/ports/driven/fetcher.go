package driven

import (
	"context"
	"time"
)

// HTTPFetcher issues outbound GET requests.
type HTTPFetcher interface {
	// Get fetches url with the given headers.
	// A non-2xx status is returned in the response, not as an error.
	Get(ctx context.Context, url string, opts FetchOptions) (*HTTPResponse, error)
}

// FetchOptions configures a request.
type FetchOptions struct {
	Headers            map[string]string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// HTTPResponse is a fully-read response.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}
