package urlfile

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Options is the open bag of transport settings passed through unmodified
// on every request a Stream makes.
type Options struct {
	// Header entries are added to the request headers.
	Header http.Header

	// Query entries are merged into the request URL's query string.
	Query url.Values

	// Timeout bounds each individual request, including reading its body.
	// Zero means no timeout.
	Timeout time.Duration
}

// Transport issues the HTTP requests a Stream needs: the whole-body GET
// that primes the buffer, the streamed GETs behind iteration, and the
// commit POST. A non-success status is not an error at this layer; the
// caller inspects the response status itself.
//
// Wrap a Transport to add retries, auth or tracing.
type Transport interface {
	// Get issues a GET request to url. The caller owns the response body.
	Get(ctx context.Context, url string, opts Options) (*http.Response, error)

	// Post uploads body to url. A non-negative length is sent as the
	// request Content-Length.
	Post(ctx context.Context, url string, body io.Reader, length int64, opts Options) (*http.Response, error)
}

// NewTransport wraps an *http.Client as a Transport. A nil client selects
// http.DefaultClient.
func NewTransport(client *http.Client) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{client: client}
}

type httpTransport struct {
	client *http.Client
}

func (t *httpTransport) Get(ctx context.Context, rawURL string, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	applyOptions(req, opts)
	return t.do(req, opts.Timeout)
}

func (t *httpTransport) Post(ctx context.Context, rawURL string, body io.Reader, length int64, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}
	if length >= 0 {
		req.ContentLength = length
	}
	applyOptions(req, opts)
	return t.do(req, opts.Timeout)
}

// do runs the request, bounding the whole exchange with timeout when one
// is set. The client copy shares the underlying http.RoundTripper.
func (t *httpTransport) do(req *http.Request, timeout time.Duration) (*http.Response, error) {
	client := t.client
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}
	return client.Do(req)
}

func applyOptions(req *http.Request, opts Options) {
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(opts.Query) > 0 {
		q := req.URL.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
}

// Compile-time interface check.
var _ Transport = (*httpTransport)(nil)
