package urlfile

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Usage errors reported by Stream operations.
var (
	// ErrClosed is returned by operations on a closed Stream.
	ErrClosed = errors.New("urlfile: stream already closed")

	// ErrNotWritable is returned by Write on a read-mode Stream.
	ErrNotWritable = errors.New("urlfile: stream not opened for writing")

	// ErrTextMode is yielded by Chunks on a text-mode Stream.
	ErrTextMode = errors.New("urlfile: text mode, use Lines")

	// ErrBinaryMode is yielded by Lines on a binary-mode Stream.
	ErrBinaryMode = errors.New("urlfile: binary mode, use Chunks")

	// ErrInvalidMode is returned for unusable Mode values and by ParseMode
	// for unrecognized mode strings.
	ErrInvalidMode = errors.New("urlfile: invalid mode")
)

// maxErrBody bounds how much of an error response body is retained on a
// FetchError or UploadError.
const maxErrBody = 2 << 10

// FetchError reports a non-success HTTP status from a GET, either the
// whole-body fetch that primes the buffer or a streamed iteration fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte // response body, truncated to maxErrBody
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("urlfile: fetch %s: %s", e.URL, e.Status)
}

// UploadError reports a non-success HTTP status from the commit POST
// issued when a write- or append-mode Stream is closed.
type UploadError struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte // response body, truncated to maxErrBody
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("urlfile: upload %s: %s", e.URL, e.Status)
}

func newFetchError(url string, resp *http.Response) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       readErrBody(resp.Body),
	}
}

func newUploadError(url string, resp *http.Response) *UploadError {
	return &UploadError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       readErrBody(resp.Body),
	}
}

func readErrBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrBody))
	return b
}

// successful reports whether an HTTP status code is in the 2xx range.
func successful(code int) bool {
	return code >= 200 && code < 300
}
