package urlfile

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/nuln/urlfile/maybe"
	"github.com/nuln/urlfile/spool"
)

// Stream is a file-like handle over a remote HTTP resource, bound to one
// URL and one Mode for its lifetime. Reads and writes operate on a local
// buffer: read modes prime it with an at-most-once whole-body GET on first
// use, write and append modes commit it back as a single POST when the
// Stream is closed. The buffer spills from memory to disk past a
// configurable threshold without changing behavior.
//
// A Stream is not safe for concurrent use. It owns one buffer and one
// fetch state; use one Stream per logical operation.
type Stream struct {
	url  string
	mode Mode
	opts options

	ctx      context.Context // bound at Open for fetch and upload requests
	buf      *spool.File
	fetched  bool
	encoding string // charset declared by the caller or discovered from the response
	closed   bool
	log      zerolog.Logger
}

// Open binds a Stream to url in the given mode.
//
// Read modes defer the network fetch until the first Read. Write modes
// start from an empty buffer and never fetch. Append modes fetch eagerly
// so that writes extend the current remote content; a fetch failure
// surfaces from Open itself.
//
// ctx is retained and bounds every request the Stream makes, including
// the commit POST issued by Close.
func Open(ctx context.Context, url string, mode Mode, opts ...Option) (*Stream, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: Mode(%d)", ErrInvalidMode, int(mode))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Stream{
		url:      url,
		mode:     mode,
		opts:     o,
		ctx:      ctx,
		buf:      newSpool(o),
		encoding: o.encoding,
		log:      o.logger,
	}
	switch {
	case mode.Appends():
		if err := s.ensureFetched(); err != nil {
			_ = s.buf.Close()
			return nil, err
		}
		if _, err := s.buf.Seek(0, io.SeekEnd); err != nil {
			_ = s.buf.Close()
			return nil, err
		}
	case mode.Writable():
		// Write mode never reads the remote side, so no later Read may
		// trigger a fetch mid-write.
		s.fetched = true
	}
	return s, nil
}

// TryOpen is Open with the outcome wrapped in a maybe.Maybe instead of
// returned as a (value, error) pair.
func TryOpen(ctx context.Context, url string, mode Mode, opts ...Option) maybe.Maybe[*Stream] {
	return maybe.Wrap(Open(ctx, url, mode, opts...))
}

// URL returns the Stream's bound URL.
func (s *Stream) URL() string { return s.url }

// Mode returns the Stream's bound mode.
func (s *Stream) Mode() Mode { return s.mode }

// Encoding returns the charset of the remote content: the one declared
// via WithEncoding, or the one discovered from the response Content-Type
// on fetch. Empty until either happens.
func (s *Stream) Encoding() string { return s.encoding }

// Read reads from the buffered content, fetching the remote body first if
// this Stream has not fetched yet. Text modes read UTF-8 regardless of the
// remote charset.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.ensureFetched(); err != nil {
		return 0, err
	}
	return s.buf.Read(p)
}

// Write writes to the buffered content. Nothing reaches the network until
// Close commits the upload. Read modes return ErrNotWritable.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.mode.Writable() {
		return 0, ErrNotWritable
	}
	return s.buf.Write(p)
}

// WriteString is Write for a string.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Seek moves the buffer cursor. Seeking does not trigger a fetch.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.buf.Seek(offset, whence)
}

// Tell returns the buffer cursor position, or 0 once the Stream is
// closed.
func (s *Stream) Tell() int64 {
	if s.closed {
		return 0
	}
	return s.buf.Tell()
}

// Len returns the size of the buffered content in bytes, or 0 once the
// Stream is closed.
func (s *Stream) Len() int64 {
	if s.closed {
		return 0
	}
	return s.buf.Len()
}

// IsEmpty reports whether the buffered content is empty. The cursor is
// left where it was. A closed Stream is empty.
func (s *Stream) IsEmpty() bool {
	return s.closed || s.buf.IsEmpty()
}

// Flush syncs the buffer's spill file when it has spilled to disk.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	return s.buf.Flush()
}

// Close ends the session. Write- and append-mode Streams first commit the
// buffered content to the URL as a single POST; the buffer and any spill
// file are then released whether or not that upload succeeded. Read-mode
// Streams release the buffer and make no network call.
//
// Closing an already-closed Stream returns ErrClosed.
func (s *Stream) Close() error {
	if s.closed {
		return ErrClosed
	}
	var uploadErr error
	if s.mode.Writable() {
		uploadErr = s.upload()
	}
	if err := s.release(); err != nil && uploadErr == nil {
		uploadErr = err
	}
	return uploadErr
}

// Discard ends the session without committing: the buffer and any spill
// file are released and nothing is uploaded. After a successful Close or
// a prior Discard it is a no-op, so deferring it alongside a final Close
// is safe:
//
//	s, err := urlfile.Open(ctx, url, urlfile.WriteBinary)
//	if err != nil {
//		return err
//	}
//	defer s.Discard()
//	// ... writes ...
//	return s.Close()
func (s *Stream) Discard() error {
	if s.closed {
		return nil
	}
	return s.release()
}

func (s *Stream) release() error {
	s.closed = true
	return s.buf.Close()
}

// ensureFetched primes the buffer with the remote body. The GET runs at
// most once per Stream: once fetched, later calls are no-ops. A failed
// fetch leaves the buffer untouched and the state unfetched, so a later
// Read re-attempts the request.
func (s *Stream) ensureFetched() error {
	if s.fetched {
		return nil
	}
	start := time.Now()
	resp, err := s.opts.transport.Get(s.ctx, s.url, s.opts.transOpts)
	if err != nil {
		return fmt.Errorf("urlfile: fetch %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !successful(resp.StatusCode) {
		return newFetchError(s.url, resp)
	}

	body := io.Reader(resp.Body)
	name := s.encoding
	if name == "" {
		name = responseCharset(resp)
	}
	if s.mode.Text() {
		if name == "" {
			name = DefaultEncoding
		}
		enc, canonical, err := lookupCharset(name)
		if err != nil {
			return err
		}
		if canonical != "utf-8" {
			body = transform.NewReader(resp.Body, enc.NewDecoder())
		}
	}

	fresh := newSpool(s.opts)
	n, err := io.Copy(fresh, body)
	if err != nil {
		_ = fresh.Close()
		return fmt.Errorf("urlfile: fetch %s: %w", s.url, err)
	}
	if _, err := fresh.Seek(0, io.SeekStart); err != nil {
		_ = fresh.Close()
		return err
	}

	_ = s.buf.Close()
	s.buf = fresh
	s.encoding = name
	s.fetched = true
	s.log.Debug().
		Str("url", s.url).
		Int("status", resp.StatusCode).
		Int64("bytes", n).
		Dur("took", time.Since(start)).
		Msg("fetched")
	return nil
}

// upload streams the buffer's full content, from offset zero, to the URL
// as one POST. Text modes re-encode from UTF-8 to the declared or
// discovered charset first.
func (s *Stream) upload() error {
	if _, err := s.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}
	body, length := io.Reader(s.buf), s.buf.Len()

	if s.mode.Text() {
		name := s.encoding
		if name == "" {
			name = DefaultEncoding
		}
		enc, canonical, err := lookupCharset(name)
		if err != nil {
			return err
		}
		if canonical != "utf-8" {
			encoded := newSpool(s.opts)
			defer func() { _ = encoded.Close() }()
			if _, err := io.Copy(encoded, transform.NewReader(s.buf, enc.NewEncoder())); err != nil {
				return fmt.Errorf("urlfile: upload %s: %w", s.url, err)
			}
			if _, err := encoded.Seek(0, io.SeekStart); err != nil {
				return err
			}
			body, length = encoded, encoded.Len()
		}
	}

	start := time.Now()
	// net/http closes a request body that implements io.ReadCloser.
	// release owns the buffer, so the transport gets a non-closing view.
	resp, err := s.opts.transport.Post(s.ctx, s.url, io.NopCloser(body), length, s.opts.transOpts)
	if err != nil {
		return fmt.Errorf("urlfile: upload %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !successful(resp.StatusCode) {
		return newUploadError(s.url, resp)
	}
	s.log.Debug().
		Str("url", s.url).
		Int("status", resp.StatusCode).
		Int64("bytes", length).
		Dur("took", time.Since(start)).
		Msg("uploaded")
	return nil
}

func newSpool(o options) *spool.File {
	sopts := []spool.Option{
		spool.WithThreshold(o.threshold),
		spool.WithLogger(o.logger),
	}
	if o.spoolFs != nil {
		sopts = append(sopts, spool.WithFs(o.spoolFs))
	}
	if o.spoolDir != "" {
		sopts = append(sopts, spool.WithTempDir(o.spoolDir))
	}
	return spool.New(sopts...)
}

// responseCharset extracts the charset parameter from a response
// Content-Type header, or "" when absent or unparsable.
func responseCharset(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// lookupCharset resolves an IANA charset label to its encoding and
// canonical name.
func lookupCharset(name string) (encoding.Encoding, string, error) {
	enc, canonical := charset.Lookup(name)
	if enc == nil {
		return nil, "", fmt.Errorf("urlfile: unsupported charset %q", name)
	}
	return enc, canonical, nil
}

// Compile-time interface checks.
var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.Closer          = (*Stream)(nil)
	_ io.StringWriter    = (*Stream)(nil)
)
