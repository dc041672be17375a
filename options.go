package urlfile

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultChunkSize is the chunk size used by Chunks when none is
// configured.
const DefaultChunkSize = 4096

// DefaultMaxLineBytes is the longest single line Lines yields when no
// explicit cap is configured.
const DefaultMaxLineBytes = 1 << 20 // 1 MiB

// DefaultEncoding is the charset assumed when neither the caller nor the
// response declares one.
const DefaultEncoding = "utf-8"

type options struct {
	threshold    int64
	encoding     string
	chunkSize    int
	maxLineBytes int
	delimiter    []byte
	transport    Transport
	transOpts    Options
	spoolFs      afero.Fs
	spoolDir     string
	logger       zerolog.Logger
}

func defaultOptions() options {
	return options{
		chunkSize:    DefaultChunkSize,
		maxLineBytes: DefaultMaxLineBytes,
		transport:    NewTransport(nil),
		logger:       zerolog.Nop(),
	}
}

// Option configures a Stream at Open.
type Option func(*options)

// WithMemThreshold sets how many bytes the buffer holds in memory before
// spilling to disk. Zero selects spool.DefaultMemThreshold; a negative
// value keeps the buffer in memory regardless of size.
func WithMemThreshold(n int64) Option {
	return func(o *options) { o.threshold = n }
}

// WithEncoding declares the charset of the remote content by IANA name
// ("utf-8", "iso-8859-1", ...), overriding whatever the response
// Content-Type announces. Text modes only.
func WithEncoding(name string) Option {
	return func(o *options) { o.encoding = name }
}

// WithChunkSize sets the chunk size for binary iteration.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithDelimiter sets the line delimiter for text iteration. By default
// lines split on universal newlines.
func WithDelimiter(d string) Option {
	return func(o *options) { o.delimiter = []byte(d) }
}

// WithMaxLineBytes caps the length of a single line yielded by Lines.
// A longer line ends the iteration with an error wrapping
// bufio.ErrTooLong. Zero or negative keeps DefaultMaxLineBytes.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineBytes = n
		}
	}
}

// WithTransport replaces the Transport used for all requests.
func WithTransport(t Transport) Option {
	return func(o *options) {
		if t != nil {
			o.transport = t
		}
	}
}

// WithHTTPClient is shorthand for WithTransport(NewTransport(client)).
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.transport = NewTransport(client) }
}

// WithTransportOptions sets the headers, query values and per-request
// timeout passed through on every request.
func WithTransportOptions(opts Options) Option {
	return func(o *options) { o.transOpts = opts }
}

// WithSpoolFs sets the filesystem the buffer spills to. Defaults to the
// OS filesystem.
func WithSpoolFs(fs afero.Fs) Option {
	return func(o *options) { o.spoolFs = fs }
}

// WithSpoolDir sets the directory the spill file is created in.
func WithSpoolDir(dir string) Option {
	return func(o *options) { o.spoolDir = dir }
}

// WithLogger sets the logger for debug events. Logging is disabled by
// default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
