// Package payload converts arbitrary Go values into seekable streams
// tagged with a MIME content type, ready to be pushed to an object
// store or an HTTP endpoint.
//
// Each constructor pairs a value shape with its natural wire form:
// strings become text/plain, byte slices stay raw, tabular rows become
// CSV, JSON-able values become application/json and everything else
// falls back to gob. FromAny dispatches over all of them.
package payload

import (
	"bytes"
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nuln/urlfile/spool"
)

// Stream is a seekable view of an encoded payload. Close releases any
// backing file a constructor opened itself; streams built over a
// caller-supplied reader leave ownership with the caller.
type Stream struct {
	r           io.ReadSeeker
	contentType string
	size        int64
	value       any
	closer      io.Closer
}

var (
	_ io.ReadSeeker = (*Stream)(nil)
	_ io.Closer     = (*Stream)(nil)
)

func (s *Stream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return s.r.Seek(offset, whence)
}

// ContentType reports the MIME type of the encoded bytes.
func (s *Stream) ContentType() string { return s.contentType }

// Len reports the encoded size in bytes.
func (s *Stream) Len() int64 { return s.size }

// Value returns the value the stream was built from.
func (s *Stream) Value() any { return s.value }

func (s *Stream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// FromString wraps s as a text/plain stream.
func FromString(s string) *Stream {
	return &Stream{
		r:           strings.NewReader(s),
		contentType: "text/plain; charset=utf-8",
		size:        int64(len(s)),
		value:       s,
	}
}

// FromBytes wraps b as-is. An empty contentType defaults to
// application/octet-stream.
func FromBytes(b []byte, contentType string) *Stream {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Stream{
		r:           bytes.NewReader(b),
		contentType: contentType,
		size:        int64(len(b)),
		value:       b,
	}
}

// FromJSON marshals v as application/json.
func FromJSON(v any) (*Stream, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("urlfile/payload: encode json: %w", err)
	}
	return &Stream{
		r:           bytes.NewReader(b),
		contentType: "application/json",
		size:        int64(len(b)),
		value:       v,
	}, nil
}

// FromTable encodes rows as text/csv.
func FromTable(rows [][]string) (*Stream, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("urlfile/payload: encode csv: %w", err)
	}
	b := buf.Bytes()
	return &Stream{
		r:           bytes.NewReader(b),
		contentType: "text/csv",
		size:        int64(len(b)),
		value:       rows,
	}, nil
}

// FromFile opens path for reading. When contentType is empty the type
// is sniffed from the file's leading bytes. The returned stream owns
// the file handle; Close releases it.
func FromFile(path, contentType string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("urlfile/payload: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("urlfile/payload: stat %s: %w", path, err)
	}
	if contentType == "" {
		mt, err := mimetype.DetectReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("urlfile/payload: sniff %s: %w", path, err)
		}
		contentType = mt.String()
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("urlfile/payload: rewind %s: %w", path, err)
		}
	}
	return &Stream{
		r:           f,
		contentType: contentType,
		size:        fi.Size(),
		value:       path,
		closer:      f,
	}, nil
}

// FromReader turns r into a seekable stream. Readers that already seek
// are used in place; anything else is drained into a spool buffer. An
// empty contentType defaults to application/octet-stream.
func FromReader(r io.Reader, contentType string) (*Stream, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, fmt.Errorf("urlfile/payload: size reader: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("urlfile/payload: rewind reader: %w", err)
		}
		return &Stream{r: rs, contentType: contentType, size: size, value: r}, nil
	}

	f := spool.New()
	size, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("urlfile/payload: drain reader: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("urlfile/payload: rewind spool: %w", err)
	}
	return &Stream{r: f, contentType: contentType, size: size, value: r, closer: f}, nil
}

// FromAny negotiates a stream for v: *Stream values pass through,
// strings, byte slices, row tables and readers use their dedicated
// constructors, and any other value is tried as JSON first, then gob.
// A non-empty contentType overrides whatever the constructor picked.
func FromAny(v any, contentType string) (*Stream, error) {
	st, err := fromAny(v, contentType)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		st.contentType = contentType
	}
	return st, nil
}

func fromAny(v any, contentType string) (*Stream, error) {
	switch x := v.(type) {
	case *Stream:
		return x, nil
	case string:
		return FromString(x), nil
	case []byte:
		return FromBytes(x, contentType), nil
	case [][]string:
		return FromTable(x)
	case io.Reader:
		return FromReader(x, contentType)
	}
	if st, err := FromJSON(v); err == nil {
		return st, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("urlfile/payload: cannot encode %T: %w", v, err)
	}
	b := buf.Bytes()
	return &Stream{
		r:           bytes.NewReader(b),
		contentType: "application/octet-stream",
		size:        int64(len(b)),
		value:       v,
	}, nil
}
