package urlfile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"

	"golang.org/x/text/transform"
)

// Chunks returns an iterator over successive fixed-size chunks of the
// remote body. Every range statement issues its own streamed GET from the
// beginning: iteration reads the wire directly, so it neither consumes
// nor populates the buffered content, and the buffered and iterated views
// of a changing resource may diverge.
//
// The final chunk may be shorter than the configured chunk size. The
// yielded slice is reused between iterations; copy it to retain it.
// Chunks is only valid on binary-mode Streams; text modes yield
// ErrTextMode.
func (s *Stream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.closed {
			yield(nil, ErrClosed)
			return
		}
		if !s.mode.Binary() {
			yield(nil, ErrTextMode)
			return
		}
		resp, err := s.openStream(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		chunk := make([]byte, s.opts.chunkSize)
		for {
			n, err := io.ReadFull(resp.Body, chunk)
			if n > 0 {
				if !yield(chunk[:n], nil) {
					return
				}
			}
			switch err {
			case nil:
			case io.EOF, io.ErrUnexpectedEOF:
				return
			default:
				yield(nil, fmt.Errorf("urlfile: fetch %s: %w", s.url, err))
				return
			}
		}
	}
}

// Lines returns an iterator over lines of the remote body, decoded to
// UTF-8 using the declared or discovered charset. Like Chunks, every
// range statement issues its own streamed GET and leaves the buffered
// content alone.
//
// Without WithDelimiter, lines split on universal newlines ("\n", "\r\n"
// or a bare "\r"); with it, on exactly the configured delimiter. The
// delimiter is stripped from the yielded lines. A trailing newline ends
// the last line without starting another, while content that ends with
// a custom delimiter yields a final empty line, as a plain split would.
//
// A single line is held in memory and capped at DefaultMaxLineBytes
// unless WithMaxLineBytes raises it; a longer line ends the iteration
// with an error wrapping bufio.ErrTooLong. Lines is only valid on
// text-mode Streams; binary modes yield ErrBinaryMode.
func (s *Stream) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.closed {
			yield("", ErrClosed)
			return
		}
		if !s.mode.Text() {
			yield("", ErrBinaryMode)
			return
		}
		resp, err := s.openStream(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		name := s.encoding
		if name == "" {
			name = responseCharset(resp)
		}
		if name == "" {
			name = DefaultEncoding
		}
		enc, canonical, err := lookupCharset(name)
		if err != nil {
			yield("", err)
			return
		}
		body := io.Reader(resp.Body)
		if canonical != "utf-8" {
			body = transform.NewReader(resp.Body, enc.NewDecoder())
		}

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, s.opts.chunkSize), s.opts.maxLineBytes)
		if len(s.opts.delimiter) > 0 {
			sc.Split(splitOn(s.opts.delimiter))
		} else {
			sc.Split(scanNewlines)
		}
		for sc.Scan() {
			if !yield(sc.Text(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("urlfile: fetch %s: %w", s.url, err))
		}
	}
}

// openStream issues the independent GET behind one iteration pass.
func (s *Stream) openStream(ctx context.Context) (*http.Response, error) {
	resp, err := s.opts.transport.Get(ctx, s.url, s.opts.transOpts)
	if err != nil {
		return nil, fmt.Errorf("urlfile: fetch %s: %w", s.url, err)
	}
	if !successful(resp.StatusCode) {
		ferr := newFetchError(s.url, resp)
		_ = resp.Body.Close()
		return nil, ferr
	}
	s.log.Debug().Str("url", s.url).Int("status", resp.StatusCode).Msg("streaming")
	return resp, nil
}

// scanNewlines is a bufio.SplitFunc splitting on "\n", "\r\n" or a bare
// "\r", dropping the line ending.
func scanNewlines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// A "\r" at the very end of the window could still be half of a
		// "\r\n"; wait for the next byte unless this is all there is.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// splitOn returns a bufio.SplitFunc splitting on an exact delimiter,
// with plain split semantics: content that ends with the delimiter
// yields one final empty token.
func splitOn(delim []byte) bufio.SplitFunc {
	terminated := false
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			if terminated {
				terminated = false
				return 0, []byte{}, nil
			}
			return 0, nil, nil
		}
		if i := bytes.Index(data, delim); i >= 0 {
			terminated = true
			return i + len(delim), data[:i], nil
		}
		if atEOF {
			terminated = false
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
