// Package spool implements a byte store with file semantics that lives in
// memory until its content grows past a threshold, then transparently
// spills to a temp file. Read, write and seek behave identically on either
// side of the spill.
package spool

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultMemThreshold is the in-memory capacity used when no explicit
// threshold is configured.
const DefaultMemThreshold = 16 << 20 // 16 MiB

// ErrClosed is returned by operations on a closed File.
var ErrClosed = errors.New("urlfile/spool: file already closed")

// File is a seekable byte store. Content starts in memory and moves to a
// temp file once it exceeds the configured threshold; the move is not
// observable through the File's behavior.
//
// A File is not safe for concurrent use.
type File struct {
	threshold int64
	fs        afero.Fs
	dir       string
	log       zerolog.Logger

	buf    []byte     // memory stage; nil once spilled
	file   afero.File // disk stage; nil until spilled
	pos    int64
	size   int64 // tracked for the disk stage; the memory stage uses len(buf)
	closed bool
}

// Option configures a File.
type Option func(*File)

// WithThreshold sets the in-memory capacity in bytes. Content spills to
// disk once it exceeds the threshold. Zero selects DefaultMemThreshold;
// a negative value disables spilling so content stays in memory regardless
// of size.
func WithThreshold(n int64) Option {
	return func(f *File) { f.threshold = n }
}

// WithFs sets the filesystem the spill file is created on. Defaults to
// the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(f *File) { f.fs = fs }
}

// WithTempDir sets the directory the spill file is created in. Defaults
// to the filesystem's temp directory.
func WithTempDir(dir string) Option {
	return func(f *File) { f.dir = dir }
}

// WithLogger sets the logger for debug events. Logging is disabled by
// default.
func WithLogger(l zerolog.Logger) Option {
	return func(f *File) { f.log = l }
}

// New creates an empty File.
func New(opts ...Option) *File {
	f := &File{
		fs:  afero.NewOsFs(),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.threshold == 0 {
		f.threshold = DefaultMemThreshold
	}
	return f
}

// Write writes p at the cursor, extending the content as needed. Writing
// past the end of content zero-fills the gap, like a write into a file
// hole.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := f.pos + int64(len(p))
	if f.file == nil && f.threshold > 0 && end > f.threshold {
		if err := f.spill(); err != nil {
			return 0, err
		}
	}
	if f.file != nil {
		n, err := f.file.Write(p)
		f.pos += int64(n)
		if f.pos > f.size {
			f.size = f.pos
		}
		return n, err
	}
	f.grow(end)
	copy(f.buf[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

// Read reads from the cursor into p, returning io.EOF at the end of
// content.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.file != nil {
		n, err := f.file.Read(p)
		f.pos += int64(n)
		return n, err
	}
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Seek moves the cursor, interpreting offset per io.SeekStart, SeekCurrent
// or SeekEnd. The cursor may be placed past the end of content; a negative
// position is an error.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.Len() + offset
	default:
		return 0, fmt.Errorf("urlfile/spool: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("urlfile/spool: negative position %d", abs)
	}
	if f.file != nil {
		if _, err := f.file.Seek(abs, io.SeekStart); err != nil {
			return 0, err
		}
	}
	f.pos = abs
	return abs, nil
}

// Tell returns the cursor position.
func (f *File) Tell() int64 {
	return f.pos
}

// Len returns the size of the content in bytes.
func (f *File) Len() int64 {
	if f.file != nil {
		return f.size
	}
	return int64(len(f.buf))
}

// IsEmpty reports whether the content is empty. The cursor is left where
// it was.
func (f *File) IsEmpty() bool {
	return f.Len() == 0
}

// Spilled reports whether the content has moved to disk.
func (f *File) Spilled() bool {
	return f.file != nil
}

// Flush syncs the spill file to stable storage. It is a no-op while the
// content is in memory.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if f.file != nil {
		return f.file.Sync()
	}
	return nil
}

// Close releases the memory buffer and closes and removes the spill file.
// Closing a closed File returns ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.buf = nil
	if f.file == nil {
		return nil
	}
	name := f.file.Name()
	err := f.file.Close()
	_ = f.fs.Remove(name)
	f.file = nil
	return err
}

// spill moves the memory content to a fresh temp file and continues there,
// with the file cursor matching the current position.
func (f *File) spill() error {
	tmp, err := afero.TempFile(f.fs, f.dir, "urlfile-spool-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(f.buf); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Seek(f.pos, io.SeekStart); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmp.Name())
		return err
	}
	f.log.Debug().Int64("bytes", int64(len(f.buf))).Str("file", tmp.Name()).Msg("buffer spilled to disk")
	f.file = tmp
	f.size = int64(len(f.buf))
	f.buf = nil
	return nil
}

// grow extends the memory buffer to n bytes. New space is zero so writes
// past the end of content behave like writes into a file hole.
func (f *File) grow(n int64) {
	if n <= int64(len(f.buf)) {
		return
	}
	if n <= int64(cap(f.buf)) {
		f.buf = f.buf[:n]
		return
	}
	c := 2 * cap(f.buf)
	if int64(c) < n {
		c = int(n)
	}
	grown := make([]byte, n, c)
	copy(grown, f.buf)
	f.buf = grown
}

// Compile-time interface checks.
var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)
