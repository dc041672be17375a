// Package store defines a minimal object-store abstraction with
// pluggable drivers. Drivers register themselves by name and are
// opened through [Open]; optional capabilities such as presigned URLs
// are probed by type assertion.
package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"time"
)

// Common store errors. Where possible, these alias os package errors
// for compatibility with os.IsNotExist, errors.Is(err, fs.ErrNotExist), etc.
var (
	ErrNotFound     = os.ErrNotExist
	ErrNotSupported = errors.New("urlfile/store: feature not supported by this driver")
)

// SkipRest stops a [Walk] early without error when returned from a
// [WalkFunc]. It aliases fs.SkipAll.
var SkipRest = fs.SkipAll

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ModTime     time.Time         `json:"modTime"`
	ContentType string            `json:"contentType,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PutOptions carries optional attributes stored alongside an object.
// Drivers that cannot persist an attribute ignore it.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is the unified interface for all object storage backends.
// Keys are slash-separated paths without a leading slash.
type Store interface {
	// Stat returns metadata about an object. Missing keys map to
	// [ErrNotFound].
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Get opens an object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Put creates or overwrites an object with the contents of body.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List yields every object whose key starts with prefix. Drivers
	// page through their backend internally.
	List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
}

// Presigner generates temporary public URLs (e.g. S3 presigned URLs).
// Use type assertion to check: if p, ok := st.(store.Presigner); ok { ... }
type Presigner interface {
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// WalkFunc is the callback for Walk. It is called once per object.
// Returning [SkipRest] stops the walk early without error.
type WalkFunc func(info ObjectInfo) error

// Walk visits every object under prefix, calling fn for each. It works
// with any Store.
func Walk(ctx context.Context, st Store, prefix string, fn WalkFunc) error {
	for info, err := range st.List(ctx, prefix) {
		if err != nil {
			return err
		}
		if err := fn(info); err != nil {
			if err == SkipRest {
				return nil
			}
			return err
		}
	}
	return nil
}
