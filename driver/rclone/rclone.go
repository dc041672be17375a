// Package rclone implements a store.Store over any rclone-supported
// remote (S3, GCS, WebDAV, SFTP, Google Drive, ...).
//
// Content types and metadata are whatever the remote itself reports;
// PutOptions attributes are not persisted because rclone's upload path
// does not carry them. Run the conformance suite with
// storetest.SkipContentType and storetest.SkipMetadata.
package rclone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
	"github.com/rclone/rclone/fs/operations"
	rclonewalk "github.com/rclone/rclone/fs/walk"

	"github.com/nuln/urlfile/store"
)

// Auto-register rclone storage driver.
func init() {
	store.Register("rclone", func(cfg *store.Config) (store.Store, error) {
		remote := ""
		if v, ok := cfg.Options["remote"]; ok {
			remote, _ = v.(string)
		}
		if remote == "" {
			remote = cfg.Bucket
		}
		if remote == "" {
			return nil, fmt.Errorf("urlfile/driver/rclone: remote is required (set Options[\"remote\"] or Bucket)")
		}
		return New(remote)
	})
}

// Engine implements store.Store using rclone's fs.Fs.
type Engine struct {
	remote fs.Fs
}

// New creates an Engine from a remote path (e.g. "gdrive:backup" or a
// local directory).
func New(remotePath string) (*Engine, error) {
	remote, err := fs.NewFs(context.Background(), remotePath)
	if err != nil {
		return nil, err
	}
	return &Engine{remote: remote}, nil
}

func (e *Engine) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	obj, err := e.remote.NewObject(ctx, key)
	if err != nil {
		return nil, convertError(err)
	}
	return e.objectInfo(ctx, key, obj), nil
}

func (e *Engine) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectInfo, error) {
	obj, err := e.remote.NewObject(ctx, key)
	if err != nil {
		return nil, nil, convertError(err)
	}
	rc, err := obj.Open(ctx)
	if err != nil {
		return nil, nil, convertError(err)
	}
	return rc, e.objectInfo(ctx, key, obj), nil
}

func (e *Engine) Put(ctx context.Context, key string, body io.Reader, opts store.PutOptions) error {
	// Rcat closes the reader it is handed; the body belongs to the
	// caller, so it gets a non-closing view.
	_, err := operations.Rcat(ctx, e.remote, key, io.NopCloser(body), time.Now(), nil)
	return err
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	obj, err := e.remote.NewObject(ctx, key)
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
		return nil
	}
	if err != nil {
		return convertError(err)
	}
	return obj.Remove(ctx)
}

func (e *Engine) List(ctx context.Context, prefix string) iter.Seq2[store.ObjectInfo, error] {
	return func(yield func(store.ObjectInfo, error) bool) {
		stopped := errors.New("stopped")
		err := rclonewalk.Walk(ctx, e.remote, walkRoot(prefix), true, -1, func(walkPath string, entries fs.DirEntries, err error) error {
			if err != nil {
				return err
			}
			for _, entry := range entries {
				obj, ok := entry.(fs.Object)
				if !ok {
					continue
				}
				key := obj.Remote()
				if !strings.HasPrefix(key, prefix) {
					continue
				}
				if !yield(*e.objectInfo(ctx, key, obj), nil) {
					return stopped
				}
			}
			return nil
		})
		switch {
		case err == nil, errors.Is(err, stopped):
		case errors.Is(err, fs.ErrorDirNotFound):
			// Nothing under the prefix yet; an empty listing, not a failure.
		default:
			yield(store.ObjectInfo{}, err)
		}
	}
}

// PresignURL returns a temporary public link for a key, when the remote
// supports them (fs.PublicLinker). Others return store.ErrNotSupported.
func (e *Engine) PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	do, ok := e.remote.(fs.PublicLinker)
	if !ok {
		return "", store.ErrNotSupported
	}
	return do.PublicLink(ctx, key, fs.Duration(expiry), false)
}

// objectInfo converts an rclone object into a store.ObjectInfo,
// picking up the content type and a content hash when the remote
// exposes them.
func (e *Engine) objectInfo(ctx context.Context, key string, obj fs.Object) *store.ObjectInfo {
	info := &store.ObjectInfo{
		Key:     key,
		Size:    obj.Size(),
		ModTime: obj.ModTime(ctx),
	}
	if do, ok := obj.(fs.MimeTyper); ok {
		info.ContentType = do.MimeType(ctx)
	}
	if sum, err := obj.Hash(ctx, hash.MD5); err == nil && sum != "" {
		info.ETag = sum
	}
	return info
}

// walkRoot picks the directory a prefix listing starts from, so a walk
// does not traverse the whole remote for a deep prefix.
func walkRoot(prefix string) string {
	if prefix == "" {
		return ""
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.TrimSuffix(prefix, "/")
	}
	dir := path.Dir(prefix)
	if dir == "." {
		return ""
	}
	return dir
}

func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
		return fmt.Errorf("%w: %w", err, store.ErrNotFound)
	}
	return err
}

// Compile-time interface checks.
var (
	_ store.Store     = (*Engine)(nil)
	_ store.Presigner = (*Engine)(nil)
)
