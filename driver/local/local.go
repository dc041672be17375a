// Package local implements a store.Store over a local filesystem.
//
// Object content lives at the key's path under the configured root.
// Content type and metadata, which a plain filesystem cannot carry,
// are kept as JSON sidecar files under a reserved ".attrs" subtree;
// objects put by other tools have their content type sniffed from
// their leading bytes on Get instead.
package local

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/nuln/urlfile/store"
)

// attrsDir is the subtree holding sidecar attribute files. Keys never
// collide with it because listed keys inside it are skipped.
const attrsDir = ".attrs"

// Auto-register local storage driver.
func init() {
	store.Register("local", func(cfg *store.Config) (store.Store, error) {
		return New(cfg.Bucket)
	})
}

// Engine implements store.Store for the local filesystem.
type Engine struct {
	fs afero.Fs
}

// New creates a local Engine rooted at the given directory, creating it
// if needed.
func New(root string) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0750); err != nil {
		return nil, err
	}
	return &Engine{fs: afero.NewBasePathFs(afero.NewOsFs(), absRoot)}, nil
}

// NewWithFs creates a local Engine backed by a custom afero.Fs.
// This is useful for testing with afero.MemMapFs.
func NewWithFs(fs afero.Fs) *Engine {
	return &Engine{fs: fs}
}

// attrs is the sidecar record for attributes the filesystem itself
// cannot store.
type attrs struct {
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (e *Engine) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	fi, err := e.fs.Stat(filepath.FromSlash(key))
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, store.ErrNotFound
	}
	info := &store.ObjectInfo{
		Key:     key,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
	e.loadAttrs(key, info)
	return info, nil
}

func (e *Engine) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectInfo, error) {
	info, err := e.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := e.fs.Open(filepath.FromSlash(key))
	if err != nil {
		return nil, nil, err
	}
	if info.ContentType == "" {
		// No sidecar knowledge; sniff from the leading bytes.
		mt, err := mimetype.DetectReader(f)
		if err == nil {
			info.ContentType = mt.String()
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}
	return f, info, nil
}

func (e *Engine) Put(ctx context.Context, key string, body io.Reader, opts store.PutOptions) error {
	p := filepath.FromSlash(key)
	if err := e.fs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return err
	}
	f, err := e.fs.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return e.saveAttrs(key, opts)
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	_ = e.fs.Remove(e.attrsPath(key))
	err := e.fs.Remove(filepath.FromSlash(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (e *Engine) List(ctx context.Context, prefix string) iter.Seq2[store.ObjectInfo, error] {
	return func(yield func(store.ObjectInfo, error) bool) {
		stop := false
		err := afero.Walk(e.fs, ".", func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				// Roots that do not exist yet simply have nothing to list.
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if stop {
				return filepath.SkipAll
			}
			key := filepath.ToSlash(strings.TrimPrefix(p, "./"))
			if fi.IsDir() {
				if key == attrsDir {
					return filepath.SkipDir
				}
				return nil
			}
			if key == "." || !strings.HasPrefix(key, prefix) {
				return nil
			}
			info := store.ObjectInfo{
				Key:     key,
				Size:    fi.Size(),
				ModTime: fi.ModTime(),
			}
			e.loadAttrs(key, &info)
			if !yield(info, nil) {
				stop = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stop {
			yield(store.ObjectInfo{}, err)
		}
	}
}

// attrsPath is the sidecar location for a key.
func (e *Engine) attrsPath(key string) string {
	return filepath.FromSlash(path.Join(attrsDir, key) + ".json")
}

// saveAttrs persists the attribute sidecar for a key, or removes a
// stale one when the new put carries no attributes.
func (e *Engine) saveAttrs(key string, opts store.PutOptions) error {
	p := e.attrsPath(key)
	if opts.ContentType == "" && len(opts.Metadata) == 0 {
		_ = e.fs.Remove(p)
		return nil
	}
	b, err := json.Marshal(attrs{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return err
	}
	return afero.WriteFile(e.fs, p, b, 0640)
}

// loadAttrs fills info from the key's sidecar when one exists.
func (e *Engine) loadAttrs(key string, info *store.ObjectInfo) {
	b, err := afero.ReadFile(e.fs, e.attrsPath(key))
	if err != nil {
		return
	}
	var a attrs
	if err := json.Unmarshal(b, &a); err != nil {
		return
	}
	info.ContentType = a.ContentType
	info.Metadata = a.Metadata
}

// Compile-time interface check.
var _ store.Store = (*Engine)(nil)
