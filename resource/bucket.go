package resource

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuln/urlfile/maybe"
	"github.com/nuln/urlfile/store"
)

// DefaultProtocol is the scheme used when rendering object URIs.
const DefaultProtocol = "s3a://"

// Bucket binds a named store to a key-naming rule. Resources created
// through a bucket inherit its layout, so callers deal in filenames
// and the bucket deals in keys.
type Bucket struct {
	name     string
	store    store.Store
	keyFn    KeyFunc
	protocol string
	log      zerolog.Logger
}

// BucketOption configures a Bucket.
type BucketOption func(*Bucket)

// WithKeyFunc sets the bucket's key-naming rule. The default is Flat.
func WithKeyFunc(fn KeyFunc) BucketOption {
	return func(b *Bucket) { b.keyFn = fn }
}

// WithProtocol sets the scheme used in URIs, e.g. "gs://".
func WithProtocol(p string) BucketOption {
	return func(b *Bucket) { b.protocol = p }
}

// WithLogger routes the bucket's (and its resources') diagnostics to l.
func WithLogger(l zerolog.Logger) BucketOption {
	return func(b *Bucket) { b.log = l }
}

// NewBucket returns a bucket over st known by name. The name appears
// in URIs and log lines; st decides where bytes actually live.
func NewBucket(name string, st store.Store, opts ...BucketOption) *Bucket {
	b := &Bucket{
		name:     name,
		store:    st,
		keyFn:    Flat,
		protocol: DefaultProtocol,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the bucket's name.
func (b *Bucket) Name() string { return b.name }

func (b *Bucket) String() string { return b.protocol + b.name }

// Store returns the underlying object store.
func (b *Bucket) Store() store.Store { return b.store }

// Key returns the object key the bucket's naming rule assigns to
// filename. The filename is normalized the way NewResource normalizes
// it, so Key addresses exactly where Upload stores.
func (b *Bucket) Key(filename string) string { return b.keyFn(cleanFilename(filename)) }

// URI returns the full object URI for filename, e.g.
// "s3a://warehouse/ab/c1/23/report.json".
func (b *Bucket) URI(filename string) string {
	return b.protocol + b.name + "/" + b.Key(filename)
}

// List returns resources for the objects whose filename starts with
// prefix, in key order. max caps the number returned; max <= 0 returns
// everything. The resources carry listing stats but no content; reading
// one fetches it.
//
// The prefix is mapped through the bucket's key rule. Under a rule that
// hashes the filename, such as HashFanout, a partial name shares no
// fan-out with the names it abbreviates, so only an exact filename or
// the empty prefix match anything.
func (b *Bucket) List(ctx context.Context, prefix string, max int) ([]*Resource, error) {
	var out []*Resource
	err := store.Walk(ctx, b.store, b.keyFn(prefix), func(info store.ObjectInfo) error {
		if max > 0 && len(out) >= max {
			return store.SkipRest
		}
		out = append(out, b.resourceAt(info))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bucket) resourceAt(info store.ObjectInfo) *Resource {
	prefix, filename := splitKey(info.Key)
	stat := info
	return &Resource{
		filename: filename,
		prefix:   prefix,
		bucket:   b,
		info:     &stat,
		log:      b.log,
	}
}

// NewResource returns a resource bound to this bucket. An empty
// filename gets a generated one; the bucket's key rule applied to the
// normalized filename then decides the resource's placement, so Key on
// the result equals b.Key(filename). Any directory part the rule
// produces becomes the resource's prefix.
func (b *Bucket) NewResource(filename string, opts ...ResourceOption) (*Resource, error) {
	r := &Resource{
		filename: filename,
		bucket:   b,
		log:      b.log,
	}
	if err := r.init(opts); err != nil {
		return nil, err
	}
	r.prefix, r.filename = splitKey(b.keyFn(r.filename))
	return r, nil
}

// Upload stores value in the bucket under filename and returns the
// saved resource. The value is content-negotiated the same way
// payload.FromAny does it; a declared WithContentType steers the
// negotiation. Upload reports through a maybe so call sites can defer
// the error check past a pipeline stage.
func (b *Bucket) Upload(ctx context.Context, filename string, value any, opts ...ResourceOption) maybe.Maybe[*Resource] {
	r, err := b.NewResource(filename, append(opts, WithPayload(value))...)
	if err != nil {
		return maybe.Fault[*Resource](err)
	}
	if err := r.Save(ctx); err != nil {
		return maybe.Fault[*Resource](err)
	}
	return maybe.Ok(r)
}

// PresignURL returns a temporary public URL for filename. Buckets over
// stores without link support return store.ErrNotSupported.
func (b *Bucket) PresignURL(ctx context.Context, filename string, expiry time.Duration) (string, error) {
	p, ok := b.store.(store.Presigner)
	if !ok {
		return "", store.ErrNotSupported
	}
	return p.PresignURL(ctx, b.Key(filename), expiry)
}

// splitKey splits an object key into its directory part (trailing
// slash kept) and bare filename.
func splitKey(key string) (prefix, filename string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i+1], key[i+1:]
}

// cleanFilename reduces a caller-supplied filename to a clean relative
// slash path.
func cleanFilename(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(name), "/")
}
