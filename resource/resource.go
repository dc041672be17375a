package resource

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nuln/urlfile/payload"
	"github.com/nuln/urlfile/spool"
	"github.com/nuln/urlfile/store"
)

var (
	// ErrClosed is returned by operations on a closed Resource.
	ErrClosed = errors.New("urlfile/resource: resource already closed")

	// ErrNotJSON is returned by Decode when the resource's content type
	// is not application/json.
	ErrNotJSON = errors.New("urlfile/resource: content type is not application/json")
)

// Resource is a single object in a bucket, addressed by prefix and
// filename. A resource may hold content locally (staged by an option or
// downloaded on first read) or be a pure pointer to a remote object;
// Save pushes local content to the store, Read pulls remote content in.
//
// A Resource is not safe for concurrent use.
type Resource struct {
	filename    string
	prefix      string
	bucket      *Bucket
	contentType string
	metadata    map[string]string

	pending    any // value staged by WithPayload, negotiated in init
	hasPending bool

	stream *payload.Stream
	buf    *spool.File // backing buffer for downloaded content
	info   *store.ObjectInfo
	closed bool
	log    zerolog.Logger
}

// ResourceOption configures a Resource at creation.
type ResourceOption func(*Resource)

// WithContentType declares the resource's content type. It overrides
// whatever a payload negotiates.
func WithContentType(ct string) ResourceOption {
	return func(r *Resource) { r.contentType = ct }
}

// WithMetadata attaches key/value metadata saved alongside the object.
func WithMetadata(m map[string]string) ResourceOption {
	return func(r *Resource) { r.metadata = m }
}

// WithPayload stages value as the resource's content. The value is
// content-negotiated by payload.FromAny after all options are applied,
// so a WithContentType in the same call steers the negotiation. A nil
// value stages nothing.
func WithPayload(v any) ResourceOption {
	return func(r *Resource) {
		r.pending = v
		r.hasPending = v != nil
	}
}

// WithStream uses st as the resource's content as-is.
func WithStream(st *payload.Stream) ResourceOption {
	return func(r *Resource) { r.stream = st }
}

// init applies opts and normalizes the resource: the filename reduces
// to a clean relative path, an empty one gets a generated name, and a
// staged payload is negotiated into a stream. Placement under the
// bucket's key rule happens in NewResource, after this.
func (r *Resource) init(opts []ResourceOption) error {
	for _, opt := range opts {
		opt(r)
	}
	r.filename = cleanFilename(r.filename)
	if r.filename == "" || r.filename == "." {
		u := uuid.New()
		r.filename = hex.EncodeToString(u[:])
	}
	if r.hasPending {
		st, err := payload.FromAny(r.pending, r.contentType)
		if err != nil {
			return err
		}
		r.stream = st
		r.pending = nil
		r.hasPending = false
	}
	return nil
}

// Filename returns the bare object name, without its prefix.
func (r *Resource) Filename() string { return r.filename }

// Prefix returns the directory part of the resource's key.
func (r *Resource) Prefix() string { return r.prefix }

// Key returns the full object key: prefix plus filename.
func (r *Resource) Key() string { return r.prefix + r.filename }

// URI returns the resource's full URI, e.g. "s3a://warehouse/ab/c1/23/report.json".
func (r *Resource) URI() string {
	return r.bucket.protocol + r.bucket.name + "/" + r.Key()
}

func (r *Resource) String() string { return r.URI() }

// Bucket returns the bucket the resource is bound to.
func (r *Resource) Bucket() *Bucket { return r.bucket }

// Info returns the object stats known from the listing or fetch that
// produced this resource, or nil when none are known yet.
func (r *Resource) Info() *store.ObjectInfo { return r.info }

// Metadata returns the metadata attached locally, falling back to
// whatever the store reported.
func (r *Resource) Metadata() map[string]string {
	if r.metadata != nil {
		return r.metadata
	}
	if r.info != nil {
		return r.info.Metadata
	}
	return nil
}

// ContentType resolves the resource's MIME type: the declared type
// wins, then the content stream's, then the store's stats, and
// application/octet-stream when nothing knows better.
func (r *Resource) ContentType() string {
	if r.contentType != "" {
		return r.contentType
	}
	if r.stream != nil && r.stream.ContentType() != "" {
		return r.stream.ContentType()
	}
	if r.info != nil && r.info.ContentType != "" {
		return r.info.ContentType
	}
	return "application/octet-stream"
}

// ensureStream returns the resource's content stream, downloading the
// object on first use. Downloads land in a spool buffer so the stream
// is seekable no matter what the store handed back.
func (r *Resource) ensureStream(ctx context.Context) (*payload.Stream, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.stream != nil {
		return r.stream, nil
	}

	rc, info, err := r.bucket.store.Get(ctx, r.Key())
	if err != nil {
		return nil, err
	}
	buf := spool.New()
	n, err := io.Copy(buf, rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = buf.Close()
		return nil, fmt.Errorf("urlfile/resource: fetch %s: %w", r.Key(), err)
	}
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		_ = buf.Close()
		return nil, err
	}
	ct := ""
	if info != nil {
		ct = info.ContentType
	}
	st, err := payload.FromReader(buf, ct)
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	r.stream = st
	r.buf = buf
	if info != nil {
		r.info = info
	}
	r.log.Debug().Str("key", r.Key()).Int64("bytes", n).Msg("resource fetched")
	return st, nil
}

// Fetch downloads the object's content now. It is a no-op when the
// resource already holds content.
func (r *Resource) Fetch(ctx context.Context) error {
	_, err := r.ensureStream(ctx)
	return err
}

// Read reads from the resource's content, downloading the object on
// first use. Reads that trigger a download run under the background
// context; call Fetch first to bound the download with your own.
func (r *Resource) Read(p []byte) (int, error) {
	st, err := r.ensureStream(context.Background())
	if err != nil {
		return 0, err
	}
	return st.Read(p)
}

// Seek moves the read cursor, downloading the object on first use.
func (r *Resource) Seek(offset int64, whence int) (int64, error) {
	st, err := r.ensureStream(context.Background())
	if err != nil {
		return 0, err
	}
	return st.Seek(offset, whence)
}

// Value returns the resource's content as bytes, fetching it if needed.
// The content is read from the start regardless of the cursor.
func (r *Resource) Value(ctx context.Context) ([]byte, error) {
	st, err := r.ensureStream(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := st.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(st)
}

// Decode unmarshals the resource's JSON content into v, fetching it if
// needed. Resources whose content type is not application/json return
// ErrNotJSON. The type check runs after the fetch, since a pure pointer
// does not know its type until the store reports it.
func (r *Resource) Decode(ctx context.Context, v any) error {
	st, err := r.ensureStream(ctx)
	if err != nil {
		return err
	}
	ct := r.ContentType()
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
		return fmt.Errorf("%w: %s", ErrNotJSON, ct)
	}
	if _, err := st.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return json.NewDecoder(st).Decode(v)
}

// Save writes the resource's content to its bucket under its key, with
// its content type and metadata. The content is rewound before the
// write and again after, so the resource stays readable.
func (r *Resource) Save(ctx context.Context) error {
	return r.SaveTo(ctx, r.bucket)
}

// SaveTo writes the resource's content to another bucket's store under
// the resource's existing key. A resource without local content is
// fetched first, which makes SaveTo a copy between buckets.
func (r *Resource) SaveTo(ctx context.Context, b *Bucket) error {
	st, err := r.ensureStream(ctx)
	if err != nil {
		return err
	}
	if _, err := st.Seek(0, io.SeekStart); err != nil {
		return err
	}
	err = b.store.Put(ctx, r.Key(), st, store.PutOptions{
		ContentType: r.ContentType(),
		Metadata:    r.metadata,
	})
	if err != nil {
		return fmt.Errorf("urlfile/resource: save %s: %w", r.Key(), err)
	}
	if _, err := st.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r.log.Debug().
		Str("uri", b.protocol+b.name+"/"+r.Key()).
		Int64("bytes", st.Len()).
		Str("contentType", r.ContentType()).
		Msg("resource saved")
	return nil
}

// Close releases the resource's local content. The remote object is
// untouched; a closed resource cannot be read again.
func (r *Resource) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var first error
	if r.stream != nil {
		first = r.stream.Close()
		r.stream = nil
	}
	if r.buf != nil {
		if err := r.buf.Close(); err != nil && first == nil {
			first = err
		}
		r.buf = nil
	}
	return first
}

var (
	_ io.ReadSeeker = (*Resource)(nil)
	_ io.Closer     = (*Resource)(nil)
)
