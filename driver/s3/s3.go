// Package s3 implements a store.Store over an S3 bucket using the AWS
// SDK v2. It also works against S3-compatible endpoints such as MinIO
// via AWS_ENDPOINT_URL_S3 and AWS_S3_FORCE_PATH_STYLE.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nuln/urlfile/store"
)

// listPageSize is how many keys one ListObjectsV2 page requests.
const listPageSize = 1000

// Auto-register s3 storage driver.
func init() {
	store.Register("s3", func(cfg *store.Config) (store.Store, error) {
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("urlfile/driver/s3: bucket name is required")
		}
		client, err := newClient(context.Background())
		if err != nil {
			return nil, err
		}
		return New(client, cfg.Bucket), nil
	})
}

// Client is the minimal subset of s3 client methods the Engine uses;
// it allows test fakes.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// newClient builds an s3 client from the ambient AWS configuration.
// Env support: AWS_REGION, AWS_ENDPOINT_URL_S3, AWS_S3_FORCE_PATH_STYLE.
func newClient(ctx context.Context) (Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("AWS_ENDPOINT_URL_S3"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true") {
			o.UsePathStyle = true
		}
	}), nil
}

// Engine implements store.Store over one S3 bucket.
type Engine struct {
	client Client
	bucket string
}

// New creates an Engine over the given bucket using client.
func New(client Client, bucket string) *Engine {
	return &Engine{client: client, bucket: bucket}
}

func (e *Engine) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	out, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, convertError(err)
	}
	return &store.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
		Metadata:    out.Metadata,
	}, nil
}

func (e *Engine) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectInfo, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, convertError(err)
	}
	info := &store.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
		Metadata:    out.Metadata,
	}
	return out.Body, info, nil
}

func (e *Engine) Put(ctx context.Context, key string, body io.Reader, opts store.PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		in.Metadata = opts.Metadata
	}
	_, err := e.client.PutObject(ctx, in)
	return err
}

func (e *Engine) Delete(ctx context.Context, key string) error {
	// S3 deletes of missing keys succeed, matching the Store contract.
	_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (e *Engine) List(ctx context.Context, prefix string) iter.Seq2[store.ObjectInfo, error] {
	return func(yield func(store.ObjectInfo, error) bool) {
		var token *string
		for {
			out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(e.bucket),
				Prefix:            aws.String(prefix),
				MaxKeys:           aws.Int32(listPageSize),
				ContinuationToken: token,
			})
			if err != nil {
				yield(store.ObjectInfo{}, err)
				return
			}
			for _, obj := range out.Contents {
				info := store.ObjectInfo{
					Key:     aws.ToString(obj.Key),
					Size:    aws.ToInt64(obj.Size),
					ModTime: aws.ToTime(obj.LastModified),
					ETag:    aws.ToString(obj.ETag),
				}
				if !yield(info, nil) {
					return
				}
			}
			if !aws.ToBool(out.IsTruncated) {
				return
			}
			token = out.NextContinuationToken
		}
	}
}

// convertError maps the SDK's missing-key errors onto store.ErrNotFound.
func convertError(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", err, store.ErrNotFound)
	}
	// S3-compatible endpoints answer with bare error codes.
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", err, store.ErrNotFound)
		}
	}
	return err
}

// Compile-time interface check.
var _ store.Store = (*Engine)(nil)
