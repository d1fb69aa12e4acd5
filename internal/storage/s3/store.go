// Package s3 archives upload documents in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tablechat/tablechat/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is the slice of the S3 API the archive needs, bound to one bucket.
type bucket interface {
	put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error
	open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	remove(ctx context.Context, key string) error
	ensure(ctx context.Context, region string) error
}

// Store implements storage.ObjectStore. Every key is stored below prefix.
type Store struct {
	bucket bucket
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(&minioBucket{client: client, name: name}, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.bucket.ensure(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(b bucket, prefix string) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	return &Store{bucket: b, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	scoped, err := s.scope(key)
	if err != nil {
		return err
	}
	if err := s.bucket.put(ctx, scoped, body, size, opts); err != nil {
		return fmt.Errorf("put object %q: %w", scoped, err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	scoped, err := s.scope(key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	body, info, err := s.bucket.open(ctx, scoped)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("open object %q: %w", scoped, err)
	}
	return body, info, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	scoped, err := s.scope(key)
	if err != nil {
		return err
	}
	if err := s.bucket.remove(ctx, scoped); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete object %q: %w", scoped, err)
	}
	return nil
}

// scope rejects keys that could leave the prefix and prepends it.
func (s *Store) scope(key string) (string, error) {
	if !fs.ValidPath(key) || key == "." {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

// parseEndpoint accepts "host:port" or a URL; a URL scheme overrides useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported s3 endpoint scheme %q", parsed.Scheme)
	}
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	_, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	return notFoundAware(err)
}

// open issues a single GET; the object's Stat reads the response headers.
func (b *minioBucket) open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, notFoundAware(err)
	}
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, storage.ObjectInfo{}, notFoundAware(err)
	}
	return object, storage.ObjectInfo{
		Size:        stat.Size,
		ContentType: stat.ContentType,
		Metadata:    stat.UserMetadata,
	}, nil
}

func (b *minioBucket) remove(ctx context.Context, key string) error {
	return notFoundAware(b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}))
}

// ensure creates the bucket unless it already exists.
func (b *minioBucket) ensure(ctx context.Context, region string) error {
	err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region})
	if err == nil {
		return nil
	}
	if exists, existsErr := b.client.BucketExists(ctx, b.name); existsErr == nil && exists {
		return nil
	}
	return fmt.Errorf("create bucket %q: %w", b.name, err)
}

func notFoundAware(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
