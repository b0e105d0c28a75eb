// Package minio implements storage.Backend on a MinIO or other S3 compatible
// bucket using minio-go.
//
// Plan paths map to object keys below an optional prefix. Directories do not
// exist in an object store, so EnsureDir is a no-op and List derives entry
// names from key prefixes.
package minio

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // MD5 is the sync fingerprint, not a security primitive.
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
)

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix stores every plan below prefix inside the bucket.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = strings.Trim(prefix, "/")
	}
}

// WithLogger sets a custom logger for the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend stores plans as objects in a MinIO bucket.
type Backend struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Hasher  = (*Backend)(nil)
)

// New creates a Backend for bucket using an existing client.
func New(client *minio.Client, bucket string, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		bucket: bucket,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial creates a minio client for endpoint with static credentials.
func Dial(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, fmt.Sprintf("minio: connect %q", endpoint))
	}
	return client, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return translateError("bucketexists", b.bucket, err)
	}
	if ok {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return translateError("makebucket", b.bucket, err)
	}
	b.logger.Info("created bucket", "bucket", b.bucket)
	return nil
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, p string) ([]byte, error) {
	key := b.key(p)
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError("getobject", key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError("getobject", key, err)
	}
	return data, nil
}

// Write implements storage.Backend.
func (b *Backend) Write(ctx context.Context, p string, data []byte) error {
	key := b.key(p)
	_, err := b.client.PutObject(
		ctx,
		b.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: mimetype.Detect(data).String(),
		},
	)
	if err != nil {
		return translateError("putobject", key, err)
	}
	b.logger.Debug("uploaded object", "bucket", b.bucket, "key", key, "bytes", len(data))
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	key := b.key(p)
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	err = translateError("statobject", key, err)
	if storage.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Delete implements storage.Backend. Object stores delete idempotently, so
// existence is checked first to report whether something was removed.
func (b *Backend) Delete(ctx context.Context, p string) (bool, error) {
	ok, err := b.Exists(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	key := b.key(p)
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, translateError("removeobject", key, err)
	}
	return true, nil
}

// EnsureDir implements storage.Backend. Buckets have no directories.
func (b *Backend) EnsureDir(context.Context, string) error {
	return nil
}

// Stat implements storage.Backend. Line counts require the content, so the
// object is downloaded. Objects are replaced whole, so the creation time is
// the last modification.
func (b *Backend) Stat(ctx context.Context, p string) (storage.FileStats, error) {
	key := b.key(p)
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.FileStats{}, translateError("statobject", key, err)
	}
	data, err := b.Read(ctx, p)
	if err != nil {
		return storage.FileStats{}, err
	}
	return storage.FileStats{
		Size:       info.Size,
		CreatedAt:  info.LastModified,
		ModifiedAt: info.LastModified,
		LineCount:  storage.CountLines(data),
	}, nil
}

// List implements storage.Backend.
func (b *Backend) List(ctx context.Context, p string) ([]string, error) {
	prefix := b.key(p)
	if prefix != "" {
		prefix += "/"
	}

	var names []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, translateError("listobjects", prefix, obj.Err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// MD5 implements storage.Hasher using the object ETag. Multipart uploads do
// not carry a content MD5 in their ETag, so those are hashed after download.
func (b *Backend) MD5(ctx context.Context, p string) (string, error) {
	key := b.key(p)
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return "", translateError("statobject", key, err)
	}
	etag := strings.Trim(info.ETag, `"`)
	if len(etag) == md5.Size*2 && !strings.Contains(etag, "-") {
		return strings.ToLower(etag), nil
	}

	data, err := b.Read(ctx, p)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data) //nolint:gosec // see import
	return hex.EncodeToString(sum[:]), nil
}

func (b *Backend) key(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
	if b.prefix == "" {
		return p
	}
	if p == "" {
		return b.prefix
	}
	return path.Join(b.prefix, p)
}

// translateError maps minio errors onto the platform error codes.
func translateError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	msg := fmt.Sprintf("minio: %s %q", op, key)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" || resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
	case resp.Code == "NoSuchBucket":
		return errors.Wrap(err, errors.CodeInvalidConfig, msg)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return errors.Wrap(err, errors.CodeForbidden, msg)
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Wrap(err, errors.CodeUnauthorized, msg)
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(err, errors.CodeRateLimit, msg)
	default:
		return errors.Wrap(err, errors.CodeNetwork, msg)
	}
}
