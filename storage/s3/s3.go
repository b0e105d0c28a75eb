// Package s3 implements storage.Backend on Amazon S3 using aws-sdk-go-v2.
//
// The SDK client is consumed through the narrow S3API interface so the
// backend can be exercised against fakes and LocalStack.
package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // MD5 is the sync fingerprint, not a security primitive.
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
)

// S3API is the subset of the S3 client used by the backend.
type S3API interface {
	// GetObject retrieves an object from S3
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)

	// PutObject uploads an object to S3
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)

	// HeadObject retrieves metadata about an object without retrieving the object itself
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)

	// DeleteObject deletes an object from S3
	DeleteObject(
		ctx context.Context,
		params *s3.DeleteObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.DeleteObjectOutput, error)

	// ListObjectsV2 lists objects in an S3 bucket
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)
}

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

// Backend stores plans as objects in an S3 bucket.
type Backend struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Hasher  = (*Backend)(nil)
)

// New creates a Backend for bucket.
func New(client S3API, bucket string, opts ...Option) *Backend {
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

// NewClient builds an SDK client from the default AWS configuration chain.
// A non-empty endpoint switches to path-style addressing, which S3
// compatible services such as LocalStack require.
func NewClient(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "s3: load aws config")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, p string) ([]byte, error) {
	key := b.key(p)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, convertAWSError("getobject", key, err)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, fmt.Sprintf("s3: read body %q", key))
	}
	return data, nil
}

// Write implements storage.Backend.
func (b *Backend) Write(ctx context.Context, p string, data []byte) error {
	key := b.key(p)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return convertAWSError("putobject", key, err)
	}
	b.logger.Debug("uploaded object", "bucket", b.bucket, "key", key, "bytes", len(data))
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := b.head(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case storage.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, p string) (bool, error) {
	ok, err := b.Exists(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	key := b.key(p)
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, convertAWSError("deleteobject", key, err)
	}
	return true, nil
}

// EnsureDir implements storage.Backend. Buckets have no directories.
func (b *Backend) EnsureDir(context.Context, string) error {
	return nil
}

// Stat implements storage.Backend. Objects are replaced whole, so the
// creation time is the last modification.
func (b *Backend) Stat(ctx context.Context, p string) (storage.FileStats, error) {
	head, err := b.head(ctx, p)
	if err != nil {
		return storage.FileStats{}, err
	}
	data, err := b.Read(ctx, p)
	if err != nil {
		return storage.FileStats{}, err
	}
	return storage.FileStats{
		Size:       aws.ToInt64(head.ContentLength),
		CreatedAt:  aws.ToTime(head.LastModified),
		ModifiedAt: aws.ToTime(head.LastModified),
		LineCount:  storage.CountLines(data),
	}, nil
}

// List implements storage.Backend.
func (b *Backend) List(ctx context.Context, p string) ([]string, error) {
	prefix := b.key(p)
	if prefix != "" {
		prefix += "/"
	}

	names := []string{}
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, convertAWSError("listobjectsv2", prefix, err)
		}
		for _, obj := range page.Contents {
			if name := strings.TrimPrefix(aws.ToString(obj.Key), prefix); name != "" {
				names = append(names, name)
			}
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// MD5 implements storage.Hasher from the object ETag, falling back to
// hashing the content for multipart objects.
func (b *Backend) MD5(ctx context.Context, p string) (string, error) {
	head, err := b.head(ctx, p)
	if err != nil {
		return "", err
	}
	etag := strings.Trim(aws.ToString(head.ETag), `"`)
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

func (b *Backend) head(ctx context.Context, p string) (*s3.HeadObjectOutput, error) {
	key := b.key(p)
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, convertAWSError("headobject", key, err)
	}
	return out, nil
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

// convertAWSError maps AWS SDK errors onto the platform error codes.
func convertAWSError(op, key string, err error) error {
	msg := fmt.Sprintf("s3: %s %q", op, key)

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return errors.Wrap(err, errors.CodeInvalidConfig, msg)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
		case "NoSuchBucket":
			return errors.Wrap(err, errors.CodeInvalidConfig, msg)
		case "AccessDenied", "Forbidden":
			return errors.Wrap(err, errors.CodeForbidden, msg)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return errors.Wrap(err, errors.CodeUnauthorized, msg)
		case "SlowDown", "Throttling", "TooManyRequests":
			return errors.Wrap(err, errors.CodeRateLimit, msg)
		}
	}
	return errors.Wrap(err, errors.CodeNetwork, msg)
}
