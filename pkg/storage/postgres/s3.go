package postgres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vendorgate/vendorgate/pkg/storage"
)

var s3Tracer = otel.Tracer("vendorgate/storage/s3")

// SignedURLTTL is how long presigned download links stay valid
const SignedURLTTL = 15 * time.Minute

// ErrObjectTooLarge is returned when an upload exceeds the bucket limit.
// Handlers map it to CONSTRAINT_VIOLATION when the oversize was only
// detected at the store, versus 413 when caught from Content-Length.
var ErrObjectTooLarge = errors.New("object exceeds bucket size limit")

// FileStore handles document file storage in S3
type FileStore struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	maxBytes int64
}

// NewFileStore creates an S3-backed file store
func NewFileStore(cfg storage.Config) (*FileStore, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey, cfg.S3SecretKey, "",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &FileStore{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.S3Bucket,
		maxBytes: cfg.MaxObjectBytes,
	}, nil
}

// MaxObjectBytes returns the per-bucket upload limit
func (fs *FileStore) MaxObjectBytes() int64 {
	return fs.maxBytes
}

// readCapped reads at most max bytes, buffering one byte past the limit so
// an oversize stream is rejected without reading it to the end. A max of
// zero disables the cap.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrObjectTooLarge, max)
	}
	return data, nil
}

// Put uploads content under key and returns its SHA-256 checksum
func (fs *FileStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	ctx, span := s3Tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", fs.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	data, err := readCapped(content, fs.maxBytes)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrObjectTooLarge) {
			span.SetStatus(codes.Error, "object too large")
		} else {
			span.SetStatus(codes.Error, "failed to read content")
		}
		return "", err
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	_, err = fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(fs.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": checksum,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	return checksum, nil
}

// Get retrieves an object's content
func (fs *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := s3Tracer.Start(ctx, "S3.GetObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", fs.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes an object. Deleting a missing key is not an error in S3,
// which keeps document deletion idempotent.
func (fs *FileStore) Delete(ctx context.Context, key string) error {
	ctx, span := s3Tracer.Start(ctx, "S3.DeleteObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", fs.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	_, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// SignedURL returns a presigned GET URL for direct client download
func (fs *FileStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := fs.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}
