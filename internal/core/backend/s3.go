package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stevedore/stevedore/internal/core"
)

// S3Config carries connection settings for an S3-compatible backend.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// S3 stores objects in a bucket on an S3-compatible service.
type S3 struct {
	ID     string
	Name   string
	Bucket string
	Client *minio.Client
	Clock  func() time.Time

	stats opStats
}

// NewS3 creates an S3 backend from connection settings.
func NewS3(id, name string, cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3{ID: id, Name: name, Bucket: bucket, Client: client}, nil
}

// Info returns the backend identity.
func (b *S3) Info() core.BackendInfo {
	return core.BackendInfo{ID: b.ID, Name: b.Name, Type: core.BackendTypeS3}
}

// Upload stores an object in the bucket. An existing object is not overwritten.
func (b *S3) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (err error) {
	defer func() { b.stats.record(err) }()

	exists, err := b.exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%q: %w", name, ErrObjectExists)
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err = b.Client.PutObject(ctx, b.Bucket, name, r, size, opts); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Download opens an object for reading.
func (b *S3) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.Client.GetObject(ctx, b.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		b.stats.record(err)
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject defers the request; surface missing objects eagerly.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			err = fmt.Errorf("%q: %w", name, ErrObjectNotFound)
		}
		b.stats.record(err)
		return nil, err
	}
	b.stats.record(nil)
	return obj, nil
}

// Delete removes an object from the bucket.
func (b *S3) Delete(ctx context.Context, name string) (err error) {
	defer func() { b.stats.record(err) }()

	if err = b.Client.RemoveObject(ctx, b.Bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Exists reports whether the object is present in the bucket.
func (b *S3) Exists(ctx context.Context, name string) (bool, error) {
	exists, err := b.exists(ctx, name)
	b.stats.record(err)
	return exists, err
}

func (b *S3) exists(ctx context.Context, name string) (bool, error) {
	_, err := b.Client.StatObject(ctx, b.Bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat object: %w", err)
}

// HealthCheck verifies the bucket is reachable and times the round trip.
func (b *S3) HealthCheck(ctx context.Context) (core.StorageHealth, error) {
	started := b.now()

	exists, err := b.Client.BucketExists(ctx, b.Bucket)
	if err != nil {
		return core.StorageHealth{}, fmt.Errorf("bucket probe: %w", err)
	}
	if !exists {
		return core.StorageHealth{}, fmt.Errorf("bucket %q does not exist", b.Bucket)
	}

	now := b.now()
	return core.StorageHealth{
		Status:       core.HealthStatusHealthy,
		ResponseTime: now.Sub(started),
		SuccessRate:  b.stats.successRate(),
		LastChecked:  now,
	}, nil
}

func (b *S3) now() time.Time {
	if b != nil && b.Clock != nil {
		return b.Clock()
	}
	return time.Now().UTC()
}
