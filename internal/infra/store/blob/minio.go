package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/you-humble/tasksync/internal/domain"

	"github.com/minio/minio-go/v7"
)

type minioStore struct {
	db     *minio.Client
	region string
}

func NewMinIOStore(client *minio.Client, region string) *minioStore {
	return &minioStore{
		db:     client,
		region: region,
	}
}

func (s *minioStore) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := s.db.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}

	return names, nil
}

// CreateBucket fails with domain.ErrBucketExists when the bucket is
// already there, whoever owns it.
func (s *minioStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := s.db.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return bucketError(bucket, err)
	}

	return nil
}

func bucketError(bucket string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return fmt.Errorf("create bucket %q: %w: %w", bucket, domain.ErrBucketExists, err)
	default:
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
}

func (s *minioStore) PutObject(
	ctx context.Context,
	bucket, key string,
	data []byte,
	contentType string,
) error {
	objectName, err := objectName(key)
	if err != nil {
		return err
	}

	_, err = s.db.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, objectName, err)
	}

	return nil
}

// DeleteObject removes key; a missing key is not an error.
func (s *minioStore) DeleteObject(ctx context.Context, bucket, key string) error {
	objectName, err := objectName(key)
	if err != nil {
		return err
	}

	err = s.db.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		var merr minio.ErrorResponse
		if errors.As(err, &merr) && merr.Code == minio.NoSuchKey {
			return nil
		}
		return fmt.Errorf("remove object %s/%s: %w", bucket, objectName, err)
	}

	return nil
}

func objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty object key")
	}

	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key: %s", key)
	}

	return strings.TrimLeft(clean, "/"), nil
}
