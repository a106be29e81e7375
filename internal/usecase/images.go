package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/you-humble/tasksync/internal/domain"
	"github.com/you-humble/tasksync/internal/metrics"

	"github.com/google/uuid"
)

type BlobStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

const (
	blobExt            = ".jpg"
	contentTypeJPEG    = "image/jpeg"
	contentTypeDefault = "application/octet-stream"
)

// ImageManager writes uploaded images to the blob store under fresh keys.
// Uploads are not attached to any task; clients set imageKey themselves.
type ImageManager struct {
	bucket string
	blobs  BlobStore
	newID  func() string
}

func NewImageManager(bucket string, blobs BlobStore) *ImageManager {
	return &ImageManager{
		bucket: bucket,
		blobs:  blobs,
		newID:  uuid.NewString,
	}
}

func (m *ImageManager) UploadBinary(ctx context.Context, data []byte, contentType string) (domain.UploadResult, error) {
	if len(data) == 0 {
		metrics.ImageUploadsTotal.WithLabelValues("binary", metrics.ResultInvalid).Inc()
		return domain.UploadResult{}, fmt.Errorf("missing file: %w", domain.ErrValidation)
	}
	if contentType == "" {
		contentType = contentTypeDefault
	}

	return m.put(ctx, "binary", data, contentType)
}

// UploadBase64 accepts raw base64 or a data URI ("data:<mime>;base64,<data>").
// The blob is always stored as image/jpeg.
func (m *ImageManager) UploadBase64(ctx context.Context, dataURI string) (domain.UploadResult, error) {
	if dataURI == "" {
		metrics.ImageUploadsTotal.WithLabelValues("base64", metrics.ResultInvalid).Inc()
		return domain.UploadResult{}, fmt.Errorf("missing base64 data: %w", domain.ErrValidation)
	}

	data, err := decodeDataURI(dataURI)
	if err != nil {
		metrics.ImageUploadsTotal.WithLabelValues("base64", metrics.ResultInvalid).Inc()
		return domain.UploadResult{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	return m.put(ctx, "base64", data, contentTypeJPEG)
}

// Discard removes an image blob. Used when its task is deleted.
func (m *ImageManager) Discard(ctx context.Context, key string) error {
	if err := m.blobs.DeleteObject(ctx, m.bucket, key); err != nil {
		return domain.Upstream("delete image "+key, err)
	}
	return nil
}

func (m *ImageManager) put(ctx context.Context, kind string, data []byte, contentType string) (domain.UploadResult, error) {
	id := m.newID()
	key := id + blobExt

	if err := m.blobs.PutObject(ctx, m.bucket, key, data, contentType); err != nil {
		metrics.ImageUploadsTotal.WithLabelValues(kind, metrics.ResultError).Inc()
		return domain.UploadResult{}, domain.Upstream("put image "+key, err)
	}

	metrics.ImageUploadsTotal.WithLabelValues(kind, metrics.ResultOK).Inc()
	metrics.ImageBytesTotal.Add(float64(len(data)))

	return domain.UploadResult{
		ID:     id,
		Key:    key,
		Bucket: m.bucket,
	}, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeDataURI drops everything up to the first comma, when the remainder
// is non-empty, and decodes the rest as padded or unpadded base64.
func decodeDataURI(s string) ([]byte, error) {
	if _, after, found := strings.Cut(s, ","); found && after != "" {
		s = after
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, fmt.Errorf("empty base64 payload")
	}

	for _, enc := range base64Encodings {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, nil
		}
	}

	return nil, fmt.Errorf("invalid base64 payload")
}
