package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

// MinioStorage implements ObjectStorage on a MinIO / S3-compatible
// backend. The Core client exposes the raw multipart API the upload
// session manager drives.
type MinioStorage struct {
	client *minio.Client
	core   *minio.Core
	cfg    config.StorageConfig
	logger *zap.Logger
}

func NewMinioStorage(cfg config.StorageConfig, logger *zap.Logger) (*MinioStorage, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	}
	core, err := minio.NewCore(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinioStorage{
		client: core.Client,
		core:   core,
		cfg:    cfg,
		logger: logger,
	}

	ctx := context.Background()
	exists, err := s.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return s, nil
}

func (s *MinioStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return &ObjectInfo{Key: key, SizeBytes: info.Size, ETag: info.ETag}, nil
}

func (s *MinioStorage) PresignUpload(ctx context.Context, key, contentType string) (*PresignedUpload, error) {
	u, err := s.client.PresignedPutObject(ctx, s.cfg.Bucket, key, s.cfg.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload for %s: %w", key, err)
	}
	return &PresignedUpload{
		URL:       u.String(),
		Key:       key,
		ExpiresAt: time.Now().Add(s.cfg.PresignExpiry),
	}, nil
}

func (s *MinioStorage) InitiateMultipart(ctx context.Context, key, contentType string) (*MultipartInit, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.cfg.Bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate multipart for %s: %w", key, err)
	}
	s.logger.Info("initiated multipart upload",
		zap.String("key", key),
		zap.String("upload_id", uploadID))
	return &MultipartInit{
		UploadID:      uploadID,
		Key:           key,
		PartSizeBytes: s.cfg.PartSizeBytes,
	}, nil
}

func (s *MinioStorage) PresignPart(ctx context.Context, key, uploadID string, partNumber int) (string, error) {
	params := url.Values{}
	params.Set("uploadId", uploadID)
	params.Set("partNumber", strconv.Itoa(partNumber))
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.cfg.Bucket, key, s.cfg.PresignExpiry, params, nil)
	if err != nil {
		return "", fmt.Errorf("presign part %d for %s: %w", partNumber, key, err)
	}
	return u.String(), nil
}

func (s *MinioStorage) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error {
	completeParts := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completeParts[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.cfg.Bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("complete multipart %s for %s: %w", uploadID, key, err)
	}
	s.logger.Info("completed multipart upload",
		zap.String("key", key),
		zap.String("upload_id", uploadID),
		zap.Int("parts", len(parts)))
	return nil
}

func (s *MinioStorage) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.cfg.Bucket, key, uploadID); err != nil {
		resp := minio.ToErrorResponse(err)
		// Missing upload means it was already completed or aborted.
		if resp.Code == "NoSuchUpload" {
			s.logger.Warn("multipart upload already gone",
				zap.String("key", key),
				zap.String("upload_id", uploadID))
			return nil
		}
		return fmt.Errorf("abort multipart %s for %s: %w", uploadID, key, err)
	}
	return nil
}
