package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	ETag      string
}

// PresignedUpload is a short-lived signed target for a single-shot PUT.
type PresignedUpload struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// MultipartInit describes an opened multipart transaction.
type MultipartInit struct {
	UploadID      string
	Key           string
	PartSizeBytes int64
}

// Part identifies one uploaded part for multipart completion. Order
// matters; gaps or duplicates fail completion validation upstream.
type Part struct {
	Number int
	ETag   string
}

// ObjectStorage is the durable media store collaborator. Implementations
// key everything by opaque string keys.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Stat returns nil with no error when the object does not exist.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	PresignUpload(ctx context.Context, key, contentType string) (*PresignedUpload, error)
	InitiateMultipart(ctx context.Context, key, contentType string) (*MultipartInit, error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
