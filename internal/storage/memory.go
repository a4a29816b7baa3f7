package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryStorage is an in-process ObjectStorage used by tests. Multipart
// state is tracked so abort/complete semantics can be asserted.
type MemoryStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	uploads  map[string]*memUpload // uploadID -> pending multipart
	uploadSeq int

	// FailPut, when set, makes Put return the error once.
	FailPut error
}

type memUpload struct {
	key   string
	parts map[int][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		uploads: make(map[string]*memUpload),
	}
}

// SeedObject stores an object directly, bypassing the upload flow.
func (s *MemoryStorage) SeedObject(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// HasObject reports whether key exists.
func (s *MemoryStorage) HasObject(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// OpenUploads returns the number of in-flight multipart transactions.
func (s *MemoryStorage) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *MemoryStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.FailPut != nil {
		err := s.FailPut
		s.FailPut = nil
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *MemoryStorage) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

func (s *MemoryStorage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, nil
	}
	return &ObjectInfo{
		Key:       key,
		SizeBytes: int64(len(data)),
		ETag:      fmt.Sprintf("%x", md5.Sum(data)),
	}, nil
}

func (s *MemoryStorage) PresignUpload(ctx context.Context, key, contentType string) (*PresignedUpload, error) {
	return &PresignedUpload{
		URL:       "https://storage.test/presigned/" + key,
		Key:       key,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (s *MemoryStorage) InitiateMultipart(ctx context.Context, key, contentType string) (*MultipartInit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadSeq++
	uploadID := fmt.Sprintf("upload-%d", s.uploadSeq)
	s.uploads[uploadID] = &memUpload{key: key, parts: make(map[int][]byte)}
	return &MultipartInit{UploadID: uploadID, Key: key, PartSizeBytes: 64 << 20}, nil
}

func (s *MemoryStorage) PresignPart(ctx context.Context, key, uploadID string, partNumber int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return "", fmt.Errorf("upload %s not found", uploadID)
	}
	return fmt.Sprintf("https://storage.test/presigned/%s?uploadId=%s&partNumber=%d", key, uploadID, partNumber), nil
}

// WritePart simulates a client uploading one part through a presigned URL.
func (s *MemoryStorage) WritePart(uploadID string, partNumber int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if up, ok := s.uploads[uploadID]; ok {
		up.parts[partNumber] = append([]byte(nil), data...)
	}
}

func (s *MemoryStorage) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return fmt.Errorf("upload %s not found", uploadID)
	}
	var assembled []byte
	for _, p := range parts {
		data, ok := up.parts[p.Number]
		if !ok {
			// Parts not written through WritePart assemble as empty,
			// mirroring a storage backend that accepts the manifest.
			data = nil
		}
		assembled = append(assembled, data...)
	}
	s.objects[key] = assembled
	delete(s.uploads, uploadID)
	return nil
}

func (s *MemoryStorage) AbortMultipart(ctx context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadID)
	return nil
}
