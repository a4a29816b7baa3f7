package dto

import "time"

// InitiateUploadRequest declares one file the client wants to transfer.
type InitiateUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,min=1,max=512"`
	ContentType string `json:"content_type" binding:"omitempty,max=255"`
	SizeBytes   int64  `json:"size_bytes" binding:"required,min=1"`
}

// InitiateUploadResponse tells the client how to move the bytes. For
// small files UploadURL is set; large files get a part scheme instead.
type InitiateUploadResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	UploadURL string    `json:"upload_url,omitempty"`
	PartSize  int64     `json:"part_size,omitempty"`
	PartCount int       `json:"part_count,omitempty"`
}

// PresignPartResponse carries one signed part URL.
type PresignPartResponse struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
}

// CompleteUploadRequest finalizes a session. Parts are required for
// multipart sessions and ignored otherwise.
type CompleteUploadRequest struct {
	Parts []CompletedPart `json:"parts" binding:"omitempty,dive"`
}

// CompletedPart echoes the storage receipt for one uploaded part.
type CompletedPart struct {
	PartNumber int    `json:"part_number" binding:"required,min=1"`
	ETag       string `json:"etag" binding:"required"`
}

// UploadSessionResponse is the session status envelope.
type UploadSessionResponse struct {
	SessionID       string     `json:"session_id"`
	FileName        string     `json:"file_name"`
	Status          string     `json:"status"`
	Multipart       bool       `json:"multipart"`
	DeclaredSize    int64      `json:"declared_size"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	MediaID         string     `json:"media_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UploadedAt      *time.Time `json:"uploaded_at,omitempty"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
}
