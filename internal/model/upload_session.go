package model

import (
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

// UploadSessionStatus tracks a session through the transfer state machine.
type UploadSessionStatus string

const (
	UploadCreated    UploadSessionStatus = "created"
	UploadUploading  UploadSessionStatus = "uploading"
	UploadUploaded   UploadSessionStatus = "uploaded"
	UploadValidating UploadSessionStatus = "validating"
	UploadReady      UploadSessionStatus = "ready"
	UploadInvalid    UploadSessionStatus = "invalid"
	UploadAborted    UploadSessionStatus = "aborted"
	UploadExpired    UploadSessionStatus = "expired"
)

// uploadTransitions is the single source of truth for legal status moves.
// Aborted and Expired are reachable from every non-terminal state.
var uploadTransitions = map[UploadSessionStatus][]UploadSessionStatus{
	UploadCreated:    {UploadUploading, UploadUploaded, UploadAborted, UploadExpired},
	UploadUploading:  {UploadUploaded, UploadAborted, UploadExpired},
	UploadUploaded:   {UploadValidating, UploadUploading, UploadAborted, UploadExpired},
	UploadValidating: {UploadReady, UploadInvalid, UploadAborted, UploadExpired},
}

// Terminal reports whether the status admits no further transitions.
func (s UploadSessionStatus) Terminal() bool {
	switch s {
	case UploadReady, UploadInvalid, UploadAborted, UploadExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s UploadSessionStatus) CanTransition(next UploadSessionStatus) bool {
	for _, allowed := range uploadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// UploadSession tracks one file's transfer and validation lifecycle.
// It is owned exclusively by the upload session manager; the job
// orchestrator only reads it once Ready.
type UploadSession struct {
	ID              string              `json:"id" db:"id"`
	UserID          string              `json:"user_id" db:"user_id"`
	FileName        string              `json:"file_name" db:"file_name"`
	ContentType     string              `json:"content_type" db:"content_type"`
	DeclaredSize    int64               `json:"declared_size" db:"declared_size"`
	StorageKey      string              `json:"storage_key" db:"storage_key"`
	UploadID        string              `json:"upload_id,omitempty" db:"upload_id"`
	CompletedParts  []int               `json:"completed_parts,omitempty" db:"completed_parts"`
	Status          UploadSessionStatus `json:"status" db:"status"`
	ErrorMessage    string              `json:"error_message,omitempty" db:"error_message"`
	DurationSeconds float64             `json:"duration_seconds,omitempty" db:"duration_seconds"`
	MediaID         string              `json:"media_id,omitempty" db:"media_id"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UploadedAt      *time.Time          `json:"uploaded_at,omitempty" db:"uploaded_at"`
	ValidatedAt     *time.Time          `json:"validated_at,omitempty" db:"validated_at"`
	ExpiresAt       time.Time           `json:"expires_at" db:"expires_at"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// Multipart reports whether the session uses a multipart transfer.
func (s *UploadSession) Multipart() bool {
	return s.UploadID != ""
}

// ExpiredAt reports whether the session has passed its expiry. A session
// past expiry is terminal regardless of its recorded status.
func (s *UploadSession) ExpiredAt(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.ExpiresAt)
}

// Transition validates and applies a status change. Illegal moves,
// including any move out of a terminal state, are rejected centrally here
// rather than at call sites.
func (s *UploadSession) Transition(next UploadSessionStatus) error {
	if s.Status == next {
		return nil
	}
	if !s.Status.CanTransition(next) {
		return apperr.Conflict("upload session cannot move from " + string(s.Status) + " to " + string(next))
	}
	s.Status = next
	return nil
}
