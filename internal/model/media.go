package model

import (
	"strings"
	"time"
)

// MediaType distinguishes audio-only files from video containers.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// MediaTypeFromContentType maps a declared MIME type to a MediaType,
// defaulting to audio when the type is missing or unrecognized.
func MediaTypeFromContentType(contentType string) MediaType {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return MediaVideo
	}
	return MediaAudio
}

// MediaFile is the durable record of an ingested file. Exactly one is
// created when a Ready upload session is promoted.
type MediaFile struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	FileName        string    `json:"file_name" db:"file_name"`
	ContentType     string    `json:"content_type" db:"content_type"`
	StorageKey      string    `json:"storage_key" db:"storage_key"`
	AudioKey        string    `json:"audio_key,omitempty" db:"audio_key"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	Type            MediaType `json:"type" db:"type"`
	DurationSeconds float64   `json:"duration_seconds,omitempty" db:"duration_seconds"`
	SessionID       string    `json:"session_id" db:"session_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

func (MediaFile) TableName() string {
	return "media_files"
}

// HasCanonicalAudio reports whether normalization already produced the
// mono 16kHz PCM stream for this file.
func (m *MediaFile) HasCanonicalAudio() bool {
	return m.AudioKey != ""
}
