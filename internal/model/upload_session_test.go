package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from UploadSessionStatus
		to   UploadSessionStatus
		ok   bool
	}{
		{"created to uploading", UploadCreated, UploadUploading, true},
		{"created straight to uploaded", UploadCreated, UploadUploaded, true},
		{"uploading to uploaded", UploadUploading, UploadUploaded, true},
		{"uploaded to validating", UploadUploaded, UploadValidating, true},
		{"uploaded back to uploading after failed finalize", UploadUploaded, UploadUploading, true},
		{"validating to ready", UploadValidating, UploadReady, true},
		{"validating to invalid", UploadValidating, UploadInvalid, true},
		{"created to ready skips validation", UploadCreated, UploadReady, false},
		{"uploading to validating skips uploaded", UploadUploading, UploadValidating, false},
		{"ready is terminal", UploadReady, UploadAborted, false},
		{"aborted is terminal", UploadAborted, UploadUploading, false},
		{"expired is terminal", UploadExpired, UploadCreated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestAbortReachableFromEveryNonTerminalState(t *testing.T) {
	for _, from := range []UploadSessionStatus{UploadCreated, UploadUploading, UploadUploaded, UploadValidating} {
		assert.True(t, from.CanTransition(UploadAborted), "abort from %s", from)
		assert.True(t, from.CanTransition(UploadExpired), "expire from %s", from)
	}
}

func TestUploadStatusTerminal(t *testing.T) {
	terminal := []UploadSessionStatus{UploadReady, UploadInvalid, UploadAborted, UploadExpired}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s", s)
	}
	active := []UploadSessionStatus{UploadCreated, UploadUploading, UploadUploaded, UploadValidating}
	for _, s := range active {
		assert.False(t, s.Terminal(), "%s", s)
	}
}

func TestSessionMultipart(t *testing.T) {
	s := &UploadSession{}
	assert.False(t, s.Multipart())
	s.UploadID = "mp-123"
	assert.True(t, s.Multipart())
}
