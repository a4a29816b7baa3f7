package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{"pending to processing", JobPending, JobProcessing, true},
		{"pending to cancelled", JobPending, JobCancelled, true},
		{"pending to failed", JobPending, JobFailed, true},
		{"pending to completed skips processing", JobPending, JobCompleted, false},
		{"processing to completed", JobProcessing, JobCompleted, true},
		{"processing to failed", JobProcessing, JobFailed, true},
		{"processing to cancelled", JobProcessing, JobCancelled, true},
		{"completed is terminal", JobCompleted, JobCancelled, false},
		{"cancelled is terminal", JobCancelled, JobProcessing, false},
		{"failed is terminal", JobFailed, JobPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJobTransitionClearsStepOutsideProcessing(t *testing.T) {
	job := &TranscriptionJob{Status: JobProcessing, Step: StepTranscribing}

	assert.NoError(t, job.Transition(JobCompleted))
	assert.Equal(t, JobCompleted, job.Status)
	assert.Empty(t, job.Step)
}

func TestJobTransitionSameStatusIsNoop(t *testing.T) {
	job := &TranscriptionJob{Status: JobProcessing, Step: StepNormalizing}

	assert.NoError(t, job.Transition(JobProcessing))
	assert.Equal(t, StepNormalizing, job.Step)
}

func TestJobTransitionRejectsTerminalMoves(t *testing.T) {
	job := &TranscriptionJob{Status: JobCompleted}

	err := job.Transition(JobCancelled)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, JobCompleted, job.Status)
}

func TestJobStatusActive(t *testing.T) {
	assert.True(t, JobPending.Active())
	assert.True(t, JobProcessing.Active())
	assert.False(t, JobCompleted.Active())
	assert.False(t, JobFailed.Active())
	assert.False(t, JobCancelled.Active())
}

func TestValidQuality(t *testing.T) {
	assert.True(t, ValidQuality(QualityFast))
	assert.True(t, ValidQuality(QualityBalanced))
	assert.True(t, ValidQuality(QualityAccurate))
	assert.False(t, ValidQuality(Quality("ultra")))
	assert.False(t, ValidQuality(Quality("")))
}
