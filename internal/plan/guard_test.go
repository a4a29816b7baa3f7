package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

func proPlan() Definition {
	return DefaultTable()["pro"]
}

func TestEnsureFileSize(t *testing.T) {
	p := Definition{MaxFileSizeBytes: 1000}

	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"under limit", 999, false},
		{"exactly at limit", 1000, false},
		{"one byte over", 1001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureFileSize(p, tt.size)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureAudioDuration(t *testing.T) {
	p := Definition{MaxMinutesPerFile: 30}

	assert.NoError(t, EnsureAudioDuration(p, 1800))
	err := EnsureAudioDuration(p, 1800.5)
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestEnsureConcurrentJobs(t *testing.T) {
	p := Definition{MaxConcurrentJobs: 3}

	assert.NoError(t, EnsureConcurrentJobs(p, 2))
	assert.Error(t, EnsureConcurrentJobs(p, 3))
	assert.Error(t, EnsureConcurrentJobs(p, 4))
}

func TestEnsureDailyLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		count   int
		wantErr bool
	}{
		{"below limit", 5, 4, false},
		{"at limit", 5, 5, true},
		{"zero means unlimited", 0, 100000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureDailyLimit(Definition{DailyLimit: tt.limit}, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureQuality(t *testing.T) {
	free := DefaultTable()["free"]

	assert.NoError(t, EnsureQuality(free, model.QualityFast))
	err := EnsureQuality(free, model.QualityAccurate)
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestEnsureExportFormat(t *testing.T) {
	free := DefaultTable()["free"]

	assert.NoError(t, EnsureExportFormat(free, "txt"))
	assert.Error(t, EnsureExportFormat(free, "xlsx"))
	assert.NoError(t, EnsureExportFormat(proPlan(), "xlsx"))
}

func TestEnsureTranslationAllowed(t *testing.T) {
	assert.Error(t, EnsureTranslationAllowed(DefaultTable()["free"]))
	assert.NoError(t, EnsureTranslationAllowed(proPlan()))
}

func TestTableResolver(t *testing.T) {
	tests := []struct {
		name     string
		tier     string
		wantName string
	}{
		{"known tier", "pro", "pro"},
		{"unknown tier falls back to free", "enterprise", "free"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTableResolver(DefaultTable(), func(ctx context.Context, userID string) (string, error) {
				return tt.tier, nil
			})
			def, err := r.ResolvePlan(context.Background(), "u1")
			assert.NoError(t, err)
			assert.Equal(t, tt.wantName, def.Name)
		})
	}
}

func TestTableResolverLookupError(t *testing.T) {
	r := NewTableResolver(DefaultTable(), func(ctx context.Context, userID string) (string, error) {
		return "", errors.New("billing down")
	})
	_, err := r.ResolvePlan(context.Background(), "u1")
	assert.Error(t, err)
}
