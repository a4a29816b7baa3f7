package plan

import (
	"context"
	"fmt"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// Definition is the resolved limit set for one plan tier. It is loaded
// once at startup as part of the immutable configuration and passed
// explicitly, never looked up ambiently.
type Definition struct {
	Name                 string          `yaml:"name"`
	MaxFileSizeBytes     int64           `yaml:"max_file_size_bytes"`
	MaxMinutesPerFile    float64         `yaml:"max_minutes_per_file"`
	MaxConcurrentJobs    int             `yaml:"max_concurrent_jobs"`
	DailyLimit           int             `yaml:"daily_limit"` // 0 means unlimited
	AllowTranslation     bool            `yaml:"allow_translation"`
	AllowedQualities     []model.Quality `yaml:"allowed_qualities"`
	AllowedExportFormats []string        `yaml:"allowed_export_formats"`
}

// Table maps tier names to their definitions.
type Table map[string]Definition

// DefaultTable returns the compiled-in plan tiers. Deployments override
// them via the plans YAML file.
func DefaultTable() Table {
	return Table{
		"free": {
			Name:                 "free",
			MaxFileSizeBytes:     200 << 20,
			MaxMinutesPerFile:    30,
			MaxConcurrentJobs:    1,
			DailyLimit:           5,
			AllowTranslation:     false,
			AllowedQualities:     []model.Quality{model.QualityFast},
			AllowedExportFormats: []string{"txt"},
		},
		"pro": {
			Name:                 "pro",
			MaxFileSizeBytes:     2 << 30,
			MaxMinutesPerFile:    240,
			MaxConcurrentJobs:    3,
			DailyLimit:           50,
			AllowTranslation:     true,
			AllowedQualities:     []model.Quality{model.QualityFast, model.QualityBalanced, model.QualityAccurate},
			AllowedExportFormats: []string{"txt", "srt", "vtt", "xlsx"},
		},
		"business": {
			Name:                 "business",
			MaxFileSizeBytes:     5 << 30,
			MaxMinutesPerFile:    600,
			MaxConcurrentJobs:    10,
			DailyLimit:           0,
			AllowTranslation:     true,
			AllowedQualities:     []model.Quality{model.QualityFast, model.QualityBalanced, model.QualityAccurate},
			AllowedExportFormats: []string{"txt", "srt", "vtt", "xlsx"},
		},
	}
}

// Resolver maps a user to the plan definition in force for them. The
// billing system behind it is an external collaborator.
type Resolver interface {
	ResolvePlan(ctx context.Context, userID string) (Definition, error)
}

// TierLookup answers which tier name a user is on.
type TierLookup func(ctx context.Context, userID string) (string, error)

// TableResolver resolves plans from a fixed table using a tier lookup.
// Unknown tiers fall back to free.
type TableResolver struct {
	table  Table
	lookup TierLookup
}

func NewTableResolver(table Table, lookup TierLookup) *TableResolver {
	return &TableResolver{table: table, lookup: lookup}
}

func (r *TableResolver) ResolvePlan(ctx context.Context, userID string) (Definition, error) {
	tier, err := r.lookup(ctx, userID)
	if err != nil {
		return Definition{}, fmt.Errorf("resolve plan tier: %w", err)
	}
	if def, ok := r.table[tier]; ok {
		return def, nil
	}
	return r.table["free"], nil
}

// StaticResolver resolves every user to the same definition. Used in
// tests to inject alternate plan tables.
type StaticResolver struct {
	Def Definition
}

func (r StaticResolver) ResolvePlan(context.Context, string) (Definition, error) {
	return r.Def, nil
}
