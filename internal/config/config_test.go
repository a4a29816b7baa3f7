package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, int64(64<<20), cfg.Storage.PartSizeBytes)
	assert.Equal(t, int64(200<<20), cfg.Storage.MultipartThresholdBytes)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.ChunkThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.SessionTTL)
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, "pool", cfg.Scheduler.Backend)
	assert.Equal(t, "whisper-1", cfg.Provider.OpenAIModel)

	require.Contains(t, cfg.Plans, "free")
	require.Contains(t, cfg.Plans, "pro")
	require.Contains(t, cfg.Plans, "business")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("CHUNK_DURATION", "5m")
	t.Setenv("UPLOAD_REAP_BATCH", "25")
	t.Setenv("STORAGE_MULTIPART_THRESHOLD_BYTES", "1048576")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.ChunkDuration)
	assert.Equal(t, 25, cfg.Pipeline.ReapBatch)
	assert.Equal(t, int64(1<<20), cfg.Storage.MultipartThresholdBytes)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("SCHEDULER_WORKERS", "lots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
}

func TestLoadPlansFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
free:
  name: free
  max_file_size_bytes: 1048576
  max_minutes_per_file: 10
  max_concurrent_jobs: 1
  daily_limit: 3
  allowed_qualities: [fast]
  allowed_export_formats: [txt]
enterprise:
  name: enterprise
  max_file_size_bytes: 10737418240
  max_minutes_per_file: 1200
  max_concurrent_jobs: 20
  daily_limit: 0
  allow_translation: true
  allowed_qualities: [fast, balanced, accurate]
  allowed_export_formats: [txt, srt, vtt, xlsx]
`), 0o644))
	t.Setenv("PLANS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	require.Contains(t, cfg.Plans, "enterprise")
	assert.Equal(t, int64(1<<20), cfg.Plans["free"].MaxFileSizeBytes)
	assert.Equal(t, 20, cfg.Plans["enterprise"].MaxConcurrentJobs)
	assert.True(t, cfg.Plans["enterprise"].AllowTranslation)
	assert.False(t, cfg.Plans["free"].AllowTranslation)
}

func TestLoadPlansRequiresFreeTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pro:\n  name: pro\n"), 0o644))
	t.Setenv("PLANS_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free")
}

func TestLoadPlansMissingFile(t *testing.T) {
	t.Setenv("PLANS_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}
