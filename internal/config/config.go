package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
)

// Config is the immutable process configuration, loaded once at startup
// and passed explicitly to every component that needs it.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Media     MediaConfig
	Pipeline  PipelineConfig
	Webhook   WebhookConfig
	Scheduler SchedulerConfig
	Provider  ProviderConfig
	Plans     plan.Table
}

type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string
	// DSN is the driver-specific connection string.
	DSN string
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UseSSL          bool
	PresignExpiry   time.Duration
	PartSizeBytes   int64
	MultipartThresholdBytes int64
}

type MediaConfig struct {
	FFmpegPath     string
	FFprobePath    string
	ConvertTimeout time.Duration
	ScratchDir     string
}

type PipelineConfig struct {
	// Audio longer than ChunkThreshold is split into ChunkDuration pieces
	// before transcription.
	ChunkThreshold time.Duration
	ChunkDuration  time.Duration
	// SessionTTL bounds how long an upload session may stay non-Ready.
	SessionTTL time.Duration
	// ReapInterval is the sweep period for expired sessions.
	ReapInterval time.Duration
	ReapBatch    int
}

type WebhookConfig struct {
	MaxAttempts    int
	RequestTimeout time.Duration
	// Backoff holds the delay before attempt n+1; the last entry repeats.
	Backoff []time.Duration
}

type SchedulerConfig struct {
	// Backend is "pool", "redis" or "temporal".
	Backend     string
	Workers     int
	MaxRetries  int
	RedisAddr   string
	RedisQueue  string
	TemporalHostPort  string
	TemporalNamespace string
	TemporalTaskQueue string
}

type ProviderConfig struct {
	OpenAIKey   string
	OpenAIModel string
	// TranslateBatchSize caps texts per translation call, provider-bound.
	TranslateBatchSize int
}

// Load reads .env (when present), the environment and the optional plans
// YAML file into a Config.
func Load() (*Config, error) {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load %s: %w", envPath, err)
			}
			break
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("HTTP_HOST", "0.0.0.0"),
			Port:         getEnv("HTTP_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "file:data/scribe.db?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"),
		},
		Storage: StorageConfig{
			Endpoint:                getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:               getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:               getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:                  getEnv("MINIO_BUCKET", "scribe-media"),
			UseSSL:                  getEnv("MINIO_USE_SSL", "false") == "true",
			PresignExpiry:           getDuration("STORAGE_PRESIGN_EXPIRY", time.Hour),
			PartSizeBytes:           getInt64("STORAGE_PART_SIZE_BYTES", 64<<20),
			MultipartThresholdBytes: getInt64("STORAGE_MULTIPART_THRESHOLD_BYTES", 200<<20),
		},
		Media: MediaConfig{
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
			ConvertTimeout: getDuration("FFMPEG_TIMEOUT", 10*time.Minute),
			ScratchDir:     getEnv("MEDIA_SCRATCH_DIR", os.TempDir()),
		},
		Pipeline: PipelineConfig{
			ChunkThreshold: getDuration("CHUNK_THRESHOLD", 10*time.Minute),
			ChunkDuration:  getDuration("CHUNK_DURATION", 10*time.Minute),
			SessionTTL:     getDuration("UPLOAD_SESSION_TTL", 24*time.Hour),
			ReapInterval:   getDuration("UPLOAD_REAP_INTERVAL", 15*time.Minute),
			ReapBatch:      getInt("UPLOAD_REAP_BATCH", 50),
		},
		Webhook: WebhookConfig{
			MaxAttempts:    getInt("WEBHOOK_MAX_ATTEMPTS", 5),
			RequestTimeout: getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			Backoff: []time.Duration{
				0, time.Minute, 5 * time.Minute, 30 * time.Minute, 120 * time.Minute,
			},
		},
		Scheduler: SchedulerConfig{
			Backend:           getEnv("SCHEDULER_BACKEND", "pool"),
			Workers:           getInt("SCHEDULER_WORKERS", 8),
			MaxRetries:        getInt("SCHEDULER_MAX_RETRIES", 3),
			RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
			RedisQueue:        getEnv("REDIS_QUEUE", "scribe:tasks"),
			TemporalHostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "scribe-pipeline"),
		},
		Provider: ProviderConfig{
			OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:        getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
			TranslateBatchSize: getInt("TRANSLATE_BATCH_SIZE", 100),
		},
	}

	plans, err := loadPlans(os.Getenv("PLANS_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Plans = plans

	return cfg, nil
}

// loadPlans reads the plan table from path, falling back to the
// compiled-in defaults when no file is configured.
func loadPlans(path string) (plan.Table, error) {
	if path == "" {
		return plan.DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var table plan.Table
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if _, ok := table["free"]; !ok {
		return nil, fmt.Errorf("plans file %s must define a %q tier", path, "free")
	}
	return table, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
