package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the advisor service.
type Config struct {
	// Server
	Port       int    `env:"PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AskTimeout int    `env:"ASK_TIMEOUT" envDefault:"60"` // seconds

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"` // "postgres", "sqlite" or "memory"
	DBURL         string `env:"DB_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/documents.db"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"` // "nats" or "none"
	QueueURL      string `env:"QUEUE_URL"`

	// Cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"redis"` // "redis", "memory" or "none"
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// LLM
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	TuningFile string `env:"TUNING_FILE"`
	Tuning     Tuning
}

// Tuning holds retrieval knobs that are rarely changed per deployment.
type Tuning struct {
	ChunkSize         int `yaml:"chunk_size"`
	ChunkOverlap      int `yaml:"chunk_overlap"`
	TopK              int `yaml:"top_k"`
	FallbackTopK      int `yaml:"fallback_top_k"`
	SearchConcurrency int `yaml:"search_concurrency"`
}

// DefaultTuning returns the built-in retrieval settings.
func DefaultTuning() Tuning {
	return Tuning{
		ChunkSize:         600,
		ChunkOverlap:      150,
		TopK:              8,
		FallbackTopK:      5,
		SearchConcurrency: 8,
	}
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		slog.Warn("failed to read tuning file; using defaults", "path", cfg.TuningFile, "err", err)
		tuning = DefaultTuning()
	}
	cfg.Tuning = tuning
	return cfg
}

// LoadTuning reads a YAML tuning file. An empty path or a missing file yields defaults.
func LoadTuning(path string) (Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTuning(), nil
		}
		return Tuning{}, err
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file: %w", err)
	}
	applyTuningDefaults(&t)
	return t, nil
}

func applyTuningDefaults(t *Tuning) {
	d := DefaultTuning()
	if t.ChunkSize <= 0 {
		t.ChunkSize = d.ChunkSize
	}
	if t.ChunkOverlap <= 0 || t.ChunkOverlap >= t.ChunkSize {
		t.ChunkOverlap = d.ChunkOverlap
	}
	if t.TopK <= 0 {
		t.TopK = d.TopK
	}
	if t.FallbackTopK <= 0 {
		t.FallbackTopK = d.FallbackTopK
	}
	if t.SearchConcurrency <= 0 {
		t.SearchConcurrency = d.SearchConcurrency
	}
}

// AskDeadline is the time budget for a single ask request.
func (c Config) AskDeadline() time.Duration {
	if c.AskTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AskTimeout) * time.Second
}

// CacheTTLDuration converts CacheTTL to a duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
