// Package config loads and validates the service configuration from a
// YAML file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/recall/internal/blob"
	"github.com/haasonsaas/recall/internal/chunker"
	"github.com/haasonsaas/recall/internal/ingest"
	"github.com/haasonsaas/recall/internal/memory"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/retrieval"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "RECALL_CONFIG"

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	// Backend is "s3" or "memory". Memory is for development only;
	// nothing survives the process.
	Backend string        `yaml:"backend"`
	S3      blob.S3Config `yaml:"s3"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CompletionConfig configures the completion provider.
type CompletionConfig struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	Workers       int `yaml:"workers"`
	FactBatchSize int `yaml:"fact_batch_size"`
	MaxFacts      int `yaml:"max_facts"`
}

// StoreConfig tunes one memory store kind.
type StoreConfig struct {
	Capacity  int     `yaml:"capacity"`
	Threshold float64 `yaml:"threshold"`
}

// StoresConfig holds per-kind store tuning. The kinds differ in how
// aggressive dedup should be: user facts are short and repetitive,
// environment descriptions drift, documents sit in between.
type StoresConfig struct {
	UserFacts    StoreConfig `yaml:"user_facts"`
	Documents    StoreConfig `yaml:"documents"`
	Environments StoreConfig `yaml:"environments"`
}

// RetrievalConfig tunes query behavior.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the
	// endpoint.
	Addr string `yaml:"addr"`
}

// Config is the full service configuration.
type Config struct {
	Storage    StorageConfig           `yaml:"storage"`
	Embeddings EmbeddingsConfig        `yaml:"embeddings"`
	Completion CompletionConfig        `yaml:"completion"`
	Ingest     IngestConfig            `yaml:"ingest"`
	Stores     StoresConfig            `yaml:"stores"`
	Retrieval  RetrievalConfig         `yaml:"retrieval"`
	Logging    observability.LogConfig `yaml:"logging"`
	Metrics    MetricsConfig           `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: "memory"},
		Embeddings: EmbeddingsConfig{
			MaxAttempts:    3,
			RequestTimeout: 30 * time.Second,
		},
		Completion: CompletionConfig{
			MaxTokens:      1000,
			MaxAttempts:    3,
			RequestTimeout: 60 * time.Second,
		},
		Ingest: IngestConfig{
			ChunkSize:     chunker.DefaultChunkSize,
			Workers:       ingest.DefaultWorkers,
			FactBatchSize: ingest.DefaultFactBatchSize,
			MaxFacts:      ingest.DefaultMaxFacts,
		},
		Stores: StoresConfig{
			UserFacts:    StoreConfig{Capacity: memory.DefaultCapacity, Threshold: 0.90},
			Documents:    StoreConfig{Threshold: 0.80},
			Environments: StoreConfig{Threshold: 0.75},
		},
		Retrieval: RetrievalConfig{
			TopK:      retrieval.DefaultTopK,
			Threshold: retrieval.DefaultThreshold,
		},
		Logging: observability.LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from path, or from $RECALL_CONFIG when path
// is empty, layering file values over defaults and environment
// overrides over both. An empty path with no env var yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file. API keys are
// normally provided this way rather than written into config files.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" && c.Storage.S3.AccessKeyID == "" {
		c.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && c.Storage.S3.SecretAccessKey == "" {
		c.Storage.S3.SecretAccessKey = v
	}
}

// Validate rejects configurations that cannot produce a working
// service.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("config: storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	for _, s := range []struct {
		name      string
		threshold float64
	}{
		{"stores.user_facts", c.Stores.UserFacts.Threshold},
		{"stores.documents", c.Stores.Documents.Threshold},
		{"stores.environments", c.Stores.Environments.Threshold},
		{"retrieval", c.Retrieval.Threshold},
	} {
		if s.threshold < 0 || s.threshold > 1 {
			return fmt.Errorf("config: %s.threshold %v outside [0, 1]", s.name, s.threshold)
		}
	}

	if c.Ingest.ChunkSize < 0 {
		return fmt.Errorf("config: ingest.chunk_size must not be negative")
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("config: ingest.workers must not be negative")
	}
	return nil
}
