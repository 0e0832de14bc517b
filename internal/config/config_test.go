package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory default", cfg.Storage.Backend)
	}
	if cfg.Ingest.ChunkSize != 8000 || cfg.Ingest.Workers != 5 {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.Stores.UserFacts.Capacity != 50 || cfg.Stores.UserFacts.Threshold != 0.90 {
		t.Errorf("user facts defaults = %+v", cfg.Stores.UserFacts)
	}
	if cfg.Stores.Environments.Threshold != 0.75 {
		t.Errorf("environments threshold = %v", cfg.Stores.Environments.Threshold)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: s3
  s3:
    bucket: recall-prod
    region: eu-west-1
    prefix: memory/
embeddings:
  model: text-embedding-3-small
  request_timeout: 10s
ingest:
  chunk_size: 4000
stores:
  user_facts:
    capacity: 100
    threshold: 0.95
retrieval:
  top_k: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "recall-prod" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Embeddings.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", cfg.Embeddings.Model)
	}
	if cfg.Embeddings.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.Embeddings.RequestTimeout)
	}
	if cfg.Ingest.ChunkSize != 4000 {
		t.Errorf("chunk_size = %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Stores.UserFacts.Capacity != 100 || cfg.Stores.UserFacts.Threshold != 0.95 {
		t.Errorf("user facts = %+v", cfg.Stores.UserFacts)
	}
	// Unset sections keep their defaults.
	if cfg.Ingest.Workers != 5 {
		t.Errorf("workers = %d, want default preserved", cfg.Ingest.Workers)
	}
	if cfg.Completion.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want default preserved", cfg.Completion.MaxTokens)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
embeddings:
  api_key: from-file
completion:
  api_key: from-file
`)
	t.Setenv("OPENAI_API_KEY", "from-env-openai")
	t.Setenv("ANTHROPIC_API_KEY", "from-env-anthropic")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embeddings.APIKey != "from-env-openai" {
		t.Errorf("embeddings key = %q, env must win", cfg.Embeddings.APIKey)
	}
	if cfg.Completion.APIKey != "from-env-anthropic" {
		t.Errorf("completion key = %q, env must win", cfg.Completion.APIKey)
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  top_k: 9\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("top_k = %d, want value from $RECALL_CONFIG file", cfg.Retrieval.TopK)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing explicit config file did not fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "dynamo" }, false},
		{"threshold above one", func(c *Config) { c.Stores.Documents.Threshold = 1.5 }, false},
		{"negative threshold", func(c *Config) { c.Retrieval.Threshold = -0.1 }, false},
		{"negative workers", func(c *Config) { c.Ingest.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
