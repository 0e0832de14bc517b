package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/recall/internal/analysis"
	"github.com/haasonsaas/recall/internal/blob"
	"github.com/haasonsaas/recall/internal/completion/anthropic"
	"github.com/haasonsaas/recall/internal/config"
	"github.com/haasonsaas/recall/internal/embeddings/openai"
	"github.com/haasonsaas/recall/internal/ingest"
	"github.com/haasonsaas/recall/internal/memory"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/retrieval"
)

// app wires the configured providers, stores, and pipeline together for
// one command invocation.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	blob     blob.Store
	embedder *openai.Provider
	pipeline *ingest.Pipeline
	facts    *memory.Store
	docs     *memory.Store
	envs     *memory.Store
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()

	var store blob.Store
	switch cfg.Storage.Backend {
	case "s3":
		store, err = blob.NewS3Store(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
	default:
		store = blob.NewMemoryStore()
	}

	embedder, err := openai.New(openai.Config{
		APIKey:         cfg.Embeddings.APIKey,
		BaseURL:        cfg.Embeddings.BaseURL,
		Model:          cfg.Embeddings.Model,
		MaxAttempts:    cfg.Embeddings.MaxAttempts,
		RequestTimeout: cfg.Embeddings.RequestTimeout,
	}, metrics)
	if err != nil {
		return nil, err
	}

	completer, err := anthropic.New(anthropic.Config{
		APIKey:         cfg.Completion.APIKey,
		Model:          cfg.Completion.Model,
		MaxTokens:      cfg.Completion.MaxTokens,
		MaxAttempts:    cfg.Completion.MaxAttempts,
		RequestTimeout: cfg.Completion.RequestTimeout,
	}, metrics)
	if err != nil {
		return nil, err
	}

	facts := memory.New(store, memory.Config{
		Capacity:  cfg.Stores.UserFacts.Capacity,
		Threshold: cfg.Stores.UserFacts.Threshold,
	}, logger, metrics)
	docs := memory.New(store, memory.Config{
		Capacity:  cfg.Stores.Documents.Capacity,
		Threshold: cfg.Stores.Documents.Threshold,
	}, logger, metrics)
	envs := memory.New(store, memory.Config{
		Capacity:  cfg.Stores.Environments.Capacity,
		Threshold: cfg.Stores.Environments.Threshold,
	}, logger, metrics)

	analyzer := analysis.NewAnalyzer(completer, logger)
	pipeline := ingest.New(ingest.Config{
		ChunkSize:     cfg.Ingest.ChunkSize,
		Workers:       cfg.Ingest.Workers,
		FactBatchSize: cfg.Ingest.FactBatchSize,
		MaxFacts:      cfg.Ingest.MaxFacts,
	}, embedder, completer, analyzer, docs, facts, store, logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		blob:     store,
		embedder: embedder,
		pipeline: pipeline,
		facts:    facts,
		docs:     docs,
		envs:     envs,
	}, nil
}

// storeByKind maps the --store flag to a memory store.
func (a *app) storeByKind(kind string) (*memory.Store, error) {
	switch kind {
	case "facts":
		return a.facts, nil
	case "documents":
		return a.docs, nil
	case "environments":
		return a.envs, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q (want facts, documents, or environments)", kind)
	}
}

func requestContext(cmd *cobra.Command) context.Context {
	return observability.WithRequestID(cmd.Context(), uuid.NewString())
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

func runIngestFile(cmd *cobra.Command, configPath, filePath, key string) error {
	ctx := requestContext(cmd)
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %q: %w", filePath, err)
	}
	if key == "" {
		key = filepath.Base(filePath)
	}

	res, err := a.pipeline.IngestDocument(ctx, key, string(content))
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"key":           key,
		"chunks":        res.Chunks,
		"embedded":      res.Embedded,
		"failed_chunks": res.FailedChunks,
		"degraded":      res.DegradedCount,
		"stored":        res.Write.Stored,
		"written":       res.Write.Written,
		"duplicates":    res.Write.DuplicatesRemoved,
		"summary":       res.Analysis.Summary,
		"topics":        res.Analysis.Topics,
	})
}

func runIngestTranscript(cmd *cobra.Command, configPath, filePath, username, conversationID string) error {
	ctx := requestContext(cmd)
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %q: %w", filePath, err)
	}
	var messages []ingest.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("parse %q: %w", filePath, err)
	}

	res, err := a.pipeline.IngestTranscript(ctx, username, conversationID, messages)
	if err != nil {
		return err
	}
	out := map[string]any{
		"batches":        res.Batches,
		"failed_batches": res.FailedBatches,
		"facts":          res.Facts,
	}
	if res.Write != nil {
		out["stored"] = res.Write.Stored
		out["written"] = res.Write.Written
		out["duplicates"] = res.Write.DuplicatesRemoved
	}
	return printJSON(cmd, out)
}

func runQuery(cmd *cobra.Command, configPath, query, owner, kind string, topK int) error {
	ctx := requestContext(cmd)
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	store, err := a.storeByKind(kind)
	if err != nil {
		return err
	}
	if topK <= 0 {
		topK = a.cfg.Retrieval.TopK
	}

	svc := retrieval.New(store, a.embedder, retrieval.Config{
		TopK:      topK,
		Threshold: a.cfg.Retrieval.Threshold,
	}, a.logger, a.metrics)

	matches := svc.Query(ctx, owner, query)
	return printJSON(cmd, map[string]any{
		"owner":   owner,
		"matches": matches,
	})
}

func runStats(cmd *cobra.Command, configPath, owner, kind string) error {
	ctx := requestContext(cmd)
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	store, err := a.storeByKind(kind)
	if err != nil {
		return err
	}
	idx, err := store.Load(ctx, owner)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"owner":      owner,
		"total":      idx.Stats.Total,
		"duplicates": idx.Stats.DuplicatesRemoved,
		"sources":    idx.Stats.Sources,
		"updated_at": idx.UpdatedAt,
	})
}
