// Package ingest drives the two write paths into memory: document
// ingestion (chunk, embed, analyze, store) and transcript ingestion
// (fact extraction from conversation messages).
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/recall/internal/analysis"
	"github.com/haasonsaas/recall/internal/blob"
	"github.com/haasonsaas/recall/internal/chunker"
	"github.com/haasonsaas/recall/internal/completion"
	"github.com/haasonsaas/recall/internal/embeddings"
	"github.com/haasonsaas/recall/internal/memory"
	"github.com/haasonsaas/recall/internal/observability"
)

const (
	// DefaultWorkers bounds concurrent chunk processing.
	DefaultWorkers = 5

	// analysisObjectName holds the merged document analysis next to the
	// owner's index.
	analysisObjectName = "analysis.json"

	// analysisWriteAttempts bounds the conditional-write loop for the
	// analysis object.
	analysisWriteAttempts = 3
)

// Config tunes the pipeline.
type Config struct {
	// ChunkSize is the per-chunk rune count for documents; zero or
	// negative means chunker.DefaultChunkSize.
	ChunkSize int

	// Workers bounds concurrent chunk processing; zero or negative
	// means DefaultWorkers.
	Workers int

	// FactBatchSize groups transcript messages per extraction request;
	// zero or negative means DefaultFactBatchSize.
	FactBatchSize int

	// MaxFacts caps facts stored per transcript run; zero or negative
	// means DefaultMaxFacts.
	MaxFacts int
}

// Pipeline coordinates chunking, embedding, analysis, and persistence.
type Pipeline struct {
	cfg       Config
	embedder  embeddings.Provider
	completer completion.Provider
	analyzer  *analysis.Analyzer
	docs      *memory.Store
	facts     *memory.Store
	blob      blob.Store
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// New creates a pipeline. docs receives document chunks, facts receives
// extracted user facts, and b additionally holds merged analyses.
func New(cfg Config, embedder embeddings.Provider, completer completion.Provider, analyzer *analysis.Analyzer, docs, facts *memory.Store, b blob.Store, logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.FactBatchSize <= 0 {
		cfg.FactBatchSize = DefaultFactBatchSize
	}
	if cfg.MaxFacts <= 0 {
		cfg.MaxFacts = DefaultMaxFacts
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		cfg:       cfg,
		embedder:  embedder,
		completer: completer,
		analyzer:  analyzer,
		docs:      docs,
		facts:     facts,
		blob:      b,
		logger:    logger,
		metrics:   metrics,
	}
}

// DocumentResult summarizes one document ingestion.
type DocumentResult struct {
	Chunks        int
	Embedded      int
	FailedChunks  int
	Analysis      analysis.Record
	DegradedCount int
	Write         *memory.WriteResult
}

// chunkOutcome carries one worker's result back to the collector.
type chunkOutcome struct {
	index     int
	embedding []float32
	record    analysis.Record
	degraded  bool
	embedErr  error
}

// IngestDocument chunks content, embeds and analyzes each chunk
// concurrently, stores the embedded chunks under the document's owner
// key, and persists the merged analysis beside the index.
//
// Embedding and analysis fail independently per chunk: a chunk whose
// analysis degrades still stores its embedding, and a chunk whose
// embedding fails still contributes its analysis to the merge. The run
// fails only when content is empty or no chunk embeds at all, in which
// case nothing is written.
func (p *Pipeline) IngestDocument(ctx context.Context, docKey, content string) (*DocumentResult, error) {
	if strings.TrimSpace(content) == "" {
		p.metrics.RecordIngest("document", "empty")
		return nil, fmt.Errorf("ingest %q: empty content", docKey)
	}

	chunks := chunker.Split(content, p.cfg.ChunkSize)
	p.logger.Info(ctx, "document chunked", "key", docKey, "chunks", len(chunks), "chunk_size", p.cfg.ChunkSize)

	outcomes := p.processChunks(ctx, chunks)

	now := time.Now().UTC().Format(time.RFC3339)
	var items []memory.Item
	records := make([]analysis.Record, 0, len(outcomes))
	embedded, failed, degraded := 0, 0, 0
	for _, out := range outcomes {
		records = append(records, out.record)
		if out.degraded {
			degraded++
		}
		if out.embedErr != nil {
			failed++
			continue
		}
		embedded++
		items = append(items, memory.Item{
			Text:      chunks[out.index],
			Embedding: out.embedding,
			Metadata: memory.Metadata{
				"type":        "document_chunk",
				"source":      docKey,
				"chunk_index": out.index,
				"timestamp":   now,
			},
		})
	}

	if embedded == 0 {
		p.metrics.RecordIngest("document", "error")
		return nil, fmt.Errorf("ingest %q: no chunk could be embedded", docKey)
	}

	merged := analysis.MergeRecords(records)
	owner := DocumentOwner(docKey)

	if err := p.writeAnalysis(ctx, owner, docKey, merged, len(chunks), failed); err != nil {
		p.metrics.RecordIngest("document", "error")
		return nil, err
	}

	res, err := p.docs.Append(ctx, owner, items)
	if err != nil {
		p.metrics.RecordIngest("document", "error")
		return nil, fmt.Errorf("store document chunks for %q: %w", docKey, err)
	}

	p.metrics.RecordIngest("document", "success")
	p.logger.Info(ctx, "document ingested",
		"key", docKey,
		"chunks", len(chunks),
		"embedded", embedded,
		"failed", failed,
		"stored", res.Stored)
	return &DocumentResult{
		Chunks:        len(chunks),
		Embedded:      embedded,
		FailedChunks:  failed,
		Analysis:      merged,
		DegradedCount: degraded,
		Write:         res,
	}, nil
}

// processChunks runs a bounded worker pool over the chunks. Within a
// chunk, embedding and analysis run concurrently.
func (p *Pipeline) processChunks(ctx context.Context, chunks []string) []chunkOutcome {
	indices := make(chan int)
	results := make(chan chunkOutcome, len(chunks))

	var wg sync.WaitGroup
	workers := p.cfg.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results <- p.processChunk(ctx, i, chunks[i])
			}
		}()
	}

	for i := range chunks {
		indices <- i
	}
	close(indices)
	wg.Wait()
	close(results)

	outcomes := make([]chunkOutcome, 0, len(chunks))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	return outcomes
}

func (p *Pipeline) processChunk(ctx context.Context, index int, chunk string) chunkOutcome {
	out := chunkOutcome{index: index}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.embedding, out.embedErr = p.embedder.Embed(ctx, chunk)
		status := "success"
		if out.embedErr != nil {
			status = "error"
			p.logger.Warn(ctx, "chunk embedding failed", "chunk_index", index, "error", out.embedErr)
		}
		p.metrics.RecordChunk("embedding", status)
	}()
	go func() {
		defer wg.Done()
		res := p.analyzer.Analyze(ctx, chunk)
		out.record = res.Record
		out.degraded = res.Degraded
		status := "success"
		if res.Degraded {
			status = "error"
		}
		p.metrics.RecordChunk("analysis", status)
	}()
	wg.Wait()
	return out
}

// analysisDocument is the persisted merged-analysis object.
type analysisDocument struct {
	analysis.Record
	DocumentKey  string `json:"document_key"`
	ChunkCount   int    `json:"chunk_count"`
	FailedChunks int    `json:"failed_chunks"`
	UpdatedAt    string `json:"updated_at"`
}

// writeAnalysis persists the merged analysis as a conditional replace
// against the version observed at read time, retrying on conflict.
func (p *Pipeline) writeAnalysis(ctx context.Context, owner, docKey string, merged analysis.Record, chunkCount, failedChunks int) error {
	key := path.Join(owner, analysisObjectName)
	data, err := json.Marshal(analysisDocument{
		Record:       merged,
		DocumentKey:  docKey,
		ChunkCount:   chunkCount,
		FailedChunks: failedChunks,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	for attempt := 1; attempt <= analysisWriteAttempts; attempt++ {
		version := ""
		obj, err := p.blob.Get(ctx, key)
		if err != nil && !errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("read analysis %q: %w", key, err)
		}
		if obj != nil {
			version = obj.Version
		}

		_, err = p.blob.Put(ctx, key, data, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, blob.ErrVersionConflict) {
			return fmt.Errorf("persist analysis %q: %w", key, err)
		}
		p.logger.Warn(ctx, "concurrent analysis write, refetching", "key", key, "attempt", attempt)
	}
	return fmt.Errorf("persist analysis %q: %w", key, blob.ErrVersionConflict)
}

// DocumentOwner maps a document key to its owner key: the key with the
// file extension trimmed, so "docs/report.pdf" owns "docs/report".
func DocumentOwner(docKey string) string {
	ext := path.Ext(docKey)
	return strings.TrimSuffix(docKey, ext)
}
