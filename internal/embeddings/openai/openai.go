// Package openai provides an embedding provider backed by OpenAI's
// embedding models.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/recall/internal/backoff"
	"github.com/haasonsaas/recall/internal/embeddings"
	"github.com/haasonsaas/recall/internal/observability"
)

// maxBatchSize bounds inputs per request on the ingest path.
const maxBatchSize = 100

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string // optional custom base URL
	Model   string // defaults to text-embedding-ada-002

	// MaxAttempts bounds retries per upstream request. Default 3.
	MaxAttempts int

	// RequestTimeout bounds each upstream request. Default 30s.
	RequestTimeout time.Duration
}

// Provider implements embeddings.Provider using OpenAI.
type Provider struct {
	client      *openai.Client
	model       string
	maxAttempts int
	timeout     time.Duration
	metrics     *observability.Metrics
}

var _ embeddings.Provider = (*Provider)(nil)

// New creates an OpenAI embedding provider.
func New(cfg Config, metrics *observability.Metrics) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AdaEmbeddingV2)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.RequestTimeout,
		metrics:     metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Dimension returns the embedding dimension for the configured model.
func (p *Provider) Dimension() int {
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	default:
		// text-embedding-ada-002 and text-embedding-3-small
		return 1536
	}
}

// MaxBatchSize returns the maximum texts per upstream request.
func (p *Provider) MaxBatchSize() int {
	return maxBatchSize
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting the input
// into requests of at most MaxBatchSize. Output order matches input order.
// Each upstream request is retried with backoff; a request that fails all
// attempts fails the whole call so positional alignment is never broken.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch at offset %d: %w", start, err)
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (p *Provider) embedRequest(ctx context.Context, batch []string) ([][]float32, error) {
	return backoff.Retry(ctx, backoff.Default(), p.maxAttempts, func(int) ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		resp, err := p.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(p.model),
		})
		p.metrics.RecordProviderRequest(p.Name(), "embed", start, err)
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(batch))
		}

		vectors := make([][]float32, len(resp.Data))
		for _, item := range resp.Data {
			vectors[item.Index] = item.Embedding
		}
		return vectors, nil
	})
}
