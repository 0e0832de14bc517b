// Package retrieval answers similarity queries over a memory store.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/haasonsaas/recall/internal/embeddings"
	"github.com/haasonsaas/recall/internal/memory"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/similarity"
)

const (
	// DefaultTopK is the result cap when the caller doesn't set one.
	DefaultTopK = 5

	// DefaultThreshold is the minimum score for a match to surface.
	DefaultThreshold = 0.75
)

// Match is one retrieved item with its similarity score against the
// query.
type Match struct {
	Text     string          `json:"text"`
	Score    float64         `json:"score"`
	Metadata memory.Metadata `json:"metadata"`
}

// Config tunes the service.
type Config struct {
	// TopK caps results per query; zero or negative means DefaultTopK.
	TopK int

	// Threshold is the strict minimum similarity; zero or negative
	// means DefaultThreshold.
	Threshold float64
}

// Service scores a query embedding against every stored item and
// returns the best matches above the threshold.
type Service struct {
	store     *memory.Store
	embedder  embeddings.Provider
	topK      int
	threshold float64
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// New creates a retrieval service over the given store and embedder.
func New(store *memory.Store, embedder embeddings.Provider, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// Query returns up to TopK items from owner's store whose similarity to
// the query strictly exceeds the threshold, highest score first. Ties
// break by later timestamp. Retrieval is best-effort: an embedding
// failure or an unreadable store yields an empty result, never an
// error, so callers degrade to answering without memory.
func (s *Service) Query(ctx context.Context, owner, query string) []Match {
	start := time.Now()
	defer s.metrics.RecordRetrieval(start)

	if query == "" {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn(ctx, "query embedding failed, returning no matches", "owner", owner, "error", err)
		return nil
	}

	idx, err := s.store.Load(ctx, owner)
	if err != nil {
		s.logger.Warn(ctx, "memory store unavailable, returning no matches", "owner", owner, "error", err)
		return nil
	}
	if len(idx.Texts) == 0 {
		return nil
	}

	var matches []Match
	for i := range idx.Texts {
		score := similarity.Cosine(vec, idx.Embeddings[i])
		if score > s.threshold {
			matches = append(matches, Match{
				Text:     idx.Texts[i],
				Score:    score,
				Metadata: idx.Metadata[i],
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Metadata.Timestamp() > matches[j].Metadata.Timestamp()
	})
	if len(matches) > s.topK {
		matches = matches[:s.topK]
	}

	s.logger.Debug(ctx, "query served",
		"owner", owner,
		"candidates", len(idx.Texts),
		"matches", len(matches))
	return matches
}
