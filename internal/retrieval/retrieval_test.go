package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/recall/internal/blob"
	"github.com/haasonsaas/recall/internal/memory"
)

// stubEmbedder returns a fixed vector for any text.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := s.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Name() string      { return "stub" }
func (s *stubEmbedder) Dimension() int    { return len(s.vec) }
func (s *stubEmbedder) MaxBatchSize() int { return 100 }

func seedStore(t *testing.T, items []memory.Item) *memory.Store {
	t.Helper()
	store := memory.New(blob.NewMemoryStore(), memory.Config{Capacity: 50, Threshold: 0.99}, nil, nil)
	if len(items) > 0 {
		if _, err := store.Append(context.Background(), "alice", items); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func item(text string, embedding []float32, ts string) memory.Item {
	return memory.Item{
		Text:      text,
		Embedding: embedding,
		Metadata:  memory.Metadata{"timestamp": ts, "source": "conversation:seed"},
	}
}

func TestQuery_RanksByScore(t *testing.T) {
	store := seedStore(t, []memory.Item{
		item("exact match", []float32{1, 0, 0}, "2024-01-01T00:00:00Z"),
		item("close match", []float32{0.9, 0.4, 0}, "2024-01-02T00:00:00Z"),
		item("unrelated", []float32{0, 0, 1}, "2024-01-03T00:00:00Z"),
	})
	svc := New(store, &stubEmbedder{vec: []float32{1, 0, 0}}, Config{TopK: 5, Threshold: 0.75}, nil, nil)

	got := svc.Query(context.Background(), "alice", "anything")
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2 (unrelated item filtered)", len(got))
	}
	if got[0].Text != "exact match" || got[1].Text != "close match" {
		t.Errorf("order = [%q, %q], want score-descending", got[0].Text, got[1].Text)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %f <= %f", got[0].Score, got[1].Score)
	}
}

func TestQuery_ThresholdIsStrict(t *testing.T) {
	// An item scoring exactly at the threshold must not surface.
	store := seedStore(t, []memory.Item{
		item("borderline", []float32{1, 0}, "2024-01-01T00:00:00Z"),
	})
	svc := New(store, &stubEmbedder{vec: []float32{1, 0}}, Config{TopK: 5, Threshold: 1.0}, nil, nil)

	if got := svc.Query(context.Background(), "alice", "q"); len(got) != 0 {
		t.Errorf("score == threshold surfaced %d matches, want 0", len(got))
	}
}

func TestQuery_TopKCapsResults(t *testing.T) {
	items := []memory.Item{
		item("a", []float32{1, 0.01}, "2024-01-01T00:00:00Z"),
		item("b", []float32{1, 0.02}, "2024-01-02T00:00:00Z"),
		item("c", []float32{1, 0.03}, "2024-01-03T00:00:00Z"),
	}
	store := seedStore(t, items)
	svc := New(store, &stubEmbedder{vec: []float32{1, 0}}, Config{TopK: 2, Threshold: 0.5}, nil, nil)

	if got := svc.Query(context.Background(), "alice", "q"); len(got) != 2 {
		t.Errorf("matches = %d, want capped at 2", len(got))
	}
}

func TestQuery_TieBreaksByLaterTimestamp(t *testing.T) {
	store := seedStore(t, []memory.Item{
		item("older", []float32{1, 0}, "2024-01-01T00:00:00Z"),
		item("newer", []float32{1, 0}, "2024-06-01T00:00:00Z"),
	})
	svc := New(store, &stubEmbedder{vec: []float32{1, 0}}, Config{TopK: 5, Threshold: 0.5}, nil, nil)

	got := svc.Query(context.Background(), "alice", "q")
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	if got[0].Text != "newer" {
		t.Errorf("equal-score tie went to %q, want newer timestamp first", got[0].Text)
	}
}

func TestQuery_EmptyStoreReturnsNothing(t *testing.T) {
	svc := New(seedStore(t, nil), &stubEmbedder{vec: []float32{1}}, Config{}, nil, nil)
	if got := svc.Query(context.Background(), "alice", "q"); len(got) != 0 {
		t.Errorf("empty store returned %d matches", len(got))
	}
}

func TestQuery_EmbedFailureIsBestEffort(t *testing.T) {
	store := seedStore(t, []memory.Item{
		item("present", []float32{1, 0}, "2024-01-01T00:00:00Z"),
	})
	svc := New(store, &stubEmbedder{err: errors.New("rate limited")}, Config{}, nil, nil)

	if got := svc.Query(context.Background(), "alice", "q"); got != nil {
		t.Errorf("embed failure returned %v, want nil", got)
	}
}

func TestQuery_EmptyQueryShortCircuits(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	svc := New(seedStore(t, nil), embedder, Config{}, nil, nil)
	if got := svc.Query(context.Background(), "alice", ""); got != nil {
		t.Errorf("empty query returned %v", got)
	}
}

func TestQuery_DimensionMismatchScoresZero(t *testing.T) {
	// A query vector of the wrong dimension scores zero everywhere and
	// surfaces nothing rather than panicking.
	store := seedStore(t, []memory.Item{
		item("stored", []float32{1, 0, 0}, "2024-01-01T00:00:00Z"),
	})
	svc := New(store, &stubEmbedder{vec: []float32{1, 0}}, Config{Threshold: 0.1}, nil, nil)

	if got := svc.Query(context.Background(), "alice", "q"); len(got) != 0 {
		t.Errorf("mismatched dimensions surfaced %d matches", len(got))
	}
}
