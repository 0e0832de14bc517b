// Package memory implements the per-owner semantic memory store: an
// append-only, capacity-bounded, similarity-deduplicated vector index
// persisted as a single blob per owner key.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata is the free-form per-item metadata map. Every stored item
// carries at least a timestamp and a source.
type Metadata map[string]any

// Timestamp returns the item's ISO-8601 timestamp, or "" when absent.
// Timestamps compare lexicographically.
func (m Metadata) Timestamp() string {
	s, _ := m["timestamp"].(string)
	return s
}

// Source returns the item's origin identifier, or "" when absent.
func (m Metadata) Source() string {
	s, _ := m["source"].(string)
	return s
}

// Item is one retained fact or document chunk.
type Item struct {
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// Stats are derived from the item set and recomputed on every write.
type Stats struct {
	Total             int            `json:"total"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	Sources           map[string]int `json:"sources"`
}

// Index is the persisted form of one owner's store: three parallel
// arrays of equal length plus derived stats. This shape is both the wire
// format and the unit the merge protocol operates on.
type Index struct {
	Texts      []string    `json:"texts"`
	Embeddings [][]float32 `json:"embeddings"`
	Metadata   []Metadata  `json:"metadata"`
	Stats      Stats       `json:"stats"`
	UpdatedAt  string      `json:"updated_at"`
}

// Items converts the parallel arrays into item records.
func (idx *Index) Items() []Item {
	items := make([]Item, 0, len(idx.Texts))
	for i := range idx.Texts {
		items = append(items, Item{
			Text:      idx.Texts[i],
			Embedding: idx.Embeddings[i],
			Metadata:  idx.Metadata[i],
		})
	}
	return items
}

// decodeIndex parses a persisted index and enforces the parallel-array
// invariant.
func decodeIndex(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if len(idx.Texts) != len(idx.Embeddings) || len(idx.Texts) != len(idx.Metadata) {
		return nil, fmt.Errorf("decode index: parallel arrays disagree: %d texts, %d embeddings, %d metadata",
			len(idx.Texts), len(idx.Embeddings), len(idx.Metadata))
	}
	return &idx, nil
}

// buildIndex assembles the persisted form from a merged item set.
func buildIndex(items []Item, duplicatesRemoved int, now time.Time) *Index {
	idx := &Index{
		Texts:      make([]string, 0, len(items)),
		Embeddings: make([][]float32, 0, len(items)),
		Metadata:   make([]Metadata, 0, len(items)),
		Stats: Stats{
			Total:             len(items),
			DuplicatesRemoved: duplicatesRemoved,
			Sources:           make(map[string]int),
		},
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	for _, item := range items {
		idx.Texts = append(idx.Texts, item.Text)
		idx.Embeddings = append(idx.Embeddings, item.Embedding)
		idx.Metadata = append(idx.Metadata, item.Metadata)
		idx.Stats.Sources[sourceBucket(item.Metadata.Source())]++
	}
	return idx
}

// sourceBucket histograms sources by their prefix before the first
// colon, e.g. "conversation:abc123" counts under "conversation".
func sourceBucket(source string) string {
	if source == "" {
		return "unknown"
	}
	if i := strings.IndexByte(source, ':'); i >= 0 {
		return source[:i]
	}
	return source
}
