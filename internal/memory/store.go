package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/recall/internal/backoff"
	"github.com/haasonsaas/recall/internal/blob"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/similarity"
)

const (
	// DefaultCapacity bounds user-fact stores.
	DefaultCapacity = 50

	// DefaultThreshold is the semantic-duplicate similarity threshold
	// for user facts. Document and environment stores configure lower
	// thresholds (0.75–0.85).
	DefaultThreshold = 0.90

	// maxWriteAttempts bounds the conditional-write retry loop.
	maxWriteAttempts = 3

	// indexObjectName is the blob object holding an owner's index.
	indexObjectName = "embeddings.json"
)

// ErrWriteConflict is returned when concurrent writers exhaust the
// conditional-write retries. The previously persisted index remains
// authoritative; none of this batch was written.
var ErrWriteConflict = errors.New("memory: write conflict not resolved")

// Config tunes one store's dedup and eviction behavior.
type Config struct {
	// Capacity is the maximum retained items; zero or negative means
	// bounded only by what writers submit.
	Capacity int

	// Threshold is the cosine similarity above which a new item is a
	// duplicate of an existing one.
	Threshold float64
}

// Store owns the persisted index for each owner key under its blob
// store. All mutation goes through the dedup-merge-evict write protocol;
// persistence is a conditional whole-object replace, so readers never
// observe partial writes and concurrent writers never silently lose
// updates.
type Store struct {
	blob      blob.Store
	capacity  int
	threshold float64
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// New creates a store over the given blob backend.
func New(b blob.Store, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Store {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		blob:      b,
		capacity:  cfg.Capacity,
		threshold: cfg.Threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// IndexKey returns the blob key holding owner's index.
func (s *Store) IndexKey(owner string) string {
	return path.Join(owner, indexObjectName)
}

// WriteResult summarizes one Append.
type WriteResult struct {
	// Stored is the total item count in the persisted index.
	Stored int
	// Written is how many of the new items were retained.
	Written int
	// DuplicatesRemoved counts literal and semantic duplicates dropped.
	DuplicatesRemoved int
	// Invalid counts new items dropped by validation.
	Invalid int
}

// Append merges a batch of new items into owner's index.
//
// Invalid items (empty text, empty embedding, missing timestamp,
// dimension mismatch) are dropped and counted, never fatal. Within the
// batch, identical texts collapse to the first occurrence. Each survivor
// is compared against every existing item; above the threshold the
// later-timestamped of the pair wins. The merged set is ordered by
// timestamp descending (ties by shorter source, then text), truncated to
// capacity, and persisted conditionally on the version observed at read
// time. On conflict the merge is recomputed against fresh state, up to
// maxWriteAttempts.
func (s *Store) Append(ctx context.Context, owner string, items []Item) (*WriteResult, error) {
	if owner == "" {
		return nil, fmt.Errorf("memory: owner key is required")
	}

	valid, invalid := validateItems(items)
	batch, literalDups := collapseLiteralDuplicates(valid)
	if len(batch) == 0 {
		s.logger.Info(ctx, "no valid new items to append", "owner", owner, "invalid", invalid)
		return &WriteResult{Invalid: invalid, DuplicatesRemoved: literalDups}, nil
	}

	key := s.IndexKey(owner)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		idx, version, err := s.loadForUpdate(ctx, key)
		if err != nil {
			return nil, err
		}

		merged, written, semDups, dimDrops := mergeBatch(idx.Items(), batch, s.threshold)
		sortItems(merged)
		if s.capacity > 0 && len(merged) > s.capacity {
			evicted := merged[s.capacity:]
			written -= countNew(evicted)
			merged = merged[:s.capacity]
		}

		dups := literalDups + semDups
		data, err := json.Marshal(buildIndex(unwrap(merged), dups, time.Now()))
		if err != nil {
			return nil, fmt.Errorf("encode index: %w", err)
		}

		newVersion, err := s.blob.Put(ctx, key, data, version)
		if err == nil {
			s.metrics.RecordStoreWrite("success")
			s.metrics.RecordDuplicates(dups)
			s.logger.Info(ctx, "index updated",
				"owner", owner,
				"version", newVersion,
				"stored", len(merged),
				"written", written,
				"duplicates_removed", dups,
				"invalid", invalid+dimDrops)
			return &WriteResult{
				Stored:            len(merged),
				Written:           written,
				DuplicatesRemoved: dups,
				Invalid:           invalid + dimDrops,
			}, nil
		}
		if !errors.Is(err, blob.ErrVersionConflict) {
			s.metrics.RecordStoreWrite("error")
			return nil, fmt.Errorf("persist index for %q: %w", owner, err)
		}

		s.metrics.RecordStoreWrite("conflict")
		s.logger.Warn(ctx, "concurrent index write, refetching", "owner", owner, "attempt", attempt)
		if attempt < maxWriteAttempts {
			if err := backoff.Sleep(ctx, backoff.Quick(), attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("persist index for %q after %d attempts: %w", owner, maxWriteAttempts, ErrWriteConflict)
}

// Load returns owner's current index. A missing index is an empty one;
// a corrupt index is reset to empty with a warning, matching write-path
// behavior. Read failures other than not-found are returned as errors so
// callers never mistake unavailable history for absent history.
func (s *Store) Load(ctx context.Context, owner string) (*Index, error) {
	idx, _, err := s.loadForUpdate(ctx, s.IndexKey(owner))
	return idx, err
}

func (s *Store) loadForUpdate(ctx context.Context, key string) (*Index, string, error) {
	obj, err := s.blob.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return &Index{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read index %q: %w", key, err)
	}

	idx, err := decodeIndex(obj.Data)
	if err != nil {
		// A structurally invalid index is rebuilt rather than blocking
		// all future writes; the conditional write still targets the
		// observed version so a concurrent repair is not clobbered.
		s.logger.Warn(ctx, "invalid persisted index, rebuilding", "key", key, "error", err)
		return &Index{}, obj.Version, nil
	}
	return idx, obj.Version, nil
}

func validateItems(items []Item) ([]Item, int) {
	var valid []Item
	invalid := 0
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" || len(item.Embedding) == 0 || item.Metadata.Timestamp() == "" {
			invalid++
			continue
		}
		item.Text = text
		valid = append(valid, item)
	}
	return valid, invalid
}

func collapseLiteralDuplicates(items []Item) ([]Item, int) {
	seen := make(map[string]struct{}, len(items))
	var out []Item
	dups := 0
	for _, item := range items {
		if _, ok := seen[item.Text]; ok {
			dups++
			continue
		}
		seen[item.Text] = struct{}{}
		out = append(out, item)
	}
	return out, dups
}

// mergedItem tags each merge-survivor with whether it came from the new
// batch, so eviction can report how many new items actually landed.
type mergedItem struct {
	Item
	fromNew bool
}

// mergeBatch runs the semantic-duplicate pass: each new item is scored
// against every existing item; above the threshold the later timestamp
// wins and the loser is dropped. Returns the merged set, how many new
// items were retained, the duplicate count, and how many new items were
// dropped for a dimension mismatch.
func mergeBatch(existing, batch []Item, threshold float64) ([]mergedItem, int, int, int) {
	dim := 0
	if len(existing) > 0 {
		dim = len(existing[0].Embedding)
	}

	superseded := make(map[int]bool)
	var retained []mergedItem
	duplicates := 0
	dimDrops := 0

	for _, item := range batch {
		if dim == 0 {
			dim = len(item.Embedding)
		} else if len(item.Embedding) != dim {
			dimDrops++
			continue
		}

		best := -1
		bestScore := 0.0
		for i, ex := range existing {
			if score := similarity.Cosine(item.Embedding, ex.Embedding); score > bestScore {
				best = i
				bestScore = score
			}
		}

		if best < 0 || bestScore <= threshold {
			retained = append(retained, mergedItem{Item: item, fromNew: true})
			continue
		}

		duplicates++
		if item.Metadata.Timestamp() > existing[best].Metadata.Timestamp() {
			superseded[best] = true
			retained = append(retained, mergedItem{Item: item, fromNew: true})
		}
	}

	merged := make([]mergedItem, 0, len(existing)+len(retained))
	for i, ex := range existing {
		if !superseded[i] {
			merged = append(merged, mergedItem{Item: ex})
		}
	}
	merged = append(merged, retained...)
	return merged, len(retained), duplicates, dimDrops
}

// sortItems orders by timestamp descending so truncation evicts the
// least recent items. Ties break by shorter source string, then text,
// for deterministic ordering.
func sortItems(items []mergedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].Metadata.Timestamp(), items[j].Metadata.Timestamp()
		if ti != tj {
			return ti > tj
		}
		si, sj := items[i].Metadata.Source(), items[j].Metadata.Source()
		if len(si) != len(sj) {
			return len(si) < len(sj)
		}
		return items[i].Text < items[j].Text
	})
}

func countNew(items []mergedItem) int {
	n := 0
	for _, item := range items {
		if item.fromNew {
			n++
		}
	}
	return n
}

func unwrap(items []mergedItem) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item.Item
	}
	return out
}
