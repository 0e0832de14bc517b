package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/recall/internal/analysis"
	"github.com/haasonsaas/recall/internal/completion"
	"github.com/haasonsaas/recall/internal/memory"
)

const (
	// DefaultFactBatchSize groups messages per extraction request.
	DefaultFactBatchSize = 10

	// DefaultMaxFacts caps facts stored per transcript run.
	DefaultMaxFacts = 50

	// maxFactsPerBatch caps facts accepted from one extraction response.
	maxFactsPerBatch = 5

	// maxExtractContent truncates conversation content sent upstream.
	maxExtractContent = 2000
)

const extractSystem = "You are an analysis assistant that outputs only valid JSON."

const extractPrompt = `Analyze this conversation to extract ONLY definitive facts about the user.
Focus on:
- Role and permissions
- Work patterns and preferences
- Technical skills and knowledge
- Project involvement
- Tool usage patterns
- Communication style
- Important personal details

Format response EXACTLY as this JSON structure:
{
    "user_facts": [
        "Specific fact about user's role/preferences/skills/etc"
    ]
}

Rules:
1. Only include information that is clearly stated or strongly implied
2. Focus on facts about the user themselves
3. Include only information relevant for future interactions
4. Avoid speculation or uncertain information
5. Output ONLY the JSON, no other text
6. Each fact should be a complete, standalone statement`

// Message is one transcript entry. Roles other than user and assistant
// are ignored during extraction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptResult summarizes one transcript ingestion.
type TranscriptResult struct {
	Batches       int
	FailedBatches int
	Facts         int
	Write         *memory.WriteResult
}

// IngestTranscript extracts user facts from a conversation and stores
// them under username. Message batches are processed concurrently; a
// failed batch loses only its own facts. A conversation yielding no
// facts, or whose facts cannot be embedded, completes successfully with
// nothing written.
func (p *Pipeline) IngestTranscript(ctx context.Context, username, conversationID string, messages []Message) (*TranscriptResult, error) {
	if username == "" || conversationID == "" {
		return nil, fmt.Errorf("ingest transcript: username and conversation id are required")
	}

	batches := batchMessages(messages, p.cfg.FactBatchSize)
	p.logger.Info(ctx, "extracting user facts",
		"username", username,
		"conversation_id", conversationID,
		"messages", len(messages),
		"batches", len(batches))

	facts, failedBatches := p.extractFacts(ctx, batches)
	if len(facts) > p.cfg.MaxFacts {
		facts = facts[:p.cfg.MaxFacts]
	}
	if len(facts) == 0 {
		p.metrics.RecordIngest("transcript", "empty")
		p.logger.Info(ctx, "no user facts found", "conversation_id", conversationID)
		return &TranscriptResult{Batches: len(batches), FailedBatches: failedBatches}, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, facts)
	if err != nil {
		// Matching the write paths' degraded posture: losing one
		// conversation's facts is preferable to failing the run.
		p.metrics.RecordIngest("transcript", "error")
		p.logger.Warn(ctx, "could not embed extracted facts, skipping store",
			"conversation_id", conversationID, "error", err)
		return &TranscriptResult{Batches: len(batches), FailedBatches: failedBatches}, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	items := make([]memory.Item, len(facts))
	for i, fact := range facts {
		items[i] = memory.Item{
			Text:      fact,
			Embedding: vectors[i],
			Metadata: memory.Metadata{
				"type":            "user_fact",
				"source":          "conversation:" + conversationID,
				"timestamp":       now,
				"conversation_id": conversationID,
				"index":           i,
			},
		}
	}

	res, err := p.facts.Append(ctx, username, items)
	if err != nil {
		p.metrics.RecordIngest("transcript", "error")
		return nil, fmt.Errorf("store user facts for %q: %w", username, err)
	}

	p.metrics.RecordIngest("transcript", "success")
	p.logger.Info(ctx, "transcript ingested",
		"username", username,
		"conversation_id", conversationID,
		"batches", len(batches),
		"failed_batches", failedBatches,
		"facts", len(facts),
		"stored", res.Stored)
	return &TranscriptResult{
		Batches:       len(batches),
		FailedBatches: failedBatches,
		Facts:         len(facts),
		Write:         res,
	}, nil
}

// extractFacts runs a bounded worker pool over the batches and gathers
// facts through a channel. Facts keep batch order so the overall cap
// favors earlier conversation content.
func (p *Pipeline) extractFacts(ctx context.Context, batches [][]Message) ([]string, int) {
	type batchFacts struct {
		index int
		facts []string
		err   error
	}

	indices := make(chan int)
	results := make(chan batchFacts, len(batches))

	var wg sync.WaitGroup
	workers := p.cfg.Workers
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				facts, err := p.extractBatch(ctx, batches[i])
				results <- batchFacts{index: i, facts: facts, err: err}
			}
		}()
	}

	for i := range batches {
		indices <- i
	}
	close(indices)
	wg.Wait()
	close(results)

	ordered := make([][]string, len(batches))
	failed := 0
	for res := range results {
		if res.err != nil {
			failed++
			p.logger.Warn(ctx, "fact extraction batch failed", "batch", res.index, "error", res.err)
			continue
		}
		ordered[res.index] = res.facts
	}

	var facts []string
	for _, batch := range ordered {
		facts = append(facts, batch...)
	}
	return facts, failed
}

// extractBatch asks the completion provider for facts in one batch of
// messages. An empty batch after role filtering yields no facts.
func (p *Pipeline) extractBatch(ctx context.Context, batch []Message) ([]string, error) {
	content := renderMessages(batch)
	if content == "" {
		return nil, nil
	}
	if runes := []rune(content); len(runes) > maxExtractContent {
		content = string(runes[:maxExtractContent])
	}

	output, err := p.completer.Complete(ctx, extractSystem, []completion.Message{
		{Role: "user", Content: fmt.Sprintf("%s\n\nConversation to analyze:\n%s", extractPrompt, content)},
	})
	if err != nil {
		return nil, err
	}
	return parseFacts(output)
}

// renderMessages flattens user and assistant turns into the upstream
// prompt format.
func renderMessages(batch []Message) string {
	var lines []string
	for _, msg := range batch {
		if (msg.Role != "user" && msg.Role != "assistant") || msg.Content == "" {
			continue
		}
		lines = append(lines, strings.ToUpper(msg.Role)+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// parseFacts decodes the extraction response, keeping at most
// maxFactsPerBatch non-empty string facts.
func parseFacts(output string) ([]string, error) {
	jsonStr, ok := analysis.ExtractJSON(output)
	if !ok {
		return nil, fmt.Errorf("no JSON object in extraction response")
	}

	var parsed struct {
		UserFacts []any `json:"user_facts"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	var facts []string
	for _, raw := range parsed.UserFacts {
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		facts = append(facts, s)
		if len(facts) == maxFactsPerBatch {
			break
		}
	}
	return facts, nil
}

// batchMessages splits messages into fixed-size groups preserving
// order.
func batchMessages(messages []Message, size int) [][]Message {
	if len(messages) == 0 {
		return nil
	}
	var batches [][]Message
	for i := 0; i < len(messages); i += size {
		end := i + size
		if end > len(messages) {
			end = len(messages)
		}
		batches = append(batches, messages[i:end])
	}
	return batches
}
