package analysis

import (
	"context"
	"fmt"

	"github.com/haasonsaas/recall/internal/completion"
	"github.com/haasonsaas/recall/internal/observability"
)

const analyzeSystem = "You are a document analysis assistant. Only output valid JSON analysis."

const analyzePrompt = `Analyze this document chunk and create a structured analysis.
Output ONLY valid JSON with this exact structure:
{
    "summary": "Brief summary of chunk content",
    "key_points": ["List of important points"],
    "technical_details": ["Any technical specifics"],
    "topics": ["Main topics covered"],
    "concerns": ["List of potential issues or concerns"]
}

Rules:
1. Only output valid JSON, nothing else
2. Keep responses concise and relevant
3. Include specific technical details when present
4. List actual concerns found, not hypotheticals
5. Ensure all arrays contain strings`

// Analyzer asks the completion provider for a structured analysis of a
// chunk and normalizes the response against the Record schema.
type Analyzer struct {
	provider completion.Provider
	logger   *observability.Logger
}

// NewAnalyzer creates an Analyzer on the given provider.
func NewAnalyzer(provider completion.Provider, logger *observability.Logger) *Analyzer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Analyzer{provider: provider, logger: logger}
}

// Analyze produces a Result for one chunk. Provider failures and
// unparseable output degrade to the failure sentinel; Analyze never
// returns an error past this boundary.
func (a *Analyzer) Analyze(ctx context.Context, chunk string) Result {
	content := fmt.Sprintf("%s\n\nDocument chunk to analyze:\n%s", analyzePrompt, chunk)

	output, err := a.provider.Complete(ctx, analyzeSystem, []completion.Message{
		{Role: "user", Content: content},
	})
	if err != nil {
		a.logger.Warn(ctx, "chunk analysis request failed", "error", err)
		return Result{Record: FailureRecord(), Degraded: true}
	}

	rec, ok := parseRecord(output)
	if !ok {
		a.logger.Warn(ctx, "chunk analysis output was not valid JSON")
		return Result{Record: FailureRecord(), Degraded: true}
	}
	return Result{Record: rec}
}
