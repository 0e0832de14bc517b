// Package completion defines the completion provider boundary used by
// chunk analysis and fact extraction.
package completion

import "context"

// Message is one turn of a conversation sent to the provider.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Provider produces a text completion for a system prompt plus messages.
type Provider interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}
