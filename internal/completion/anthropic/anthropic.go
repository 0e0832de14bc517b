// Package anthropic provides a completion provider backed by Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/recall/internal/backoff"
	"github.com/haasonsaas/recall/internal/completion"
	"github.com/haasonsaas/recall/internal/observability"
)

// Config contains configuration for the Anthropic provider.
type Config struct {
	APIKey string

	// Model defaults to claude-3-haiku, the model used for per-chunk
	// analysis where throughput matters more than depth.
	Model string

	// MaxTokens bounds the completion length. Default 1000.
	MaxTokens int

	// MaxAttempts bounds retries per request. Default 3.
	MaxAttempts int

	// RequestTimeout bounds each request. Default 60s.
	RequestTimeout time.Duration
}

// Provider implements completion.Provider using the Anthropic SDK.
type Provider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	maxAttempts int
	timeout     time.Duration
	metrics     *observability.Metrics
}

var _ completion.Provider = (*Provider)(nil)

// New creates an Anthropic completion provider.
func New(cfg Config, metrics *observability.Metrics) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-haiku-20240307"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.RequestTimeout,
		metrics:     metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// Complete sends the system prompt and messages and returns the
// concatenated text blocks of the response. Transient failures are
// retried with backoff up to the configured bound.
func (p *Provider) Complete(ctx context.Context, system string, messages []completion.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(0),
		Messages:    convertMessages(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	return backoff.Retry(ctx, backoff.Default(), p.maxAttempts, func(int) (string, error) {
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		msg, err := p.client.Messages.New(reqCtx, params)
		p.metrics.RecordProviderRequest(p.Name(), "complete", start, err)
		if err != nil {
			return "", fmt.Errorf("anthropic completion: %w", err)
		}

		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	})
}

func convertMessages(messages []completion.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}
