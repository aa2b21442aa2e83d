// Package llm provides the language-model oracle used for planning, query
// synthesis and summaries. Two providers are supported: OpenAI-compatible
// endpoints (including local gateways) and Anthropic. The pipeline treats
// the oracle as text-in/text-out; absence of an oracle is a supported
// configuration and engages deterministic fallbacks upstream.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Oracle is the text-in/text-out contract the agent pipeline depends on.
// Implementations must be safe for concurrent use.
type Oracle interface {
	// GenerateResponse produces a completion for the prompt under the given
	// system message. Temperature below zero selects the provider default.
	GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float32) (*GenerateResponseResult, error)

	// Model returns the configured model name.
	Model() string

	// Provider returns the provider identifier ("openai", "anthropic").
	Provider() string
}

// GenerateResponseResult carries the completion text and token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config holds provider-agnostic construction settings. BaseURL is only
// meaningful for the OpenAI-compatible provider.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// New constructs the configured oracle, wrapped with the circuit breaker
// and retry policy. Returns (nil, nil) when provider is empty or "none":
// a nil oracle means heuristics-only operation.
func New(cfg *Config, logger *zap.Logger) (Oracle, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case ProviderOpenAI:
		inner, err := NewOpenAIClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return WithResilience(inner, logger), nil
	case ProviderAnthropic:
		inner, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return WithResilience(inner, logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
