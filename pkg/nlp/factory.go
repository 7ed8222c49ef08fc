package nlp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/lorekeeper/pkg/config"
)

// NewClient creates the provider client named by m.Provider.
func NewClient(ctx context.Context, m config.NLPModelConfig) (Client, error) {
	cfg := FromModelConfig(m)
	switch m.Provider {
	case "openai":
		return NewOpenAIClient(cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "anthropic":
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, m.Provider)
	}
}

// Wrap layers retry and, when enabled, circuit breaking around client.
// The breaker sits outside the retry loop so one logical call counts once.
func Wrap(client Client, retry config.RetryConfig, breaker config.CircuitBreakerConfig, name string, logger *slog.Logger) Client {
	wrapped := Client(NewRetryClient(client, RetryConfigFrom(retry), logger))
	if breaker.Enabled {
		wrapped = NewCircuitBreakerClient(wrapped, breaker, name, logger)
	}
	return wrapped
}
