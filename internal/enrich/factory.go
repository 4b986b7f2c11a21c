package enrich

import (
	"context"

	"go.uber.org/zap"

	"leadscout/internal/config"
)

// NewCompleter builds the model client selected by cfg. It returns nil
// (and no error) when no provider is configured.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	provider, key := cfg.GetActiveProvider()
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     key,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.GetTimeout(),
			MaxRetries: 3,
		}, logger), nil
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, key, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, nil
	}
}

// NewProcessor wraps c in an LLMProcessor, or returns the heuristic
// processor when c is nil.
func NewProcessor(c Completer, logger *zap.Logger) Processor {
	if c == nil {
		return HeuristicProcessor{}
	}
	return NewLLMProcessor(c, logger)
}
