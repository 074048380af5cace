package llm

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/config"
	"github.com/ziadkadry99/auditq/internal/retry"
)

// NewProvider creates a new LLM provider based on the given provider type and model.
// Supported provider types: "anthropic", "openai", "google", "ollama",
// "openrouter", "minimax".
func NewProvider(providerType string, model string) (Provider, error) {
	apiKey := func(envVar string) (string, error) {
		key := os.Getenv(envVar)
		if key == "" {
			return "", fmt.Errorf("%s environment variable is not set", envVar)
		}
		return key, nil
	}

	switch providerType {
	case "anthropic":
		key, err := apiKey("ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewAnthropicProvider(key, model), nil

	case "openai":
		key, err := apiKey("OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewOpenAIProvider(key, model), nil

	case "google":
		key, err := apiKey("GOOGLE_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewGoogleProvider(key, model)

	case "openrouter":
		key, err := apiKey("OPENROUTER_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewOpenRouterProvider(key, model), nil

	case "minimax":
		key, err := apiKey("MINIMAX_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewMinimaxProvider(key, model), nil

	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaProvider(host, model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// FromConfig builds the decorated provider chain described by cfg: each
// configured provider is rate limited and retried, and the fallback is
// tried after the primary fails. A fallback that cannot be built is
// logged and skipped; a primary that cannot be built is an error.
func FromConfig(cfg *config.Config, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay,
		Timeout:   cfg.Timeouts.LLM,
	}
	wrap := func(p Provider) Provider {
		return NewRetryingProvider(NewRateLimitedProvider(p, cfg.RateLimitRPM), policy)
	}

	primary, err := NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", cfg.Provider, err)
	}
	providers := []Provider{wrap(primary)}

	if cfg.FallbackProvider != "" {
		fb, err := NewProvider(string(cfg.FallbackProvider), cfg.FallbackModel)
		if err != nil {
			logger.Warn("fallback provider disabled", zap.String("provider", string(cfg.FallbackProvider)), zap.Error(err))
		} else {
			providers = append(providers, wrap(fb))
		}
	}
	return NewChain(logger, providers...), nil
}
