package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/config"
)

// NewClient creates a Client for one configured model.
func NewClient(cfg config.LLMModelConfig, embeddingModel string, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, embeddingModel, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]",
			cfg.Provider, config.ProviderGemini)
	}
}

// NewRouterFromConfig resolves the fast and powerful tier models from the
// translator configuration and builds a Router over them. The returned
// Embedder is backed by the fast-tier client.
func NewRouterFromConfig(cfg config.TranslatorConfig, logger *zap.Logger) (*Router, Embedder, error) {
	fastCfg, ok := cfg.Models[cfg.DefaultFastModel]
	if !ok {
		return nil, nil, fmt.Errorf("fast model %q is not configured", cfg.DefaultFastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.DefaultPowerfulModel]
	if !ok {
		return nil, nil, fmt.Errorf("powerful model %q is not configured", cfg.DefaultPowerfulModel)
	}

	fast, err := NewGeminiClient(fastCfg, cfg.EmbeddingModel, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build fast-tier client: %w", err)
	}
	powerful, err := NewClient(powerfulCfg, "", logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build powerful-tier client: %w", err)
	}

	router, err := NewRouter(logger, fast, powerful)
	if err != nil {
		return nil, nil, err
	}
	return router, fast, nil
}
