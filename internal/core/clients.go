package core

import (
	"log/slog"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/llm"
	"github.com/joseph-ayodele/form-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/form-extractor/internal/llm/openai"
)

// NewVisionExtractor builds the configured provider client wrapped with
// retries, per-attempt timeouts and rate limiting.
func NewVisionExtractor(cfg common.LLMConfig, logger *slog.Logger) (llm.VisionExtractor, error) {
	var client llm.VisionExtractor
	switch cfg.Provider {
	case common.ProviderOpenAI:
		client = openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case common.ProviderGemini:
		client = gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	default:
		return nil, common.ConfigErrorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
	return llm.NewRetryingExtractor(client, llm.RetryConfig{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.RetryDelay,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, logger), nil
}
