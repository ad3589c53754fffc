package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// LLMConfig selects and configures the hosted language model
type LLMConfig struct {
	Provider string // "gemini" or "openrouter"

	GeminiAPIKey string
	GeminiModel  string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
}

// NewLanguageModel builds the langchaingo model used for vision OCR and semantic search.
// The returned name identifies the provider in logs and error codes.
func NewLanguageModel(ctx context.Context, cfg *LLMConfig) (llms.Model, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("llm config is required")
	}

	logger := logging.NewLogger("LLMClient")

	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, "", fmt.Errorf("gemini API key is required")
		}
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.GeminiAPIKey),
			googleai.WithDefaultModel(cfg.GeminiModel),
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Gemini client: %w", err)
		}
		logger.Info("Language model initialized", "provider", "gemini", "model", cfg.GeminiModel)
		return llm, "gemini", nil

	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return nil, "", fmt.Errorf("openrouter API key is required")
		}
		llm, err := openai.New(
			openai.WithBaseURL(cfg.OpenRouterBaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.OpenRouterAPIKey, "Bearer ")),
			openai.WithModel(cfg.OpenRouterModel),
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenRouter client: %w", err)
		}
		logger.Info("Language model initialized", "provider", "openrouter", "model", cfg.OpenRouterModel)
		return llm, "openrouter", nil

	default:
		return nil, "", fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
