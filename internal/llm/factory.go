package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Config selects and configures a generation provider.
type Config struct {
	Provider string // groq, openai, anthropic, gemini or ollama
	Model    string
	BaseURL  string
	APIKey   string
}

// NewClient creates the configured client. The returned closer is never nil.
func NewClient(ctx context.Context, cfg Config) (LLM, io.Closer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "groq":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, baseURL), nopCloser{}, nil

	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nopCloser{}, nil

	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nopCloser{}, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	case "ollama":
		opts := []OllamaOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		c, err := NewOllamaClient(opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
