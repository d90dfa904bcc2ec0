package embedder

import (
	"fmt"
	"io"
	"strings"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string // local, ollama or openai
	Model     string
	Dimension int
	ModelDir  string
	OllamaURL string
	APIKey    string
	BaseURL   string
}

// New creates the configured embedder. The returned closer releases
// provider resources and is never nil.
func New(cfg Config) (Embedder, io.Closer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		e, err := NewLocalEmbedder(LocalConfig{
			Model:     cfg.Model,
			ModelDir:  cfg.ModelDir,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e, nil

	case "ollama":
		e, err := NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, nopCloser{}, nil

	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
