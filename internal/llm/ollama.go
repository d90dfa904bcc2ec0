package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is used when no model is configured.
	DefaultOllamaModel = "llama3.2"
)

// OllamaClient implements LLM against a local Ollama server through langchaingo.
type OllamaClient struct {
	baseURL string
	model   string
	client  *ollama.LLM
}

// OllamaOption is a functional option for configuring OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// NewOllamaClient creates a new Ollama LLM client with the given options.
func NewOllamaClient(opts ...OllamaOption) (*OllamaClient, error) {
	c := &OllamaClient{
		baseURL: DefaultOllamaBaseURL,
		model:   DefaultOllamaModel,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := ollama.New(
		ollama.WithServerURL(c.baseURL),
		ollama.WithModel(c.model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	c.client = client
	return c, nil
}

// Generate sends a prompt to Ollama and returns the complete response.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if opts.SystemPrompt != "" {
		prompt = opts.SystemPrompt + "\n\n" + prompt
	}

	callOpts := []llms.CallOption{
		llms.WithModel(pickModel(opts.Model, c.model)),
		llms.WithTemperature(float64(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, c.client, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

var _ LLM = (*OllamaClient)(nil)
