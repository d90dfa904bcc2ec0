package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "chromem", cfg.IndexBackend)
	assert.Equal(t, "groq", cfg.LLMProvider)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLMModel)
	assert.Equal(t, "gsk-test", cfg.LLMAPIKey, "GROQ_API_KEY is used when LLM_API_KEY is unset")
	assert.InDelta(t, 0.1, cfg.LLMTemperature, 1e-6)
	assert.Equal(t, 1024, cfg.LLMMaxTokens)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 3, cfg.OverfetchMultiplier)
	assert.Equal(t, 15, cfg.OverfetchCap)
	assert.Equal(t, 0.7, cfg.ConfidenceHigh)
	assert.Equal(t, 0.4, cfg.ConfidenceMedium)
	assert.Equal(t, 200, cfg.PreviewLength)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.AuthEnabled())
	assert.Nil(t, cfg.Query)
}

func TestLoadMissingCredential(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestOllamaNeedsNoCredential(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLMProvider)
}

func TestParseSkipsCredentialCheck(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("AUTO_INGEST_DIR", "./docs")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "./docs", cfg.AutoIngestDir)
	assert.Equal(t, "section", cfg.ChunkMethod)
	assert.Equal(t, 180, cfg.ChunkTargetSize)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredential)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort: 8080, GRPCPort: 9090,
			IndexBackend: "chromem", EmbeddingProvider: "local", LLMProvider: "groq", RerankerProvider: "tei",
			LLMAPIKey: "k", LLMMaxTokens: 1024,
			DefaultTopK: 5, OverfetchMultiplier: 3, OverfetchCap: 15,
			ConfidenceSpan: 20, ConfidenceWindow: 3, ConfidenceHigh: 0.7, ConfidenceMedium: 0.4,
			PreviewLength: 200, EmbedConcurrency: 4, ChunkMethod: "section",
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }},
		{"unknown backend", func(c *Config) { c.IndexBackend = "faiss" }},
		{"unknown llm", func(c *Config) { c.LLMProvider = "mystery" }},
		{"zero span", func(c *Config) { c.ConfidenceSpan = 0 }},
		{"inverted thresholds", func(c *Config) { c.ConfidenceMedium = 0.8 }},
		{"zero cap", func(c *Config) { c.OverfetchCap = 0 }},
		{"zero top k", func(c *Config) { c.DefaultTopK = 0 }},
		{"unknown chunk method", func(c *Config) { c.ChunkMethod = "semantic" }},
		{"openai embeddings without key", func(c *Config) { c.EmbeddingProvider = "openai" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestQueryConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.toml")
	data := `
replace_defaults = true
max_variations = 1

[[abbreviation]]
short = "lab"
long = "laboratory"

[[abbreviation]]
short = "cafe"
long = "cafeteria"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("QUERY_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Query)
	assert.True(t, cfg.Query.ReplaceDefaults)
	assert.Equal(t, 1, cfg.Query.MaxVariations)
	assert.Equal(t, []Abbreviation{{"lab", "laboratory"}, {"cafe", "cafeteria"}}, cfg.Query.Abbreviations)
}

func TestParseQueryConfigRejectsNegativeVariations(t *testing.T) {
	_, err := ParseQueryConfig([]byte("max_variations = -1"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
