package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTEIBaseURL is where a text-embeddings-inference server hosts the cross-encoder.
	DefaultTEIBaseURL = "http://localhost:8081"

	// DefaultCrossEncoderModel is the model the TEI server is expected to serve.
	DefaultCrossEncoderModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"
)

// TEIConfig holds configuration for the cross-encoder client.
type TEIConfig struct {
	// BaseURL is the TEI server base URL (default: http://localhost:8081).
	BaseURL string

	// Model is informational; TEI serves a single model per instance.
	Model string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// TEIScorer scores passages with a cross-encoder served by Hugging Face
// text-embeddings-inference through its /rerank endpoint.
type TEIScorer struct {
	baseURL string
	model   string
	client  *http.Client
}

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiRank struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTEIScorer creates a cross-encoder client.
func NewTEIScorer(cfg TEIConfig) *TEIScorer {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTEIBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultCrossEncoderModel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &TEIScorer{
		baseURL: baseURL,
		model:   model,
		client:  client,
	}
}

// Score returns raw cross-encoder logits in passage order.
func (s *TEIScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	jsonBody, err := json.Marshal(teiRequest{
		Query:     query,
		Texts:     passages,
		RawScores: true,
		Truncate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cross-encoder API error (status %d): %s", resp.StatusCode, string(body))
	}

	var ranks []teiRank
	if err := json.NewDecoder(resp.Body).Decode(&ranks); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// TEI returns ranks sorted by score; map them back to input order
	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range ranks {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("cross-encoder returned index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing score for passage %d", ErrScoreCount, i)
		}
	}

	return scores, nil
}

// ModelName returns the cross-encoder model name.
func (s *TEIScorer) ModelName() string {
	return s.model
}

var _ Scorer = (*TEIScorer)(nil)
