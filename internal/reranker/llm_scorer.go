package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/campusconnect/campusqa/internal/llm"
)

const (
	// Scores from the LLM are mapped onto the same range a cross-encoder produces
	minLLMScore = -10.0
	maxLLMScore = 10.0

	maxPassageRunes = 500
)

// LLMScorer asks a generation model to grade each passage.
// It is a substitute for a cross-encoder when none is deployed.
type LLMScorer struct {
	client llm.LLM
	model  string
}

// LLMScorerOption is a functional option for configuring LLMScorer.
type LLMScorerOption func(*LLMScorer)

// WithModel sets the model to use for scoring.
func WithModel(model string) LLMScorerOption {
	return func(s *LLMScorer) {
		s.model = model
	}
}

// NewLLMScorer creates an LLM-backed scorer.
func NewLLMScorer(client llm.LLM, opts ...LLMScorerOption) *LLMScorer {
	s := &LLMScorer{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type passageScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

type scoreResponse struct {
	Scores []passageScore `json:"scores"`
}

// Score grades all passages in a single generation call.
func (s *LLMScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	response, err := s.client.Generate(ctx, buildScorePrompt(query, passages), llm.GenerateOptions{
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM scoring failed: %w", err)
	}

	return parseScoreResponse(response, len(passages))
}

func buildScorePrompt(query string, passages []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system. Score each passage's relevance to the question.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPassages to score:\n")
	for i, p := range passages {
		if utf8.RuneCountInString(p) > maxPassageRunes {
			p = string([]rune(p)[:maxPassageRunes]) + "..."
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, p)
	}

	sb.WriteString(`Score each passage from -10 to 10 based on how well it answers the question.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 7.5}, {"doc_index": 1, "score": -4}, ...]}

Be strict: irrelevant passages score below -5, partially relevant between -5 and 5, passages that answer the question above 5.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseScoreResponse extracts one score per passage. Passages the model skipped
// get a neutral 0.
func parseScoreResponse(response string, n int) ([]float64, error) {
	response = extractJSON(response)

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse score response: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("%w: score response is empty", ErrScoreCount)
	}

	scores := make([]float64, n)
	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= n {
			continue
		}
		score := s.Score
		if score < minLLMScore {
			score = minLLMScore
		}
		if score > maxLLMScore {
			score = maxLLMScore
		}
		scores[s.DocIndex] = score
	}

	return scores, nil
}

// extractJSON strips markdown code fences around a JSON payload.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	return strings.TrimSpace(response)
}

var _ Scorer = (*LLMScorer)(nil)
