// Package service assembles the question answering pipeline: normalize,
// retrieve, rerank, estimate confidence and generate a grounded answer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campusconnect/campusqa/internal/confidence"
	"github.com/campusconnect/campusqa/internal/llm"
	"github.com/campusconnect/campusqa/internal/reranker"
	"github.com/campusconnect/campusqa/internal/retrieval"
)

const (
	// NoKnowledgeAnswer is returned when the index holds nothing relevant.
	NoKnowledgeAnswer = "I don't have information about that in my knowledge base. " +
		"Please ask questions related to campus events, departments, facilities, or academic policies."

	// ErrorAnswer replaces the answer when generation fails.
	ErrorAnswer = "I encountered an error processing your question. Please try again."

	// NoDocumentsSummary is returned by Summarize when nothing matches.
	NoDocumentsSummary = "No relevant documents found."

	// LowConfidenceNotice is appended to low confidence answers.
	LowConfidenceNotice = "\n\nNote: I'm not fully confident in this answer. " +
		"Please verify it with the relevant department or official university sources."

	contextSeparator = "\n\n---\n\n"
)

var (
	// ErrEmptyQuery is returned for blank queries and queries with no searchable text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidTopK is returned for a negative top_k.
	ErrInvalidTopK = errors.New("top_k must not be negative")
)

// Normalizer rewrites raw user queries for retrieval.
type Normalizer interface {
	Preprocess(q string) string
}

// Retriever fetches candidate passages for a normalized query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]retrieval.Candidate, error)
}

// Reranker orders candidates by query relevance and trims them to topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]reranker.Reranked, error)
}

// Estimator maps rerank scores to a confidence result.
type Estimator interface {
	Estimate(scores []float64) confidence.Result
}

// Options holds tunables for AnswerService. Zero values take defaults.
type Options struct {
	DefaultTopK         int
	OverfetchMultiplier int
	OverfetchCap        int
	PreviewLength       int

	// Generation is passed to the model on every call
	Generation llm.GenerateOptions

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 5
	}
	if o.OverfetchMultiplier <= 0 {
		o.OverfetchMultiplier = 3
	}
	if o.OverfetchCap <= 0 {
		o.OverfetchCap = 15
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = 200
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// AnswerService answers questions from the indexed campus documents.
// It holds no per-request state and is safe for concurrent use.
type AnswerService struct {
	normalizer Normalizer
	retriever  Retriever
	reranker   Reranker
	estimator  Estimator
	generator  llm.LLM
	opts       Options
	logger     *slog.Logger
}

// NewAnswerService wires the pipeline stages together.
func NewAnswerService(
	normalizer Normalizer,
	retriever Retriever,
	reranker Reranker,
	estimator Estimator,
	generator llm.LLM,
	opts Options,
) *AnswerService {
	opts = opts.withDefaults()
	return &AnswerService{
		normalizer: normalizer,
		retriever:  retriever,
		reranker:   reranker,
		estimator:  estimator,
		generator:  generator,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// DefaultTopK is the number of sources used when the caller passes zero.
func (s *AnswerService) DefaultTopK() int {
	return s.opts.DefaultTopK
}

// Answer runs the full pipeline. Generation faults never surface as errors;
// they produce a degraded result. Retrieval and reranking faults are returned.
func (s *AnswerService) Answer(ctx context.Context, query string, topK int) (*AnswerResult, error) {
	start := time.Now()

	normalized, topK, err := s.prepare(query, topK)
	if err != nil {
		return nil, err
	}

	meta := Metadata{Model: s.opts.Generation.Model}

	// Step 1: Over-fetch candidates for reranking
	retrievalStart := time.Now()
	limit := retrieval.OverfetchLimit(topK, s.opts.OverfetchMultiplier, s.opts.OverfetchCap)
	candidates, err := s.retriever.Retrieve(ctx, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve passages: %w", err)
	}
	meta.RetrievalTimeMs = time.Since(retrievalStart).Milliseconds()
	meta.CandidatesRetrieved = len(candidates)

	if len(candidates) == 0 {
		return s.noKnowledge(meta, start), nil
	}

	// Step 2: Rerank down to topK
	rerankStart := time.Now()
	reranked, err := s.reranker.Rerank(ctx, normalized, candidates, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank passages: %w", err)
	}
	meta.RerankTimeMs = time.Since(rerankStart).Milliseconds()

	if len(reranked) == 0 {
		return s.noKnowledge(meta, start), nil
	}
	s.logger.Debug("reranked candidates",
		"candidates", len(candidates),
		"kept", len(reranked),
		"top_score", reranked[0].RerankScore,
	)

	// Step 3: Confidence from the final ordering
	conf := s.estimator.Estimate(reranker.Scores(reranked))

	// Step 4: Generate from the original wording of the question
	passageContext := buildContext(reranked)
	prompt := BuildPrompt(passageContext, query)

	generationStart := time.Now()
	answer, genErr := s.generate(ctx, prompt)
	meta.GenerationTimeMs = time.Since(generationStart).Milliseconds()

	switch {
	case genErr != nil:
		s.logger.Warn("generation failed, returning degraded answer", "error", genErr)
		answer = ErrorAnswer
		conf = confidence.None
		meta.Degraded = true
	case conf.Level == confidence.Low:
		answer += LowConfidenceNotice
	}

	sources := make([]Source, len(reranked))
	for i, r := range reranked {
		sources[i] = newSource(r, s.opts.PreviewLength)
	}

	meta.TotalTimeMs = time.Since(start).Milliseconds()

	s.logger.Info("answered query",
		"confidence", conf.Level,
		"score", conf.Score,
		"sources", len(sources),
		"degraded", meta.Degraded,
		"retrieval_ms", meta.RetrievalTimeMs,
		"rerank_ms", meta.RerankTimeMs,
		"generation_ms", meta.GenerationTimeMs,
		"total_ms", meta.TotalTimeMs,
	)

	return &AnswerResult{
		Answer:         answer,
		Sources:        sources,
		Context:        passageContext,
		Confidence:     conf,
		RelevanceScore: conf.Score,
		SourcesUsed:    len(sources),
		Metadata:       meta,
	}, nil
}

// Summarize condenses the topK most similar passages for the query without
// reranking or attribution. Generation errors are returned, not degraded.
func (s *AnswerService) Summarize(ctx context.Context, query string, topK int) (string, error) {
	normalized, topK, err := s.prepare(query, topK)
	if err != nil {
		return "", err
	}

	candidates, err := s.retriever.Retrieve(ctx, normalized, topK)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve passages: %w", err)
	}
	if len(candidates) == 0 {
		return NoDocumentsSummary, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	summary, err := s.generate(ctx, BuildSummaryPrompt(strings.Join(texts, "\n\n"), query))
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	s.logger.Info("summarized query", "passages", len(candidates))
	return summary, nil
}

// prepare validates input and returns the normalized query and effective topK
func (s *AnswerService) prepare(query string, topK int) (string, int, error) {
	if strings.TrimSpace(query) == "" {
		return "", 0, ErrEmptyQuery
	}
	if topK < 0 {
		return "", 0, ErrInvalidTopK
	}
	if topK == 0 {
		topK = s.opts.DefaultTopK
	}

	normalized := s.normalizer.Preprocess(query)
	if normalized == "" {
		return "", 0, ErrEmptyQuery
	}
	s.logger.Debug("normalized query", "query", query, "normalized", normalized)
	return normalized, topK, nil
}

// generate calls the model and converts panics and blank output into errors.
func (s *AnswerService) generate(ctx context.Context, prompt string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()

	answer, err = s.generator.Generate(ctx, prompt, s.opts.Generation)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", llm.ErrEmptyCompletion
	}
	return strings.TrimSpace(answer), nil
}

func (s *AnswerService) noKnowledge(meta Metadata, start time.Time) *AnswerResult {
	meta.TotalTimeMs = time.Since(start).Milliseconds()
	s.logger.Info("no relevant passages found", "total_ms", meta.TotalTimeMs)

	return &AnswerResult{
		Answer:         NoKnowledgeAnswer,
		Sources:        []Source{},
		Context:        "",
		Confidence:     confidence.None,
		RelevanceScore: 0,
		SourcesUsed:    0,
		Metadata:       meta,
	}
}

func buildContext(reranked []reranker.Reranked) string {
	parts := make([]string, len(reranked))
	for i, r := range reranked {
		parts[i] = r.Content
	}
	return strings.Join(parts, contextSeparator)
}
