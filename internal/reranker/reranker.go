// Package reranker re-scores retrieved passages against the query.
//
// A cross-encoder sees the query and passage together, so its scores are
// more precise than the bi-encoder similarity used for retrieval. Scores are
// raw relevance logits (roughly -10 to 10 for ms-marco cross-encoders);
// higher means more relevant.
//
// # Trade-offs
//
//   - Latency: one scoring call per query over the over-fetched candidates
//   - Quality: reorders candidates whose vector similarities are close
//
// The LLM scorer exists for deployments without a cross-encoder server. It
// is slower and costs generation tokens.
package reranker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/campusconnect/campusqa/internal/retrieval"
)

// ErrScoreCount is returned when a scorer does not return one score per passage.
var ErrScoreCount = errors.New("scorer returned wrong number of scores")

// Scorer assigns a relevance score to each (query, passage) pair.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// ScoreFunc adapts a pairwise scoring function to Scorer.
type ScoreFunc func(ctx context.Context, query, passage string) (float64, error)

// Score calls f once per passage.
func (f ScoreFunc) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	for i, p := range passages {
		s, err := f(ctx, query, p)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	return scores, nil
}

// Reranked is a candidate with its relevance score.
type Reranked struct {
	retrieval.Candidate
	// OriginalScore is the retrieval similarity
	OriginalScore float64
	RerankScore   float64
}

// Reranker orders candidates by scorer relevance.
type Reranker struct {
	scorer Scorer
}

// New creates a reranker backed by scorer.
func New(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores every candidate in one batch and returns at most topK of them,
// ordered by descending rerank score. Ties keep retrieval order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]Reranked, error) {
	if len(candidates) == 0 || topK <= 0 {
		return []Reranked{}, nil
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}

	scores, err := r.scorer.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("reranking failed: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d for %d passages", ErrScoreCount, len(scores), len(candidates))
	}

	reranked := make([]Reranked, len(candidates))
	for i, c := range candidates {
		if math.IsNaN(scores[i]) {
			return nil, fmt.Errorf("reranking failed: NaN score for passage %s", c.ID)
		}
		reranked[i] = Reranked{
			Candidate:     c,
			OriginalScore: c.Similarity,
			RerankScore:   scores[i],
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].RerankScore != reranked[j].RerankScore {
			return reranked[i].RerankScore > reranked[j].RerankScore
		}
		return reranked[i].Rank < reranked[j].Rank
	})

	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// Scores extracts rerank scores in order.
func Scores(reranked []Reranked) []float64 {
	out := make([]float64, len(reranked))
	for i, r := range reranked {
		out[i] = r.RerankScore
	}
	return out
}
