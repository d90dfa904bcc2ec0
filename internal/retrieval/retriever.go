// Package retrieval turns a normalized query into ranked candidate passages
// from the vector index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/campusconnect/campusqa/internal/embedder"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

// Candidate is a passage returned by retrieval
type Candidate struct {
	ID       string
	Content  string
	Metadata map[string]string
	// Similarity is 1 - cosine distance
	Similarity float64
	// Rank is the 1-based position in retrieval order
	Rank int
}

// Retriever embeds queries and fetches nearest passages
type Retriever struct {
	embedder      embedder.Embedder
	index         vectorstore.Index
	minSimilarity float64
	filter        bool
	logger        *slog.Logger
}

// Option configures a Retriever
type Option func(*Retriever)

// WithMinSimilarity drops candidates whose similarity is below min
func WithMinSimilarity(min float64) Option {
	return func(r *Retriever) {
		r.minSimilarity = min
		r.filter = true
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever creates a retriever over the given embedder and index
func NewRetriever(emb embedder.Embedder, index vectorstore.Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: emb,
		index:    index,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to limit candidates ordered by descending similarity.
// An empty index yields no candidates and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	count, err := r.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed passages: %w", err)
	}
	if count == 0 {
		r.logger.Debug("index is empty, skipping search")
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	neighbors, err := r.index.NearestNeighbors(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		similarity := 1 - float64(n.Distance)
		if r.filter && similarity < r.minSimilarity {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         n.ID,
			Content:    n.Content,
			Metadata:   n.Metadata,
			Similarity: similarity,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	r.logger.Debug("retrieved candidates",
		"requested", limit,
		"returned", len(candidates),
	)

	return candidates, nil
}

// Ready reports whether the index is reachable
func (r *Retriever) Ready(ctx context.Context) error {
	_, err := r.index.Count(ctx)
	return err
}

// OverfetchLimit is the number of candidates to retrieve for reranking:
// min(multiplier*topK, ceiling).
func OverfetchLimit(topK, multiplier, ceiling int) int {
	return min(multiplier*topK, ceiling)
}
