package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/campusqa/internal/vectorstore"
)

// keywordEmbedder maps texts onto fixed axes by keyword
type keywordEmbedder struct {
	calls int
	err   error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return axis(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int { return 3 }

func (e *keywordEmbedder) ModelName() string { return "keyword" }

func axis(text string) []float32 {
	switch {
	case strings.Contains(text, "library"):
		return []float32{1, 0.1, 0}
	case strings.Contains(text, "gym"):
		return []float32{0, 1, 0.1}
	default:
		return []float32{0.1, 0, 1}
	}
}

// stubIndex returns canned neighbors
type stubIndex struct {
	count     int
	neighbors []vectorstore.Neighbor
	err       error
	queried   int
	lastN     int
}

func (s *stubIndex) NearestNeighbors(_ context.Context, _ []float32, n int) ([]vectorstore.Neighbor, error) {
	s.queried++
	s.lastN = n
	if s.err != nil {
		return nil, s.err
	}
	if n < len(s.neighbors) {
		return s.neighbors[:n], nil
	}
	return s.neighbors, nil
}

func (s *stubIndex) Count(context.Context) (int, error) { return s.count, nil }

func (s *stubIndex) Upsert(context.Context, []vectorstore.Passage) error { return nil }

func TestRetrieveEmptyIndex(t *testing.T) {
	emb := &keywordEmbedder{}
	idx := &stubIndex{}
	r := NewRetriever(emb, idx)

	got, err := r.Retrieve(context.Background(), "when does the library close", 15)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, idx.queried, "empty index must not be searched")
	assert.Zero(t, emb.calls)
}

func TestRetrieveConvertsDistance(t *testing.T) {
	idx := &stubIndex{
		count: 3,
		neighbors: []vectorstore.Neighbor{
			{ID: "a", Content: "A", Distance: 0.1},
			{ID: "b", Content: "B", Distance: 0.4},
			{ID: "c", Content: "C", Distance: 1.3},
		},
	}
	r := NewRetriever(&keywordEmbedder{}, idx)

	got, err := r.Retrieve(context.Background(), "q", 15)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, idx.lastN, "limit is clamped to the index size")

	assert.InDelta(t, 0.9, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.6, got[1].Similarity, 1e-6)
	assert.InDelta(t, -0.3, got[2].Similarity, 1e-6, "no threshold keeps negative similarity")
	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestRetrieveThreshold(t *testing.T) {
	idx := &stubIndex{
		count: 3,
		neighbors: []vectorstore.Neighbor{
			{ID: "a", Distance: 0.1},
			{ID: "b", Distance: 0.5},
			{ID: "c", Distance: 0.8},
		},
	}
	r := NewRetriever(&keywordEmbedder{}, idx, WithMinSimilarity(0.5))

	got, err := r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, 2, got[1].Rank)
}

func TestRetrieveErrors(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{err: errors.New("model down")}, &stubIndex{count: 1})
		_, err := r.Retrieve(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "model down")
	})

	t.Run("index failure", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{}, &stubIndex{count: 1, err: errors.New("connection refused")})
		_, err := r.Retrieve(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("non-positive limit", func(t *testing.T) {
		idx := &stubIndex{count: 1}
		r := NewRetriever(&keywordEmbedder{}, idx)
		got, err := r.Retrieve(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, idx.queried)
	})
}

func TestRetrieveWithChromem(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "campus"})
	require.NoError(t, err)

	texts := []string{
		"The library closes at 9pm on weekdays.",
		"The gym opens at 6am.",
		"Registration for fall semester starts in August.",
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	passages := make([]vectorstore.Passage, len(texts))
	for i, text := range texts {
		passages[i] = vectorstore.Passage{
			ID:        string(rune('a' + i)),
			Content:   text,
			Embedding: vecs[i],
			Metadata:  map[string]string{vectorstore.MetaSourceFile: "handbook.pdf"},
		}
	}
	require.NoError(t, store.Upsert(ctx, passages))

	r := NewRetriever(emb, store)
	got, err := r.Retrieve(ctx, "when does the library close", 15)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "The library closes at 9pm on weekdays.", got[0].Content)
	assert.Equal(t, "handbook.pdf", got[0].Metadata[vectorstore.MetaSourceFile])
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
}

func TestOverfetchLimit(t *testing.T) {
	tests := []struct {
		topK, want int
	}{
		{1, 3},
		{3, 9},
		{5, 15},
		{6, 15},
		{20, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OverfetchLimit(tt.topK, 3, 15), "topK=%d", tt.topK)
	}
}
