package reranker_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/campusqa/internal/llm"
	"github.com/campusconnect/campusqa/internal/reranker"
	"github.com/campusconnect/campusqa/internal/retrieval"
)

type fixedScorer struct {
	scores []float64
	err    error
	calls  int
}

func (f *fixedScorer) Score(_ context.Context, _ string, _ []string) ([]float64, error) {
	f.calls++
	return f.scores, f.err
}

func candidates(n int) []retrieval.Candidate {
	out := make([]retrieval.Candidate, n)
	for i := range out {
		out[i] = retrieval.Candidate{
			ID:         string(rune('a' + i)),
			Content:    "passage " + string(rune('a'+i)),
			Similarity: 0.9 - float64(i)*0.1,
			Rank:       i + 1,
		}
	}
	return out
}

func TestRerank_OrdersByScore(t *testing.T) {
	scorer := &fixedScorer{scores: []float64{-2.5, 8.1, 3.0, 7.9}}
	r := reranker.New(scorer)

	got, err := r.Rerank(context.Background(), "q", candidates(4), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, []float64{8.1, 7.9, 3.0}, reranker.Scores(got))

	// retrieval similarity is carried through untouched
	assert.InDelta(t, 0.8, got[0].OriginalScore, 1e-9)
	assert.Equal(t, 2, got[0].Rank)
}

func TestRerank_TiesKeepRetrievalOrder(t *testing.T) {
	r := reranker.New(&fixedScorer{scores: []float64{1, 5, 5, 1}})

	got, err := r.Rerank(context.Background(), "q", candidates(4), 4)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, g := range got {
		ids[i] = g.ID
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestRerank_FewerCandidatesThanTopK(t *testing.T) {
	r := reranker.New(&fixedScorer{scores: []float64{0.3, 0.2}})

	got, err := r.Rerank(context.Background(), "q", candidates(2), 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRerank_EmptyInputs(t *testing.T) {
	scorer := &fixedScorer{}
	r := reranker.New(scorer)

	got, err := r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Rerank(context.Background(), "q", candidates(3), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Zero(t, scorer.calls)
}

func TestRerank_Errors(t *testing.T) {
	boom := errors.New("model unavailable")

	tests := []struct {
		name    string
		scorer  *fixedScorer
		wantErr error
	}{
		{name: "scorer failure", scorer: &fixedScorer{err: boom}, wantErr: boom},
		{name: "too few scores", scorer: &fixedScorer{scores: []float64{1}}, wantErr: reranker.ErrScoreCount},
		{name: "NaN score", scorer: &fixedScorer{scores: []float64{1, math.NaN()}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reranker.New(tt.scorer).Rerank(context.Background(), "q", candidates(2), 2)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestScoreFunc(t *testing.T) {
	fn := reranker.ScoreFunc(func(_ context.Context, query, passage string) (float64, error) {
		if strings.Contains(passage, query) {
			return 5, nil
		}
		return -5, nil
	})

	scores, err := fn.Score(context.Background(), "library", []string{"library hours", "parking"})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, -5}, scores)
}

func TestTEIScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)

		var body struct {
			Query     string   `json:"query"`
			Texts     []string `json:"texts"`
			RawScores bool     `json:"raw_scores"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "library hours", body.Query)
		assert.Len(t, body.Texts, 3)
		assert.True(t, body.RawScores)

		// sorted by score, as TEI returns them
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"index": 2, "score": 9.2},
			{"index": 0, "score": 1.5},
			{"index": 1, "score": -7.0},
		})
	}))
	defer srv.Close()

	scorer := reranker.NewTEIScorer(reranker.TEIConfig{BaseURL: srv.URL})
	scores, err := scorer.Score(context.Background(), "library hours", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -7.0, 9.2}, scores)
	assert.Equal(t, reranker.DefaultCrossEncoderModel, scorer.ModelName())
}

func TestTEIScorer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := reranker.NewTEIScorer(reranker.TEIConfig{BaseURL: srv.URL}).
		Score(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestTEIScorer_MissingIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"index": 0, "score": 1.0}})
	}))
	defer srv.Close()

	_, err := reranker.NewTEIScorer(reranker.TEIConfig{BaseURL: srv.URL}).
		Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorIs(t, err, reranker.ErrScoreCount)
}

type cannedLLM struct {
	response string
	prompt   string
}

func (c *cannedLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	c.prompt = prompt
	return c.response, nil
}

func TestLLMScorer(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []float64
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"scores": [{"doc_index": 0, "score": 6}, {"doc_index": 1, "score": -3}]}`,
			want:     []float64{6, -3},
		},
		{
			name:     "fenced json",
			response: "Here you go:\n```json\n{\"scores\": [{\"doc_index\": 1, \"score\": 9}]}\n```",
			want:     []float64{0, 9},
		},
		{
			name:     "out of range clamped",
			response: `{"scores": [{"doc_index": 0, "score": 42}, {"doc_index": 1, "score": -42}, {"doc_index": 7, "score": 1}]}`,
			want:     []float64{10, -10},
		},
		{
			name:     "not json",
			response: "The first passage is best.",
			wantErr:  true,
		},
		{
			name:     "no scores",
			response: `{"scores": []}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &cannedLLM{response: tt.response}
			scorer := reranker.NewLLMScorer(client, reranker.WithModel("llama3.2"))

			got, err := scorer.Score(context.Background(), "when does the library close", []string{"first", "second"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, client.prompt, "Question: when does the library close")
			assert.Contains(t, client.prompt, "[Doc 1]: second")
		})
	}
}
