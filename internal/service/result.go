package service

import (
	"strconv"
	"unicode/utf8"

	"github.com/campusconnect/campusqa/internal/confidence"
	"github.com/campusconnect/campusqa/internal/reranker"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

const unknown = "Unknown"

// AnswerResult is the response to one question.
type AnswerResult struct {
	Answer     string            `json:"answer"`
	Sources    []Source          `json:"sources"`
	Context    string            `json:"context"`
	Confidence confidence.Result `json:"confidence"`
	// RelevanceScore duplicates Confidence.Score
	RelevanceScore float64  `json:"relevance_score"`
	SourcesUsed    int      `json:"sources_used"`
	Metadata       Metadata `json:"metadata"`
}

// Source attributes part of an answer to an indexed passage.
type Source struct {
	SourceFile string `json:"source_file"`
	// Page is 1-based; zero when the passage has no page
	Page            int     `json:"page,omitempty"`
	DocumentType    string  `json:"document_type"`
	SimilarityScore float64 `json:"similarity_score"`
	RerankScore     float64 `json:"rerank_score"`
	ContentPreview  string  `json:"content_preview"`
}

// Metadata carries timings and diagnostics for a single answer.
type Metadata struct {
	RetrievalTimeMs     int64  `json:"retrieval_time_ms"`
	RerankTimeMs        int64  `json:"rerank_time_ms"`
	GenerationTimeMs    int64  `json:"generation_time_ms"`
	TotalTimeMs         int64  `json:"total_time_ms"`
	CandidatesRetrieved int    `json:"candidates_retrieved"`
	Model               string `json:"model,omitempty"`
	// Degraded is set when generation failed and ErrorAnswer was substituted
	Degraded bool `json:"degraded"`
}

func newSource(r reranker.Reranked, previewLength int) Source {
	page, _ := strconv.Atoi(r.Metadata[vectorstore.MetaPage])

	return Source{
		SourceFile:      valueOr(r.Metadata[vectorstore.MetaSourceFile], unknown),
		Page:            page,
		DocumentType:    valueOr(r.Metadata[vectorstore.MetaDocumentType], unknown),
		SimilarityScore: r.OriginalScore,
		RerankScore:     r.RerankScore,
		ContentPreview:  Preview(r.Content, previewLength),
	}
}

// Preview returns the first n characters of content, followed by "..." when truncated.
func Preview(content string, n int) string {
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	return string([]rune(content)[:n]) + "..."
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
