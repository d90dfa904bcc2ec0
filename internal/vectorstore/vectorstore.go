// Package vectorstore provides the passage index used for nearest-neighbor retrieval.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Metadata keys written at ingestion time
const (
	MetaSourceFile    = "source_file"
	MetaPage          = "page"
	MetaDocumentType  = "document_type"
	MetaDocIndex      = "doc_index"
	MetaContentLength = "content_length"
)

// ErrDimensionMismatch is returned when an embedding does not match the index dimension
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Passage is a chunk of campus document text with its embedding
type Passage struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Neighbor is a passage returned by a nearest-neighbor query
type Neighbor struct {
	ID       string
	Content  string
	Metadata map[string]string
	// Distance is the cosine distance to the query, in [0, 2]
	Distance float32
}

// Index defines the operations the query pipeline and ingestion need from a vector store.
// Implementations must be safe for concurrent reads.
type Index interface {
	// NearestNeighbors returns up to n passages ordered by ascending cosine distance
	NearestNeighbors(ctx context.Context, vector []float32, n int) ([]Neighbor, error)

	// Count returns the number of stored passages
	Count(ctx context.Context) (int, error)

	// Upsert inserts or replaces passages by ID
	Upsert(ctx context.Context, passages []Passage) error
}

func checkDimensions(passages []Passage, dimension int) error {
	if dimension <= 0 {
		return nil
	}
	for _, p := range passages {
		if len(p.Embedding) != dimension {
			return fmt.Errorf("%w: passage %s has %d, index expects %d", ErrDimensionMismatch, p.ID, len(p.Embedding), dimension)
		}
	}
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
