package vectorstore

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// ChromemStore implements Index with an embedded chromem-go collection.
// Documents are persisted under a directory when one is configured.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

// ChromemConfig holds configuration for the embedded store
type ChromemConfig struct {
	// Path is the persistence directory; empty keeps everything in memory
	Path       string
	Collection string
	Compress   bool
	// Dimension, when positive, is enforced on upsert
	Dimension int
}

// NewChromemStore opens or creates the collection
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", cfg.Path, err)
		}
	}

	// Embeddings are always computed by the caller, so no embedding func
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		dimension:  cfg.Dimension,
	}, nil
}

// NearestNeighbors runs an exhaustive cosine search over the collection
func (s *ChromemStore) NearestNeighbors(ctx context.Context, vector []float32, n int) ([]Neighbor, error) {
	// chromem rejects n larger than the collection
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, Neighbor{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: copyMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}
	return neighbors, nil
}

// Count returns the number of documents in the collection
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Upsert adds passages, replacing any with the same ID
func (s *ChromemStore) Upsert(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := checkDimensions(passages, s.dimension); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  copyMetadata(p.Metadata),
			Embedding: p.Embedding,
			Content:   p.Content,
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Export writes a gob snapshot of the database to path
func (s *ChromemStore) Export(path string, compress bool) error {
	if err := s.db.ExportToFile(path, compress, ""); err != nil {
		return fmt.Errorf("failed to export chromem db: %w", err)
	}
	return nil
}

// Close is a no-op; persistent documents are written on upsert
func (s *ChromemStore) Close() error {
	return nil
}

var _ Index = (*ChromemStore)(nil)
