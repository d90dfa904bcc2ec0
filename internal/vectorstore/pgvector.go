package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore implements Index on PostgreSQL with the pgvector extension
type PgvectorStore struct {
	pool      *pgxpool.Pool
	name      string
	table     string // quoted identifier
	dimension int
}

// PgvectorConfig holds configuration for the PostgreSQL store
type PgvectorConfig struct {
	DatabaseURL string
	// Table defaults to "passages"
	Table     string
	Dimension int
}

// NewPgvectorStore creates a connection pool and verifies connectivity
func NewPgvectorStore(ctx context.Context, cfg PgvectorConfig) (*PgvectorStore, error) {
	config, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "passages"
	}

	return &PgvectorStore{
		pool:      pool,
		name:      table,
		table:     pgx.Identifier{table}.Sanitize(),
		dimension: cfg.Dimension,
	}, nil
}

// Close closes the connection pool
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates the extension, table and HNSW cosine index if missing
func (s *PgvectorStore) EnsureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("cannot create %s without a vector dimension", s.table)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.name + "_embedding_idx"}.Sanitize(), s.table),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored passages
func (s *PgvectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Upsert inserts or replaces passages in a single batch
func (s *PgvectorStore) Upsert(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := checkDimensions(passages, s.dimension); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, p := range passages {
		metadata := p.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		batch.Queue(query, p.ID, p.Content, metadata, pgvector.NewVector(p.Embedding))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range passages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert passage: %w", err)
		}
	}
	return nil
}

// NearestNeighbors orders passages by cosine distance using the <=> operator
func (s *PgvectorStore) NearestNeighbors(ctx context.Context, vector []float32, n int) ([]Neighbor, error) {
	if n <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1::vector AS distance
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), n)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var (
			nb       Neighbor
			distance float64
		)
		if err := rows.Scan(&nb.ID, &nb.Content, &nb.Metadata, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if nb.Metadata == nil {
			nb.Metadata = map[string]string{}
		}
		nb.Distance = float32(distance)
		neighbors = append(neighbors, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passages: %w", err)
	}

	return neighbors, nil
}

var _ Index = (*PgvectorStore)(nil)
