package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPgvector(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("campusqa"),
		postgres.WithUsername("campusqa"),
		postgres.WithPassword("campusqa"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPgvectorStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	store, err := NewPgvectorStore(ctx, PgvectorConfig{DatabaseURL: startPgvector(t), Dimension: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema creation is idempotent")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Upsert(ctx, []Passage{
		{ID: "a", Content: "The library closes at 9pm on weekdays.", Embedding: []float32{1, 0, 0},
			Metadata: map[string]string{MetaSourceFile: "handbook.pdf", MetaPage: "12"}},
		{ID: "b", Content: "The gym opens at 6am.", Embedding: []float32{0, 1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, []Passage{
		{ID: "b", Content: "The gymnasium opens at 6am.", Embedding: []float32{0, 1, 0}},
	}))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	neighbors, err := store.NearestNeighbors(ctx, []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "a", neighbors[0].ID)
	assert.Equal(t, "handbook.pdf", neighbors[0].Metadata[MetaSourceFile])
	assert.Equal(t, "12", neighbors[0].Metadata[MetaPage])
	assert.Less(t, neighbors[0].Distance, neighbors[1].Distance)
	assert.Equal(t, "The gymnasium opens at 6am.", neighbors[1].Content)

	err = store.Upsert(ctx, []Passage{{ID: "c", Content: "x", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
