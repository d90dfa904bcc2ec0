package ingestion_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/campusqa/internal/ingestion"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

// countingEmbedder maps text length onto a fixed 2-d vector and counts batches
type countingEmbedder struct {
	mu      sync.Mutex
	batches int
	err     error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text)%7) + 1}, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "test", Dimension: 2})
	require.NoError(t, err)
	return store
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "handbook.txt", "Page one text.\fPage two text.")
	writeFile(t, dir, "guides/parking.md", "# Parking\nPermits are sold online.")
	writeFile(t, dir, "logo.png", "binary")

	docs, err := ingestion.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "guides/parking.md", docs[0].SourceFile)
	assert.Equal(t, "md", docs[0].Type)
	assert.Len(t, docs[0].Pages, 1)

	assert.Equal(t, "handbook.txt", docs[1].SourceFile)
	assert.Equal(t, "txt", docs[1].Type)
	assert.Equal(t, []string{"Page one text.", "Page two text."}, docs[1].Pages)
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := ingestion.LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestPipeline_Split(t *testing.T) {
	p := ingestion.NewPipeline(&countingEmbedder{}, newStore(t), ingestion.PipelineConfig{})

	docs := []ingestion.Document{
		{SourceFile: "handbook.txt", Type: "txt", Pages: []string{"The library closes at 9pm.", "", "Gym hours vary."}},
		{SourceFile: "parking.md", Type: "md", Pages: []string{"# Parking\nPermits are sold online."}},
	}

	passages := p.Split(docs)
	require.Len(t, passages, 3)

	first := passages[0]
	assert.Regexp(t, `^doc_[0-9a-f]{8}_0$`, first.ID)
	assert.Equal(t, "The library closes at 9pm.", first.Content)
	assert.Equal(t, "handbook.txt", first.Metadata[vectorstore.MetaSourceFile])
	assert.Equal(t, "1", first.Metadata[vectorstore.MetaPage])
	assert.Equal(t, "txt", first.Metadata[vectorstore.MetaDocumentType])
	assert.Equal(t, "0", first.Metadata[vectorstore.MetaDocIndex])
	assert.Equal(t, "26", first.Metadata[vectorstore.MetaContentLength])

	// the blank page produces nothing but still counts
	assert.Equal(t, "3", passages[1].Metadata[vectorstore.MetaPage])

	assert.Equal(t, "Parking", passages[2].Metadata["section"])
	assert.True(t, strings.HasPrefix(passages[2].Content, "[Section: Parking]"))

	again := p.Split(docs)
	assert.Equal(t, passages[0].ID, again[0].ID, "ids must be stable across runs")
	assert.NotEqual(t, passages[0].ID, passages[1].ID)
}

func TestPipeline_IngestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "handbook.txt", "The library closes at 9pm.\fThe gym opens at 6am.")
	writeFile(t, dir, "dining.md", "# Dining\nThe cafeteria serves lunch from noon.")

	store := newStore(t)
	emb := &countingEmbedder{}
	p := ingestion.NewPipeline(emb, store, ingestion.PipelineConfig{BatchSize: 2, Concurrency: 2})

	stats, err := p.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 3, stats.Passages)
	assert.Equal(t, 2, emb.batches)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// re-ingesting the same files replaces passages in place
	_, err = p.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	count, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPipeline_IngestDir_Empty(t *testing.T) {
	p := ingestion.NewPipeline(&countingEmbedder{}, newStore(t), ingestion.PipelineConfig{})

	_, err := p.IngestDir(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no .txt or .md documents")
}

func TestPipeline_EmbedError(t *testing.T) {
	store := newStore(t)
	p := ingestion.NewPipeline(&countingEmbedder{err: errors.New("model offline")}, store, ingestion.PipelineConfig{})

	docs := []ingestion.Document{{SourceFile: "a.txt", Type: "txt", Pages: []string{"Some text."}}}
	_, err := p.Ingest(context.Background(), docs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "model offline")

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
