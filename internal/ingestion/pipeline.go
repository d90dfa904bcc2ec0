package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/campusconnect/campusqa/internal/embedder"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

// Document is a loaded source file split into pages
type Document struct {
	// SourceFile is the path relative to the ingested directory
	SourceFile string
	Type       string
	Pages      []string
}

// PipelineConfig holds configuration for the ingestion pipeline
type PipelineConfig struct {
	Chunker ChunkerConfig

	// BatchSize is the number of passages per embedding call and upsert
	BatchSize int

	// Concurrency bounds in-flight embedding calls
	Concurrency int

	Logger *slog.Logger
}

// Stats summarizes an ingestion run
type Stats struct {
	Files    int
	Pages    int
	Passages int
	Duration time.Duration
}

// Pipeline chunks documents, embeds the chunks and upserts them into the index
type Pipeline struct {
	config   PipelineConfig
	chunker  *Chunker
	embedder embedder.Embedder
	index    vectorstore.Index
	logger   *slog.Logger
}

// supportedExtensions maps file extensions to document types
var supportedExtensions = map[string]string{
	".txt": "txt",
	".md":  "md",
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(emb embedder.Embedder, index vectorstore.Index, config PipelineConfig) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config:   config,
		chunker:  NewChunker(config.Chunker),
		embedder: emb,
		index:    index,
		logger:   logger,
	}
}

// IngestDir loads every supported file under dir and indexes it
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (*Stats, error) {
	docs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no .txt or .md documents found in %s", dir)
	}
	return p.Ingest(ctx, docs)
}

// Ingest chunks, embeds and upserts the given documents
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) (*Stats, error) {
	start := time.Now()

	passages := p.Split(docs)
	stats := &Stats{Files: len(docs), Passages: len(passages)}
	for _, d := range docs {
		stats.Pages += len(d.Pages)
	}
	p.logger.Info("chunked documents", "files", stats.Files, "pages", stats.Pages, "passages", stats.Passages)

	if err := p.embed(ctx, passages); err != nil {
		return nil, err
	}

	for i := 0; i < len(passages); i += p.config.BatchSize {
		end := min(i+p.config.BatchSize, len(passages))
		if err := p.index.Upsert(ctx, passages[i:end]); err != nil {
			return nil, fmt.Errorf("failed to upsert passages %d-%d: %w", i, end, err)
		}
	}

	stats.Duration = time.Since(start)
	p.logger.Info("ingestion complete", "passages", stats.Passages, "duration", stats.Duration)
	return stats, nil
}

// Split turns documents into passages with ingestion metadata. Passage IDs
// derive from source, page and content, so re-ingesting a file replaces its
// passages instead of duplicating them.
func (p *Pipeline) Split(docs []Document) []vectorstore.Passage {
	var passages []vectorstore.Passage

	for _, doc := range docs {
		for pageIdx, page := range doc.Pages {
			for _, chunk := range p.chunker.Chunk(page) {
				i := len(passages)
				metadata := map[string]string{
					vectorstore.MetaSourceFile:    doc.SourceFile,
					vectorstore.MetaPage:          strconv.Itoa(pageIdx + 1),
					vectorstore.MetaDocumentType:  doc.Type,
					vectorstore.MetaDocIndex:      strconv.Itoa(i),
					vectorstore.MetaContentLength: strconv.Itoa(utf8.RuneCountInString(chunk.Content)),
				}
				if s := chunk.Metadata["section"]; s != "" {
					metadata["section"] = s
				}

				passages = append(passages, vectorstore.Passage{
					ID:       passageID(doc.SourceFile, pageIdx+1, chunk.Content, i),
					Content:  chunk.Content,
					Metadata: metadata,
				})
			}
		}
	}
	return passages
}

// embed fills in embeddings batch by batch with bounded concurrency
func (p *Pipeline) embed(ctx context.Context, passages []vectorstore.Passage) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for start := 0; start < len(passages); start += p.config.BatchSize {
		batch := passages[start:min(start+p.config.BatchSize, len(passages))]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, b := range batch {
				texts[i] = b.Content
			}

			vectors, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed passages: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// LoadDir reads all .txt and .md files under dir. Form feeds separate pages.
func LoadDir(dir string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		docType, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		docs = append(docs, Document{
			SourceFile: filepath.ToSlash(rel),
			Type:       docType,
			Pages:      strings.Split(string(data), "\f"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents from %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceFile < docs[j].SourceFile })
	return docs, nil
}

// passageID is doc_<8 hex>_<index>, the hex taken from a content hash
func passageID(source string, page int, content string, index int) string {
	hash := sha256.Sum256([]byte(source + "\x00" + strconv.Itoa(page) + "\x00" + content))
	return "doc_" + hex.EncodeToString(hash[:4]) + "_" + strconv.Itoa(index)
}

// ValidateChunkerConfig validates a chunker configuration
func ValidateChunkerConfig(config ChunkerConfig) error {
	switch config.Method {
	case "", MethodFixed, MethodSentence, MethodSection:
	default:
		return fmt.Errorf("invalid chunking method: %s (valid: fixed, sentence, section)", config.Method)
	}

	if config.TargetSize < 0 || config.MaxSize < 0 || config.Overlap < 0 {
		return fmt.Errorf("chunk sizes cannot be negative")
	}
	if config.TargetSize > 0 && config.MaxSize > 0 && config.TargetSize > config.MaxSize {
		return fmt.Errorf("target_size (%d) cannot be greater than max_size (%d)", config.TargetSize, config.MaxSize)
	}
	if config.Overlap > 0 && config.TargetSize > 0 && config.Overlap >= config.TargetSize {
		return fmt.Errorf("overlap (%d) must be less than target_size (%d)", config.Overlap, config.TargetSize)
	}

	return nil
}

// FitToModel shrinks chunk sizes that would overflow the embedding model's context
func FitToModel(config ChunkerConfig, model embedder.ModelConfig) ChunkerConfig {
	if model.MaxChunkWords > 0 && (config.MaxSize == 0 || config.MaxSize > model.MaxChunkWords) {
		config.MaxSize = model.MaxChunkWords
	}
	if model.TargetChunkWords > 0 && (config.TargetSize == 0 || config.TargetSize > config.MaxSize) {
		config.TargetSize = min(model.TargetChunkWords, config.MaxSize)
	}
	if config.Overlap >= config.TargetSize {
		config.Overlap = config.TargetSize / 6
	}
	return config
}
