// Package app builds the question answering pipeline from configuration.
// Both the daemon and the CLI use it, so a question asked locally goes
// through exactly the stages the server runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/campusconnect/campusqa/internal/auth"
	"github.com/campusconnect/campusqa/internal/confidence"
	"github.com/campusconnect/campusqa/internal/config"
	"github.com/campusconnect/campusqa/internal/embedder"
	"github.com/campusconnect/campusqa/internal/ingestion"
	"github.com/campusconnect/campusqa/internal/llm"
	"github.com/campusconnect/campusqa/internal/query"
	"github.com/campusconnect/campusqa/internal/reranker"
	"github.com/campusconnect/campusqa/internal/retrieval"
	"github.com/campusconnect/campusqa/internal/service"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

// App holds the wired pipeline and the resources it owns
type App struct {
	Config    *config.Config
	Embedder  embedder.Embedder
	Index     vectorstore.Index
	Retriever *retrieval.Retriever
	Service   *service.AnswerService
	Logger    *slog.Logger

	closers []io.Closer
}

// Close releases every resource in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewIndexOnly opens the embedder and index without the generation stages.
// Ingestion needs nothing more.
func NewIndexOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	emb, closer, err := embedder.New(embedder.Config{
		Provider:  cfg.EmbeddingProvider,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
		ModelDir:  cfg.ModelDir,
		OllamaURL: cfg.OllamaURL,
		APIKey:    cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.Embedder = emb
	a.closers = append(a.closers, closer)
	logger.Info("initialized embedder", "provider", cfg.EmbeddingProvider, "model", emb.ModelName(), "dimension", emb.Dimension())

	index, closer, err := OpenIndex(ctx, cfg, emb.Dimension())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = index
	a.closers = append(a.closers, closer)
	logger.Info("opened vector index", "backend", cfg.IndexBackend, "collection", cfg.CollectionName)

	return a, nil
}

// New builds the full pipeline
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a, err := NewIndexOnly(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	normalizer, err := NewNormalizer(cfg.Query)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator, closer, err := llm.NewClient(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	a.closers = append(a.closers, closer)
	logger.Info("initialized generation model", "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	var retrieverOpts []retrieval.Option
	retrieverOpts = append(retrieverOpts, retrieval.WithLogger(logger))
	if cfg.SimilarityThreshold > 0 {
		retrieverOpts = append(retrieverOpts, retrieval.WithMinSimilarity(cfg.SimilarityThreshold))
	}
	a.Retriever = retrieval.NewRetriever(a.Embedder, a.Index, retrieverOpts...)

	estimator := confidence.NewEstimator(confidence.Calibration{
		Offset: cfg.ConfidenceOffset,
		Span:   cfg.ConfidenceSpan,
		Window: cfg.ConfidenceWindow,
		High:   cfg.ConfidenceHigh,
		Medium: cfg.ConfidenceMedium,
	})

	a.Service = service.NewAnswerService(
		normalizer,
		a.Retriever,
		reranker.New(NewScorer(cfg, generator)),
		estimator,
		generator,
		service.Options{
			DefaultTopK:         cfg.DefaultTopK,
			OverfetchMultiplier: cfg.OverfetchMultiplier,
			OverfetchCap:        cfg.OverfetchCap,
			PreviewLength:       cfg.PreviewLength,
			Generation: llm.GenerateOptions{
				Model:       cfg.LLMModel,
				Temperature: cfg.LLMTemperature,
				MaxTokens:   cfg.LLMMaxTokens,
			},
			Logger: logger,
		},
	)

	return a, nil
}

// OpenIndex connects to the configured backend and makes sure its schema exists
func OpenIndex(ctx context.Context, cfg *config.Config, dimension int) (vectorstore.Index, io.Closer, error) {
	switch cfg.IndexBackend {
	case "qdrant":
		store, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			URL:        cfg.QdrantGRPCURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store, nil

	case "pgvector":
		store, err := vectorstore.NewPgvectorStore(ctx, vectorstore.PgvectorConfig{
			DatabaseURL: cfg.DatabaseURL,
			Table:       cfg.CollectionName,
			Dimension:   dimension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store, nil

	default:
		store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       cfg.ChromemPath,
			Collection: cfg.CollectionName,
			Compress:   true,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

// NewNormalizer applies the TOML overlay, if any, to the default dictionary
func NewNormalizer(qc *config.QueryConfig) (*query.Normalizer, error) {
	if qc == nil {
		return query.NewNormalizer()
	}

	var abbrs []query.Abbreviation
	if !qc.ReplaceDefaults {
		abbrs = append(abbrs, query.DefaultAbbreviations...)
	}
	for _, a := range qc.Abbreviations {
		abbrs = append(abbrs, query.Abbreviation{Short: a.Short, Long: a.Long})
	}

	opts := []query.Option{query.WithAbbreviations(abbrs)}
	if qc.MaxVariations > 0 {
		opts = append(opts, query.WithMaxVariations(qc.MaxVariations))
	}

	n, err := query.NewNormalizer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build query normalizer: %w", err)
	}
	return n, nil
}

// NewScorer picks the relevance model. The llm scorer reuses the generation client.
func NewScorer(cfg *config.Config, generator llm.LLM) reranker.Scorer {
	if cfg.RerankerProvider == "llm" {
		return reranker.NewLLMScorer(generator, reranker.WithModel(cfg.LLMModel))
	}
	return reranker.NewTEIScorer(reranker.TEIConfig{
		BaseURL: cfg.RerankerURL,
		Model:   cfg.RerankerModel,
	})
}

// NewPipeline builds the ingestion pipeline with chunk sizes fitted to the embedding model
func (a *App) NewPipeline() (*ingestion.Pipeline, error) {
	chunker := ingestion.ChunkerConfig{
		Method:     a.Config.ChunkMethod,
		TargetSize: a.Config.ChunkTargetSize,
		MaxSize:    a.Config.ChunkMaxSize,
		Overlap:    a.Config.ChunkOverlap,
	}
	if err := ingestion.ValidateChunkerConfig(chunker); err != nil {
		return nil, err
	}

	fitted := ingestion.FitToModel(chunker, embedder.GetModelConfig(a.Embedder.ModelName()))
	if fitted != chunker {
		a.Logger.Info("chunk sizes reduced for embedding model",
			"model", a.Embedder.ModelName(),
			"target_size", fitted.TargetSize,
			"max_size", fitted.MaxSize,
		)
	}

	return ingestion.NewPipeline(a.Embedder, a.Index, ingestion.PipelineConfig{
		Chunker:     fitted,
		Concurrency: a.Config.EmbedConcurrency,
		Logger:      a.Logger,
	}), nil
}

// EnsureIngested indexes AutoIngestDir when the index is empty
func (a *App) EnsureIngested(ctx context.Context) error {
	if a.Config.AutoIngestDir == "" {
		return nil
	}

	count, err := a.Index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count indexed passages: %w", err)
	}
	if count > 0 {
		a.Logger.Info("index already populated", "passages", count)
		return nil
	}

	a.Logger.Info("index is empty, ingesting documents", "dir", a.Config.AutoIngestDir)
	pipeline, err := a.NewPipeline()
	if err != nil {
		return err
	}
	if _, err := pipeline.IngestDir(ctx, a.Config.AutoIngestDir); err != nil {
		return fmt.Errorf("failed to ingest %s: %w", a.Config.AutoIngestDir, err)
	}
	return nil
}

// AuthManager returns a token manager, or nil when auth is disabled
func AuthManager(cfg *config.Config) *auth.JWTManager {
	if !cfg.AuthEnabled() {
		return nil
	}
	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Issuer = cfg.JWTIssuer
	jwtCfg.Expiry = cfg.JWTExpiry
	return auth.NewJWTManager(jwtCfg)
}
