package embedder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
)

// DefaultLocalModel is the sentence transformer used for in-process embeddings.
const DefaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"

// LocalConfig holds configuration for the in-process embedder.
type LocalConfig struct {
	// Model is a Hugging Face model name with an ONNX export
	Model string
	// ModelDir caches downloaded models (default: ./models)
	ModelDir string
	// OnnxFilePath selects the ONNX file inside the repository
	OnnxFilePath string
	Dimension    int
}

// LocalEmbedder runs a sentence transformer in-process with the hugot Go backend.
type LocalEmbedder struct {
	mu        sync.Mutex
	run       func(texts []string) ([][]float32, error)
	destroy   func() error
	model     string
	dimension int
}

// NewLocalEmbedder downloads the model if needed and builds a feature extraction pipeline.
func NewLocalEmbedder(cfg LocalConfig) (*LocalEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultLocalModel
	}

	modelPath, err := prepareModel(model, cfg.ModelDir, cfg.OnnxFilePath)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "query-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &LocalEmbedder{
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
		destroy:   session.Destroy,
		model:     model,
		dimension: resolveDimension(model, cfg.Dimension),
	}, nil
}

// Embed generates an embedding vector for a single text input.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the pipeline once over all texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	vecs, err := e.run(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("pipeline returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *LocalEmbedder) ModelName() string {
	return e.model
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	return e.destroy()
}

// prepareModel downloads the model if it doesn't exist and returns the model path
func prepareModel(model, modelDir, onnxFile string) (string, error) {
	if modelDir == "" {
		modelDir = "./models"
	}
	if onnxFile == "" {
		onnxFile = "onnx/model.onnx"
	}

	modelPath := filepath.Join(modelDir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = onnxFile
	downloadedPath, err := hugot.DownloadModel(model, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", model, err)
	}
	return downloadedPath, nil
}

var _ Embedder = (*LocalEmbedder)(nil)
