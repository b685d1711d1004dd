// Package app wires configured components for the ctxindex binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mike-a-ellis/ctxindex/internal/chunker"
	"github.com/mike-a-ellis/ctxindex/internal/config"
	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/extract"
	"github.com/mike-a-ellis/ctxindex/internal/indexer"
	"github.com/mike-a-ellis/ctxindex/internal/metadata"
	"github.com/mike-a-ellis/ctxindex/internal/query"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
	"github.com/mike-a-ellis/ctxindex/internal/tracker"
)

// Options select which components Open builds.
type Options struct {
	// Offline replaces Qdrant and the on-disk keyword index with
	// in-memory stores and disables metadata generation. Used for dry runs.
	Offline bool
	// RequireEmbedder fails Open when no embedding provider can be
	// created. Otherwise a missing API key leaves only keyword search.
	RequireEmbedder bool
}

// App holds the components built from one configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Index    *storage.Index
	Vectors  storage.VectorStore
	Embedder *embedding.Embedder // nil when no provider is configured
	Tracker  *tracker.Store
	Pipeline *indexer.Pipeline
	Query    *query.Executor
}

// Open builds the index, embedder, tracker, ingestion pipeline, and query
// executor described by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	vectors, keywords, err := openStores(ctx, cfg, opts.Offline)
	if err != nil {
		return nil, err
	}
	a.Vectors = vectors
	a.Index = storage.NewIndex(vectors, keywords,
		storage.WithFusionWeights(cfg.Search.KeywordWeight, cfg.Search.SemanticWeight),
		storage.WithLogger(logger))

	client, err := embedding.NewClient(embedding.ClientConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimension:         cfg.Embedding.Dimension,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
	switch {
	case err == nil:
		a.Embedder = embedding.NewEmbedder(client, cfg.Embedding.Dimension,
			embedding.WithBatchSize(cfg.Embedding.BatchSize),
			embedding.WithBatchDelay(cfg.Embedding.BatchDelay),
			embedding.WithLogger(logger))
	case opts.RequireEmbedder:
		a.Index.Close()
		return nil, fmt.Errorf("%w: %w", indexer.ErrConfiguration, err)
	default:
		logger.Warn("No embedding provider, only keyword search is available", "error", err)
	}

	a.Tracker = tracker.Open(cfg.Content.TrackingFile, logger)

	var classifier indexer.Classifier
	if cfg.Metadata.Enabled && client != nil && !opts.Offline {
		classifier = metadata.NewGenerator(client.Client(),
			metadata.WithModel(cfg.Metadata.Model),
			metadata.WithCategories(cfg.Metadata.Categories),
			metadata.WithLogger(logger))
	}

	a.Pipeline = indexer.NewPipeline(
		extract.New(cfg.Content.Root, logger),
		chunker.New(
			chunker.WithMaxSize(cfg.Chunking.MaxSize),
			chunker.WithOverlapWords(cfg.Chunking.OverlapWords),
			chunker.WithMinSize(cfg.Chunking.MinSize),
		),
		a.Embedder,
		indexer.NewWriter(a.Index, cfg.Qdrant.UploadBatch, logger),
		a.Tracker,
		classifier,
		logger,
	)

	var qe query.Embedder
	if a.Embedder != nil {
		qe = a.Embedder
	}
	a.Query = query.NewExecutor(a.Index, qe, logger)
	return a, nil
}

func openStores(ctx context.Context, cfg *config.Config, offline bool) (storage.VectorStore, storage.KeywordStore, error) {
	if offline {
		keywords, err := storage.NewBleveStore("")
		if err != nil {
			return nil, nil, err
		}
		return storage.NewMemoryStore(cfg.Embedding.Dimension), keywords, nil
	}

	qs, err := storage.NewQdrantStore(ctx, storage.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		Dimension:  cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := qs.EnsureCollection(ctx); err != nil {
		qs.Close()
		if errors.Is(err, storage.ErrDimensionMismatch) {
			return nil, nil, fmt.Errorf("%w: %w", indexer.ErrConfiguration, err)
		}
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Keyword.IndexPath), 0o755); err != nil {
		qs.Close()
		return nil, nil, fmt.Errorf("failed to create keyword index directory: %w", err)
	}
	keywords, err := storage.NewBleveStore(cfg.Keyword.IndexPath)
	if err != nil {
		qs.Close()
		return nil, nil, err
	}
	return qs, keywords, nil
}

// Close releases the index stores.
func (a *App) Close() error {
	return a.Index.Close()
}
