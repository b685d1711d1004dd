package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Content.Root == "" {
		cfg.Content.Root = "./content"
	}
	if cfg.Content.TrackingFile == "" {
		cfg.Content.TrackingFile = ".ctxindex/tracking.json"
	}
	if cfg.Keyword.IndexPath == "" {
		cfg.Keyword.IndexPath = ".ctxindex/keyword.bleve"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "context_chunks"
	}
	if cfg.Qdrant.UploadBatch == 0 {
		cfg.Qdrant.UploadBatch = 64
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.BatchDelay == 0 {
		cfg.Embedding.BatchDelay = 500 * time.Millisecond
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 2000
	}
	if cfg.Chunking.OverlapWords == 0 {
		cfg.Chunking.OverlapWords = 20
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 100
	}
	if cfg.Search.DefaultMode == "" {
		cfg.Search.DefaultMode = "hybrid"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.KeywordWeight == 0 && cfg.Search.SemanticWeight == 0 {
		cfg.Search.KeywordWeight = 0.3
		cfg.Search.SemanticWeight = 0.7
	}
	if cfg.Metadata.Model == "" {
		cfg.Metadata.Model = "gpt-4o-mini"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.GitHub.Ref == "" {
		cfg.GitHub.Ref = "main"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
