// Package main provides the ctxindex CLI for ingesting and searching context documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/config"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ctxindex",
	Short: "Context document indexing and search",
	Long: `ctxindex ingests markdown and text files from a content root, one
subdirectory per context, into a Qdrant vector index and a Bleve keyword
index, and searches them by keyword, vector similarity, or both.

Environment variables:
  OPENAI_API_KEY        OpenAI API key for embeddings (required for ingest)
  QDRANT_HOST           Qdrant hostname (default: localhost)
  QDRANT_PORT           Qdrant gRPC port (default: 6334)
  CTXINDEX_CONTENT_ROOT Content root (default: ./content)
  GITHUB_TOKEN          GitHub token for fetch (optional)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	logger := newLogger()
	slog.SetDefault(logger)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(ctx, cfg, logger, opts)
	if errors.Is(err, storage.ErrKeywordIndexLocked) {
		return nil, fmt.Errorf("%w (is mcp-server running? stop it, or start it with -watch so it ingests changes itself)", err)
	}
	return a, err
}
