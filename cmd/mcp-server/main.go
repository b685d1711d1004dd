// Package main provides the MCP server entry point for ctxindex.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/config"
	"github.com/mike-a-ellis/ctxindex/internal/indexer"
	mcpserver "github.com/mike-a-ellis/ctxindex/internal/mcp"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

var version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	watch := flag.Bool("watch", false, "ingest the content root and re-ingest on changes")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// stdout carries the stdio transport, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *watch, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, watch bool, logger *slog.Logger) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if watch {
		cfg.Server.Watch = true
	}

	a, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	// The server holds the keyword index open, so it only sees new
	// content when it does the ingesting itself.
	if cfg.Server.Watch {
		go func() {
			w, err := a.StartWatching(ctx, func(r *indexer.Report) {
				logger.Info("Ingested changes", "processed", r.Processed, "failed", r.Failed, "chunks", r.Chunks)
			})
			if err != nil {
				logger.Error("Content watcher disabled", "error", err)
				return
			}
			<-ctx.Done()
			w.Stop()
		}()
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Query: a.Query,
		Defaults: mcpserver.Defaults{
			Mode: storage.Mode(cfg.Search.DefaultMode),
			TopK: cfg.Search.DefaultTopK,
		},
		Version: version,
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           server.Routes(true),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.HTTP {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode: the HTTP listener only serves the landing page and health check
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting ctxindex MCP server (stdio mode)")
	return server.Run(ctx)
}
