package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/mike-a-ellis/ctxindex/internal/indexer"
	"github.com/mike-a-ellis/ctxindex/internal/watcher"
)

// StartWatching ingests the content root once, then re-ingests whenever
// files under it change and drops the chunks of removed files. onReport,
// if set, receives every report that processed or failed a file. The
// caller stops the returned watcher.
func (a *App) StartWatching(ctx context.Context, onReport func(*indexer.Report)) (*watcher.Watcher, error) {
	if a.Embedder == nil {
		return nil, fmt.Errorf("%w: watching needs an embedding provider", indexer.ErrConfiguration)
	}

	root := a.Config.Content.Root
	ingest := func(ctx context.Context) {
		report, err := a.Pipeline.Run(ctx, indexer.Options{Root: root})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.Logger.Error("Ingestion failed", "error", err)
			}
			return
		}
		if onReport != nil && (report.Processed > 0 || report.Failed > 0) {
			onReport(report)
		}
	}
	remove := func(ctx context.Context, path string) {
		if _, err := a.Pipeline.Remove(ctx, path); err != nil {
			a.Logger.Error("Failed to remove document", "path", path, "error", err)
		}
	}

	ingest(ctx)

	w := watcher.New(root, ingest, remove,
		watcher.WithDebounce(a.Config.Watch.Debounce),
		watcher.WithLogger(a.Logger))
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return w, nil
}
