package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/indexer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest once, then re-ingest whenever files under the content root change",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, app.Options{RequireEmbedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.StartWatching(ctx, func(r *indexer.Report) { printReport(r, false) })
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.Config.Content.Root)

	<-ctx.Done()
	w.Stop()
	return nil
}
