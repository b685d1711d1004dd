package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/indexer"
)

var ingestOpts struct {
	contexts []string
	dryRun   bool
	force    bool
	reset    bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index new and changed files under the content root",
	Long: `Walks the content root and indexes every new or modified .md and .txt file.

Each file is extracted, chunked, embedded, and upserted into the vector and
keyword indexes. Files already indexed with their current contents are
skipped unless --force is given. Chunks whose embedding failed are stored
with a placeholder vector and retried on the next run.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestOpts.contexts, "context", nil, "only ingest these context ids")
	ingestCmd.Flags().BoolVar(&ingestOpts.dryRun, "dry-run", false, "extract and chunk without embedding or uploading")
	ingestCmd.Flags().BoolVar(&ingestOpts.force, "force", false, "reprocess files even if unchanged")
	ingestCmd.Flags().BoolVar(&ingestOpts.reset, "reset", false, "delete indexed chunks and tracking (for --context, or everything) first")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, app.Options{Offline: ingestOpts.dryRun, RequireEmbedder: !ingestOpts.dryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Ingesting %s...\n", a.Config.Content.Root)
	report, err := a.Pipeline.Run(ctx, indexer.Options{
		Root:     a.Config.Content.Root,
		Contexts: ingestOpts.contexts,
		DryRun:   ingestOpts.dryRun,
		Force:    ingestOpts.force,
		Reset:    ingestOpts.reset,
	})
	if report != nil {
		printReport(report, ingestOpts.dryRun)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func printReport(r *indexer.Report, dryRun bool) {
	fmt.Println()
	if dryRun {
		fmt.Println("Dry run complete (nothing embedded or uploaded)")
	} else {
		fmt.Println("Ingestion complete!")
	}
	fmt.Printf("  Files:     %d discovered, %d processed, %d skipped, %d failed\n",
		r.Discovered, r.Processed, r.Skipped, r.Failed)
	fmt.Printf("  Chunks:    %d\n", r.Chunks)
	if !dryRun {
		fmt.Printf("  Uploaded:  %d (%d failed)\n", r.Uploaded, r.UploadFailed)
	}
	if r.Placeholders > 0 {
		fmt.Printf("  Placeholder vectors: %d (retried next run)\n", r.Placeholders)
	}
	if r.Deleted > 0 {
		fmt.Printf("  Deleted:   %d\n", r.Deleted)
	}
	fmt.Printf("  Duration:  %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, w := range r.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(r.Failures) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, f := range r.Failures {
			fmt.Printf("  - %s: %s\n", f.Path, f.Reason)
		}
	}
}
