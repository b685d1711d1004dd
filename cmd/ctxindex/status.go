package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index health, counts, and tracking state",
	RunE:  runStatus,
}

var trackingCmd = &cobra.Command{
	Use:   "tracking",
	Short: "Inspect or reset the change tracking store",
}

var trackingClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget which files were processed so the next ingest reprocesses everything",
	Long: `Deletes the tracking store. Indexed chunks are kept; the next ingest
re-embeds every file and overwrites its chunks in place.`,
	RunE: runTrackingClear,
}

func init() {
	trackingCmd.AddCommand(trackingClearCmd)
	rootCmd.AddCommand(statusCmd, trackingCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Query.Status(ctx)
	if err != nil {
		return err
	}
	tracked := a.Tracker.Stats()

	health := "healthy"
	if !st.Healthy {
		health = "unhealthy: " + st.Error
	}
	fmt.Printf("Backend:       %s\n", health)
	fmt.Printf("Collection:    %s (dimension %d)\n", a.Config.Qdrant.Collection, st.Dimension)
	fmt.Printf("Chunks:        %d\n", st.TotalChunks)
	fmt.Printf("Placeholders:  %d\n", st.Placeholders)
	fmt.Printf("Contexts:      %d\n", st.Contexts)
	fmt.Printf("Tracked files: %d (%s)\n", tracked.Count, tracked.Location)
	if a.Embedder == nil {
		fmt.Println("Embeddings:    unavailable (keyword search only)")
	}

	if st.Healthy && st.Contexts > 0 {
		contexts, err := a.Query.Contexts(ctx)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, c := range contexts {
			fmt.Printf("  %-24s %d chunks\n", c.ID, c.Chunks)
		}
	}
	return nil
}

func runTrackingClear(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store := tracker.Open(cfg.Content.TrackingFile, logger)
	n := store.Stats().Count
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear tracking store: %w", err)
	}
	fmt.Printf("Cleared %d tracked files from %s\n", n, cfg.Content.TrackingFile)
	return nil
}
