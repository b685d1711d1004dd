package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	ghclient "github.com/mike-a-ellis/ctxindex/internal/github"
	"github.com/mike-a-ellis/ctxindex/internal/indexer"
)

var fetchIngest bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Mirror a GitHub repository directory into the content root",
	Long: `Copies every .md and .txt file under github.path in github.owner/github.repo
into the content root, keeping the directory layout. Files whose contents
are unchanged are left alone so the next ingest skips them.

Configure the source in the config file:

  github:
    owner: my-org
    repo: context-docs
    path: contexts
    ref: main`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchIngest, "ingest", false, "run ingest after mirroring")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return errors.New("github.owner and github.repo must be configured")
	}

	client, err := ghclient.NewClient(cfg.GitHub.Token)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(client, cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Path, cfg.GitHub.Ref, logger)

	fmt.Printf("Mirroring %s/%s/%s into %s...\n", cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Path, cfg.Content.Root)
	report, err := fetcher.Mirror(ctx, cfg.Content.Root)
	if err != nil {
		return fmt.Errorf("mirror failed: %w", err)
	}
	fmt.Printf("  Commit:    %s\n", report.CommitSHA)
	fmt.Printf("  Files:     %d listed, %d written, %d unchanged\n", report.Listed, report.Written, report.Unchanged)
	for _, f := range report.Failed {
		fmt.Printf("  - failed: %s\n", f)
	}

	if !fetchIngest {
		return nil
	}
	a, err := app.Open(ctx, cfg, logger, app.Options{RequireEmbedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ingestReport, err := a.Pipeline.Run(ctx, indexer.Options{Root: cfg.Content.Root})
	if ingestReport != nil {
		printReport(ingestReport, false)
	}
	return err
}
