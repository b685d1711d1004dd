package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ctxindex/internal/app"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/query"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

var searchOpts struct {
	mode       string
	topK       int
	minScore   float64
	distinct   bool
	filters    []string
	filterJSON string
	asJSON     bool
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed chunks",
	Long: `Searches the index by keyword, vector similarity, or a weighted blend of both.

Filters restrict results by chunk metadata. Repeat --filter for each
condition; values that parse as JSON are used as numbers, booleans, or
lists:

  ctxindex search "rollout plan" --filter context_id=CTX-1 --filter tags_contains=infra
  ctxindex search deploy --filters '{"last_modified": {"gte": 1700000000}}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchOpts.mode, "mode", "m", "", "keyword, vector, or hybrid (default from config)")
	searchCmd.Flags().IntVarP(&searchOpts.topK, "top-k", "k", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchOpts.minScore, "min-score", 0, "drop results scoring below this")
	searchCmd.Flags().BoolVar(&searchOpts.distinct, "distinct", false, "at most one result per document")
	searchCmd.Flags().StringArrayVarP(&searchOpts.filters, "filter", "f", nil, "metadata filter as field=value")
	searchCmd.Flags().StringVar(&searchOpts.filterJSON, "filters", "", "metadata filters as a JSON object")
	searchCmd.Flags().BoolVar(&searchOpts.asJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	spec, err := parseFilterFlags(searchOpts.filterJSON, searchOpts.filters)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	mode := searchOpts.mode
	if mode == "" {
		mode = a.Config.Search.DefaultMode
	}
	topK := searchOpts.topK
	if topK <= 0 {
		topK = a.Config.Search.DefaultTopK
	}

	records, err := a.Query.Search(ctx, query.Request{
		Query:             strings.Join(args, " "),
		Filter:            spec,
		Mode:              storage.Mode(mode),
		TopK:              topK,
		MinScore:          searchOpts.minScore,
		DistinctDocuments: searchOpts.distinct,
	})
	if err != nil {
		return err
	}

	if searchOpts.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range records {
		fmt.Printf("%d. [%.3f] %s  (%s, chunk %d/%d)\n", i+1, r.Score, r.Title, r.ContextID, r.ChunkIndex+1, r.ChunkCount)
		fmt.Printf("   %s\n", r.SourcePath)
		if len(r.Tags) > 0 {
			fmt.Printf("   tags: %s\n", strings.Join(r.Tags, ", "))
		}
		fmt.Printf("   %s\n\n", preview(r.Text, 240))
	}
	return nil
}

// parseFilterFlags merges a JSON object with field=value pairs. Pairs win
// over the JSON object for the same key.
func parseFilterFlags(jsonSpec string, pairs []string) (filter.Spec, error) {
	spec := filter.Spec{}
	if jsonSpec != "" {
		if err := json.Unmarshal([]byte(jsonSpec), &spec); err != nil {
			return nil, fmt.Errorf("--filters must be a JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--filter %q must be field=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		spec[key] = v
	}
	return spec, nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n]) + "..."
	}
	return text
}
