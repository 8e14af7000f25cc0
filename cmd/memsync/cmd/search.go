package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	alias  string
	limit  int
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index behind an alias",
		Long: `Run a full-text query against the generation an alias points at.

A concrete generation name works too, which is how an old generation is
inspected after a rebuild.

Examples:
  memsync search "standup notes"
  memsync search -i memories -n 5 "quarterly planning"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.alias, "index-name", "i", "memories", "Alias or generation to search")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	hits, err := eng.Search(ctx, opts.alias, query, opts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(out, "%2d. %s (%.4f)\n", i+1, h.ID, h.Score)
	}
	return nil
}
