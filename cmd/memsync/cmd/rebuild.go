package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/lifecycle"
	"github.com/Aman-CERP/memsync/internal/syncer"
)

// rebuildOptions holds CLI flags for rebuild.
type rebuildOptions struct {
	alias     string
	closeOld  bool
	deleteOld bool
}

func newRebuildCmd() *cobra.Command {
	var opts rebuildOptions

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Create a fresh index generation and swap the alias to it",
		Long: `Create a new generation for an alias, apply its current schema, and
atomically repoint the alias. Searches against the alias keep working
throughout; the swap is all-or-nothing.

The new generation starts empty. Run 'memsync sync' afterwards to fill
it. The old generation is kept and stays queryable by its own name
unless --close-old or --delete-old says otherwise.

Examples:
  memsync rebuild -i memories
  memsync rebuild -i memories --close-old
  memsync rebuild -i memories -x            delete old outright`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.alias, "index-name", "i", "", "Alias to rebuild (required)")
	cmd.Flags().BoolVarP(&opts.closeOld, "close-old", "c", false, "Close the previous generation after the swap")
	cmd.Flags().BoolVarP(&opts.deleteOld, "delete-old", "x", false, "Delete the previous generation after the swap (supersedes --close-old)")
	_ = cmd.MarkFlagRequired("index-name")

	return cmd
}

func runRebuild(ctx context.Context, cmd *cobra.Command, opts rebuildOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	m := lifecycle.NewManager(eng, syncer.DefaultRegistry(), cfg.Paths.DataDir)
	report, err := m.Rebuild(ctx, opts.alias, lifecycle.Options{
		CloseOld:  opts.closeOld,
		DeleteOld: opts.deleteOld,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rebuilt %s in %s\n", report.Alias, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  new generation: %s\n", report.NewGeneration)
	if report.OldGeneration == "" {
		fmt.Fprintf(out, "  old generation: none (first rebuild)\n")
	} else {
		fmt.Fprintf(out, "  old generation: %s (%s)\n", report.OldGeneration, report.OldStatus)
	}
	return nil
}
