package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/syncer"
)

// syncOptions holds CLI flags for sync.
type syncOptions struct {
	alias     string
	batchSize int
	limit     int
	days      int
}

func newSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate source records into the search index",
		Long: `Replicate records from the primary store into the index behind an alias.

Re-running a sync is safe: documents are keyed by record ID, so replays
overwrite rather than duplicate. Individual bad records are skipped and
counted; only an unreachable source or an unknown alias aborts the run.

Examples:
  memsync sync -i memories
  memsync sync -i memories -d 7            last seven days only
  memsync sync -i memories -b 200 -l 1000  smaller batches, capped run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.alias, "index-name", "i", "", "Alias of the index to sync into (required)")
	cmd.Flags().IntVarP(&opts.batchSize, "batch-size", "b", 500, "Documents per bulk request")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 0, "Maximum records to process (0 = all)")
	cmd.Flags().IntVarP(&opts.days, "days", "d", 0, "Only records created in the last N days (0 = all)")
	_ = cmd.MarkFlagRequired("index-name")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts syncOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	s := syncer.New(store, eng, syncer.DefaultRegistry(), bulkConfig(cfg), cfg.Paths.DataDir)
	report, err := s.Run(ctx, syncer.Options{
		Alias:     opts.alias,
		BatchSize: opts.batchSize,
		Limit:     opts.limit,
		Days:      opts.days,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced %s (generation %s) in %s\n",
		report.Alias, report.Generation, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  processed: %d\n", report.Processed)
	fmt.Fprintf(out, "  succeeded: %d\n", report.Succeeded)
	fmt.Fprintf(out, "  failed:    %d\n", report.Failed)
	fmt.Fprintf(out, "  skipped:   %d\n", report.Skipped)
	return nil
}
