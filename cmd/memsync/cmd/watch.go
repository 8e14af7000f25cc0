package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/syncer"
	"github.com/Aman-CERP/memsync/internal/watch"
)

// watchOptions holds CLI flags for watch.
type watchOptions struct {
	alias     string
	batchSize int
	days      int
	debounce  time.Duration
	interval  time.Duration
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously as the source store changes",
		Long: `Watch the source database and run an incremental sync after each burst
of writes. Runs until interrupted.

Examples:
  memsync watch -i memories
  memsync watch -i memories --debounce 5s --interval 10m`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.alias, "index-name", "i", "", "Alias to sync into (required)")
	cmd.Flags().IntVarP(&opts.batchSize, "batch-size", "b", 500, "Documents per bulk request")
	cmd.Flags().IntVarP(&opts.days, "days", "d", 0, "Only records created in the last N days (0 = all)")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watch.DefaultDebounce, "Quiet period before a sync fires")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Force a sync every interval regardless of events (0 = off)")
	_ = cmd.MarkFlagRequired("index-name")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts watchOptions) error {
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
	run := func(ctx context.Context) error {
		_, err := s.Run(ctx, syncer.Options{
			Alias:     opts.alias,
			BatchSize: opts.batchSize,
			Days:      opts.days,
		})
		return err
	}

	w, err := watch.New(cfg.Paths.SourceDB, run, watch.Options{
		Debounce: opts.debounce,
		Interval: opts.interval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, syncing into %s (Ctrl-C to stop)\n",
		cfg.Paths.SourceDB, opts.alias)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
