package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/source"
)

// seedOptions holds CLI flags for seed.
type seedOptions struct {
	count int
	user  string
	days  int
}

var (
	seedKinds = []string{"episodic", "semantic", "profile"}

	seedTopics = []string{
		"standup notes from the platform team",
		"prefers short answers with code samples",
		"quarterly planning doc reviewed with the staff group",
		"decided to keep the billing service on the old queue",
		"learning Spanish, practices on Tuesday evenings",
		"incident retro for the search outage",
		"favorite editor theme is gruvbox",
		"migration to the new auth flow is blocked on legal",
	}

	seedTags = []string{"work", "personal", "meeting", "decision", "preference"}
)

func newSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample records into the source store",
		Long: `Generate sample memory records in the primary store for local testing.

Records are spread evenly over the last --days days, so time-bounded
syncs ('memsync sync -d 7') have something to select against.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 100, "Number of records to insert")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "local", "User the records belong to")
	cmd.Flags().IntVarP(&opts.days, "days", "d", 30, "Spread creation times over the last N days")

	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, opts seedOptions) error {
	if opts.count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.count)
	}
	if opts.days <= 0 {
		opts.days = 1
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	window := time.Duration(opts.days) * 24 * time.Hour

	records := make([]*source.Record, 0, opts.count)
	for i := 0; i < opts.count; i++ {
		created := now.Add(-time.Duration(rand.Int63n(int64(window))))
		records = append(records, &source.Record{
			ID:      uuid.NewString(),
			UserID:  opts.user,
			Kind:    seedKinds[i%len(seedKinds)],
			Content: fmt.Sprintf("%s (#%d)", seedTopics[i%len(seedTopics)], i+1),
			Tags:    []string{seedTags[i%len(seedTags)]},
			Metadata: map[string]string{
				"origin": "seed",
			},
			CreatedAt: created,
			UpdatedAt: created,
		})
	}

	if err := store.Insert(ctx, records...); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d records into %s\n",
		opts.count, cfg.Paths.SourceDB)
	return nil
}
