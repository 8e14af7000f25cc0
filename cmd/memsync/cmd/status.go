package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/engine"
	"github.com/Aman-CERP/memsync/internal/source"
)

// statusInfo is the machine-readable status document.
type statusInfo struct {
	Aliases     []aliasStatus      `json:"aliases"`
	Generations []generationStatus `json:"generations"`
	SourceCount int                `json:"source_records"`
}

type aliasStatus struct {
	Alias      string `json:"alias"`
	Generation string `json:"generation"`
}

type generationStatus struct {
	Name          string    `json:"name"`
	Alias         string    `json:"alias"`
	SchemaVersion int       `json:"schema_version"`
	Status        string    `json:"status"`
	Docs          uint64    `json:"docs"`
	CreatedAt     time.Time `json:"created_at"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aliases, generations, and document counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	info, err := collectStatus(ctx, eng)
	if err != nil {
		return err
	}

	if store, err := openSource(cfg); err == nil {
		if n, err := store.Count(ctx, source.Filter{}); err == nil {
			info.SourceCount = n
		}
		_ = store.Close()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	if len(info.Aliases) == 0 {
		fmt.Fprintln(out, "No aliases. Run 'memsync rebuild -i memories' to create one.")
		return nil
	}

	fmt.Fprintln(out, "Aliases:")
	for _, a := range info.Aliases {
		fmt.Fprintf(out, "  %-20s -> %s\n", a.Alias, a.Generation)
	}

	fmt.Fprintln(out, "Generations:")
	for _, g := range info.Generations {
		fmt.Fprintf(out, "  %-36s %-9s schema v%-2d %8d docs  %s\n",
			g.Name, g.Status, g.SchemaVersion, g.Docs,
			g.CreatedAt.Format(time.RFC3339))
	}

	fmt.Fprintf(out, "Source records: %d\n", info.SourceCount)
	return nil
}

func collectStatus(ctx context.Context, eng *engine.Engine) (*statusInfo, error) {
	info := &statusInfo{}

	aliases, err := eng.Catalog().Aliases(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		info.Aliases = append(info.Aliases, aliasStatus{Alias: a.Alias, Generation: a.Generation})
	}

	gens, err := eng.Catalog().Generations(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, g := range gens {
		gs := generationStatus{
			Name:          g.Name,
			Alias:         g.Alias,
			SchemaVersion: g.SchemaVersion,
			Status:        string(g.Status),
			CreatedAt:     g.CreatedAt,
		}
		// Deleted and never-built generations have no storage to count.
		if g.Status == engine.StatusActive || g.Status == engine.StatusClosed {
			if n, err := eng.DocCount(g.Name); err == nil {
				gs.Docs = n
			}
		}
		info.Generations = append(info.Generations, gs)
	}

	return info, nil
}
