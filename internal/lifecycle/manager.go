// Package lifecycle manages index generation rebuilds.
//
// A rebuild creates a fresh generation for an alias, applies the alias's
// current schema, and atomically repoints the alias at it. The old
// generation is never touched unless the operator explicitly asks for it
// to be closed or deleted. Rebuild moves no documents; replication is a
// separate sync run.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/memsync/internal/engine"
	"github.com/Aman-CERP/memsync/internal/lockfile"
	"github.com/Aman-CERP/memsync/internal/syncer"
)

// Options control what happens to the previous generation after the swap.
type Options struct {
	// CloseOld disables reads and writes on the old generation, keeping
	// its storage.
	CloseOld bool

	// DeleteOld removes the old generation entirely. Implies the old
	// generation also stops being readable, superseding CloseOld.
	DeleteOld bool
}

// Report summarizes a completed rebuild.
type Report struct {
	Alias         string
	NewGeneration string
	OldGeneration string // empty on first rebuild
	OldStatus     engine.Status
	Duration      time.Duration
}

// Manager rebuilds index generations.
type Manager struct {
	engine   *engine.Engine
	registry *syncer.Registry
	lockDir  string
}

// NewManager creates a lifecycle manager. lockDir holds the per-alias
// writer locks shared with sync; empty disables locking.
func NewManager(eng *engine.Engine, registry *syncer.Registry, lockDir string) *Manager {
	return &Manager{engine: eng, registry: registry, lockDir: lockDir}
}

// Rebuild builds a new generation for the alias and swaps the alias over:
//
//	start → generation created → schema applied → alias swapped
//	      → (old closed)? → (old deleted)?
//
// Schema application failure is fatal and leaves the new generation in
// building status with the alias untouched, so the old generation stays
// authoritative. Readers querying the alias during the swap observe the
// old or the new generation, never neither.
func (m *Manager) Rebuild(ctx context.Context, alias string, opts Options) (*Report, error) {
	start := time.Now()

	strategy, err := m.registry.Resolve(alias)
	if err != nil {
		return nil, err
	}

	release, err := lockfile.Acquire(m.lockDir, alias)
	if err != nil {
		return nil, err
	}
	defer release()

	gen, err := m.engine.CreateGeneration(ctx, alias, strategy.Schema)
	if err != nil {
		return nil, err
	}

	slog.Info("rebuild_generation_created",
		slog.String("alias", alias),
		slog.String("generation", gen.Name),
		slog.Int("schema_version", gen.SchemaVersion))

	prev, err := m.engine.SwapAlias(ctx, alias, gen.Name)
	if err != nil {
		return nil, err
	}

	slog.Info("rebuild_alias_swapped",
		slog.String("alias", alias),
		slog.String("new", gen.Name),
		slog.String("old", prev))

	report := &Report{
		Alias:         alias,
		NewGeneration: gen.Name,
		OldGeneration: prev,
	}

	if prev != "" {
		report.OldStatus = engine.StatusActive

		switch {
		case opts.DeleteOld:
			if err := m.engine.DeleteGeneration(ctx, prev); err != nil {
				return nil, err
			}
			report.OldStatus = engine.StatusDeleted
			slog.Info("rebuild_old_deleted", slog.String("generation", prev))

		case opts.CloseOld:
			if err := m.engine.CloseGeneration(ctx, prev); err != nil {
				return nil, err
			}
			report.OldStatus = engine.StatusClosed
			slog.Info("rebuild_old_closed", slog.String("generation", prev))
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}
