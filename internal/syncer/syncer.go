package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/memsync/internal/bulk"
	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/lockfile"
	"github.com/Aman-CERP/memsync/internal/source"
)

// Engine is the slice of the search engine the syncer needs: alias
// resolution at run start plus the bulk write path.
type Engine interface {
	ResolveAlias(ctx context.Context, alias string) (string, error)
	bulk.Upserter
}

// Options parameterize one replication run.
type Options struct {
	// Alias is the logical index to sync into.
	Alias string

	// BatchSize is the page and bulk request size. Zero uses the
	// configured default.
	BatchSize int

	// Limit caps the number of records processed. Zero means unbounded.
	Limit int

	// Days bounds the run to records created in the last N days.
	// Zero means the whole store. The boundary is inclusive: a record
	// created exactly N days ago is synced.
	Days int
}

// Report is the run-end summary.
type Report struct {
	Alias      string
	Generation string
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
	Duration   time.Duration
}

// Syncer replicates primary store records into the search engine.
type Syncer struct {
	reader   source.Reader
	engine   Engine
	registry *Registry
	bulkCfg  bulk.Config
	lockDir  string

	// now is swappable for deterministic time-window tests.
	now func() time.Time
}

// New creates a syncer. lockDir is the data directory holding per-alias
// writer locks; empty disables locking (in-memory tests).
func New(reader source.Reader, eng Engine, registry *Registry, bulkCfg bulk.Config, lockDir string) *Syncer {
	return &Syncer{
		reader:   reader,
		engine:   eng,
		registry: registry,
		bulkCfg:  bulkCfg,
		lockDir:  lockDir,
		now:      time.Now,
	}
}

// Run executes one replication run.
//
// Fatal errors are an unresolvable alias, an unreachable source after the
// page retry budget, or a failed final flush; everything per-document is
// counted in the report instead. The alias is resolved exactly once: a
// rebuild swapping the alias mid-run does not redirect in-flight writes.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Report, error) {
	start := s.now()

	strategy, err := s.registry.Resolve(opts.Alias)
	if err != nil {
		return nil, err
	}

	generation, err := s.engine.ResolveAlias(ctx, opts.Alias)
	if err != nil {
		return nil, err
	}

	release, err := lockfile.Acquire(s.lockDir, opts.Alias)
	if err != nil {
		return nil, err
	}
	defer release()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.bulkCfg.BatchSize
	}

	var filter source.Filter
	if opts.Days > 0 {
		filter.Since = start.Add(-time.Duration(opts.Days) * 24 * time.Hour)
	}

	writerCfg := s.bulkCfg
	writerCfg.BatchSize = batchSize
	writer, err := bulk.NewWriter(ctx, s.engine, generation, writerCfg)
	if err != nil {
		return nil, err
	}

	report := &Report{Alias: opts.Alias, Generation: generation}

	slog.Info("sync_start",
		slog.String("alias", opts.Alias),
		slog.String("generation", generation),
		slog.Int("batch_size", batchSize),
		slog.Int("days", opts.Days),
		slog.Int("limit", opts.Limit))

	offset := 0
pageLoop:
	for {
		page, err := syncerrors.RetryWithResult(ctx, writerCfg.Retry, func() ([]*source.Record, error) {
			return s.reader.FetchPage(ctx, filter, offset, batchSize)
		})
		if err != nil {
			// Page boundaries are store-defined: the whole page was
			// retried, never partial records. Out of budget means the
			// source is gone and the run aborts.
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		offset += len(page)

		for _, rec := range page {
			if opts.Limit > 0 && report.Processed >= opts.Limit {
				break pageLoop
			}
			report.Processed++

			doc, err := strategy.Transformer.Transform(rec)
			if err != nil {
				report.Skipped++
				slog.Warn("record_skipped",
					slog.String("record_id", rec.ID),
					slog.String("error", err.Error()))
				continue
			}

			if err := writer.Add(ctx, doc); err != nil {
				return nil, err
			}
		}

		if len(page) < batchSize {
			break
		}
	}

	result, err := writer.Flush(ctx)
	if err != nil {
		return nil, err
	}

	// Unchanged replays are successful no-ops under upsert semantics
	report.Succeeded = result.Succeeded + result.Unchanged
	report.Failed = len(result.Failed)
	report.Duration = s.now().Sub(start)

	slog.Info("sync_complete",
		slog.String("alias", opts.Alias),
		slog.String("generation", generation),
		slog.Int("processed", report.Processed),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration))

	return report, nil
}
