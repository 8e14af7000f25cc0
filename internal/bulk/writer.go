// Package bulk streams transformed documents into a search index
// generation as concurrent, size-bounded upsert batches.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/memsync/internal/engine"
	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/transform"
)

// Upserter is the slice of the engine the writer needs.
type Upserter interface {
	BulkUpsert(ctx context.Context, generation string, docs []*transform.Document) ([]engine.ItemError, error)
	Refresh(ctx context.Context, generation string) error
}

// Config tunes the writer.
type Config struct {
	// BatchSize is the number of documents per bulk request.
	BatchSize int

	// Workers bounds the number of concurrent in-flight bulk requests.
	Workers int

	// Retry governs per-batch backoff. Retry.MaxRetries is the attempt
	// ceiling after which items are isolated and reported.
	Retry syncerrors.RetryConfig

	// SkipCacheSize is the capacity of the unchanged-document cache.
	SkipCacheSize int
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		Workers:       4,
		Retry:         syncerrors.DefaultRetryConfig(),
		SkipCacheSize: 8192,
	}
}

// ItemFailure reports one document that permanently failed.
type ItemFailure struct {
	ID  string
	Err error
}

// Result summarizes a completed write stream.
type Result struct {
	// Succeeded counts documents acknowledged by the engine.
	Succeeded int

	// Unchanged counts documents skipped because an identical version was
	// already written during this run. Upserting them again would be a
	// content no-op.
	Unchanged int

	// Failed lists documents that exhausted the retry budget.
	Failed []ItemFailure
}

// Writer buffers documents and streams them to one generation with a
// bounded worker pool. Add is called by a single producer; flushing
// dispatched batches runs concurrently. Per-document and per-batch
// failures never escalate past the batch: they end up in the Result.
type Writer struct {
	cfg        Config
	upserter   Upserter
	generation string

	breaker *syncerrors.CircuitBreaker
	cache   *lru.Cache[string, string]

	group *errgroup.Group
	gctx  context.Context

	mu      sync.Mutex
	pending []*transform.Document
	result  Result
}

// NewWriter creates a writer streaming into the given generation.
// The generation is the alias resolution done once at run start; the
// writer never re-resolves mid-run.
func NewWriter(ctx context.Context, upserter Upserter, generation string, cfg Config) (*Writer, error) {
	if cfg.BatchSize <= 0 {
		return nil, syncerrors.New(syncerrors.ErrCodeInvalidInput,
			fmt.Sprintf("batch size must be positive, got %d", cfg.BatchSize), nil)
	}
	if cfg.Workers <= 0 {
		return nil, syncerrors.New(syncerrors.ErrCodeInvalidInput,
			fmt.Sprintf("workers must be positive, got %d", cfg.Workers), nil)
	}
	if cfg.SkipCacheSize <= 0 {
		cfg.SkipCacheSize = DefaultConfig().SkipCacheSize
	}

	cache, err := lru.New[string, string](cfg.SkipCacheSize)
	if err != nil {
		return nil, syncerrors.InternalError("cannot create skip cache", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	return &Writer{
		cfg:        cfg,
		upserter:   upserter,
		generation: generation,
		breaker:    syncerrors.NewCircuitBreaker("bulk:" + generation),
		cache:      cache,
		group:      group,
		gctx:       gctx,
	}, nil
}

// Add buffers one document, dispatching a bulk request when a full batch
// has accumulated. Dispatch blocks while all workers are busy, which is
// the writer's backpressure: the producer cannot outrun the engine.
func (w *Writer) Add(ctx context.Context, doc *transform.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hash := doc.Hash()
	if prev, ok := w.cache.Get(doc.ID); ok && prev == hash {
		w.mu.Lock()
		w.result.Unchanged++
		w.mu.Unlock()
		return nil
	}
	// Record the hash now so a duplicate later in the same run is skipped.
	// Failed writes evict their entry, so a retry in a later run still lands.
	w.cache.Add(doc.ID, hash)

	w.mu.Lock()
	w.pending = append(w.pending, doc)
	var batch []*transform.Document
	if len(w.pending) >= w.cfg.BatchSize {
		batch = w.pending
		w.pending = nil
	}
	w.mu.Unlock()

	if batch != nil {
		w.dispatch(batch)
	}
	return nil
}

// Flush dispatches the remaining partial batch, waits for all in-flight
// requests, refreshes the generation so writes are visible, and returns
// the accumulated result.
func (w *Writer) Flush(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) > 0 {
		w.dispatch(batch)
	}

	if err := w.group.Wait(); err != nil {
		return nil, err
	}

	if err := w.upserter.Refresh(ctx, w.generation); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	result := w.result
	result.Failed = append([]ItemFailure(nil), w.result.Failed...)
	return &result, nil
}

// dispatch hands a batch to the worker pool. Blocks when the pool is
// saturated. Worker errors are only context cancellation; write failures
// are folded into the result instead.
func (w *Writer) dispatch(batch []*transform.Document) {
	w.group.Go(func() error {
		return w.writeBatch(w.gctx, batch)
	})
}

// writeBatch sends one bulk request with backoff retry. If the whole
// batch keeps failing, documents are written individually to isolate the
// ones the engine rejects, so one poison document cannot sink its batch.
func (w *Writer) writeBatch(ctx context.Context, batch []*transform.Document) error {
	itemErrs, err := w.sendWithRetry(ctx, batch)
	if err == nil {
		w.record(batch, itemErrs)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	slog.Warn("bulk_batch_failed_isolating",
		slog.String("generation", w.generation),
		slog.Int("batch_size", len(batch)),
		slog.String("error", err.Error()))

	// Retry budget is spent; one write per document isolates failures.
	for _, doc := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		single := []*transform.Document{doc}
		itemErrs, err := w.sendOnce(ctx, single)
		if err != nil {
			w.recordFailure(doc.ID, err)
			continue
		}
		w.record(single, itemErrs)
	}
	return nil
}

// sendWithRetry pushes one bulk request through the circuit breaker with
// exponential backoff.
func (w *Writer) sendWithRetry(ctx context.Context, batch []*transform.Document) ([]engine.ItemError, error) {
	return syncerrors.RetryWithResult(ctx, w.cfg.Retry, func() ([]engine.ItemError, error) {
		return w.sendOnce(ctx, batch)
	})
}

func (w *Writer) sendOnce(ctx context.Context, batch []*transform.Document) ([]engine.ItemError, error) {
	var itemErrs []engine.ItemError
	err := w.breaker.Execute(func() error {
		var execErr error
		itemErrs, execErr = w.upserter.BulkUpsert(ctx, w.generation, batch)
		return execErr
	})
	return itemErrs, err
}

// record folds a completed batch into the result.
func (w *Writer) record(batch []*transform.Document, itemErrs []engine.ItemError) {
	failedIDs := make(map[string]error, len(itemErrs))
	for _, ie := range itemErrs {
		failedIDs[ie.ID] = ie.Err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, doc := range batch {
		if err, bad := failedIDs[doc.ID]; bad {
			w.result.Failed = append(w.result.Failed, ItemFailure{ID: doc.ID, Err: err})
			w.cache.Remove(doc.ID)
			continue
		}
		w.result.Succeeded++
	}
}

func (w *Writer) recordFailure(id string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result.Failed = append(w.result.Failed, ItemFailure{ID: id, Err: err})
	w.cache.Remove(id)
}
