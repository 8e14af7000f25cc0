package bulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memsync/internal/engine"
	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/transform"
)

// fakeUpserter scripts engine behavior for writer tests.
type fakeUpserter struct {
	mu        sync.Mutex
	batches   [][]string
	refreshes int

	inflight    int32
	maxInflight int32

	// failBatch decides whether a bulk call fails as a whole.
	failBatch func(ids []string) error
	// itemErrs decides per-item rejections.
	itemErrs func(ids []string) []engine.ItemError
}

func (f *fakeUpserter) BulkUpsert(ctx context.Context, generation string, docs []*transform.Document) ([]engine.ItemError, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxInflight)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxInflight, prev, cur) {
			break
		}
	}
	// Give other workers a chance to overlap
	time.Sleep(time.Millisecond)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.mu.Unlock()

	if f.failBatch != nil {
		if err := f.failBatch(ids); err != nil {
			return nil, err
		}
	}
	if f.itemErrs != nil {
		return f.itemErrs(ids), nil
	}
	return nil, nil
}

func (f *fakeUpserter) Refresh(ctx context.Context, generation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func fastConfig(batchSize, workers int) Config {
	return Config{
		BatchSize: batchSize,
		Workers:   workers,
		Retry: syncerrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		SkipCacheSize: 128,
	}
}

func doc(id string) *transform.Document {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &transform.Document{ID: id, Content: "memory " + id, CreatedAt: now, UpdatedAt: now}
}

func addAll(t *testing.T, w *Writer, docs ...*transform.Document) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, w.Add(context.Background(), d))
	}
}

func TestWriter_BatchesBySize(t *testing.T) {
	f := &fakeUpserter{}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(2, 1))
	require.NoError(t, err)

	addAll(t, w, doc("a"), doc("b"), doc("c"), doc("d"), doc("e"))
	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Len(t, f.batches, 3, "two full batches plus the flushed remainder")
	assert.Equal(t, 1, f.refreshes, "flush issues exactly one refresh")
}

func TestWriter_BoundsConcurrency(t *testing.T) {
	f := &fakeUpserter{}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(1, 2))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, w.Add(context.Background(), doc(fmt.Sprintf("d%02d", i))))
	}
	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, res.Succeeded)
	assert.LessOrEqual(t, f.maxInflight, int32(2), "no more than Workers requests in flight")
}

func TestWriter_RetriesTransientBatchFailure(t *testing.T) {
	var calls int32
	f := &fakeUpserter{
		failBatch: func(ids []string) error {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return syncerrors.BulkWriteFailed("transient engine error", nil)
			}
			return nil
		},
	}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(10, 1))
	require.NoError(t, err)

	addAll(t, w, doc("a"), doc("b"))
	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWriter_IsolatesPoisonDocument(t *testing.T) {
	// Whole batches containing the poison document fail; singles succeed
	// except the poison itself.
	f := &fakeUpserter{
		failBatch: func(ids []string) error {
			for _, id := range ids {
				if id == "poison" {
					return syncerrors.BulkWriteFailed("batch rejected", nil)
				}
			}
			return nil
		},
	}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(3, 1))
	require.NoError(t, err)

	addAll(t, w, doc("a"), doc("poison"), doc("b"))
	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded, "healthy documents in the batch still land")
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "poison", res.Failed[0].ID)
}

func TestWriter_ReportsPerItemErrors(t *testing.T) {
	f := &fakeUpserter{
		itemErrs: func(ids []string) []engine.ItemError {
			for _, id := range ids {
				if id == "bad" {
					return []engine.ItemError{{ID: "bad", Err: fmt.Errorf("mapping rejected")}}
				}
			}
			return nil
		},
	}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(10, 1))
	require.NoError(t, err)

	addAll(t, w, doc("a"), doc("bad"), doc("b"))
	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bad", res.Failed[0].ID)
}

func TestWriter_SkipsUnchangedDocuments(t *testing.T) {
	f := &fakeUpserter{}
	w, err := NewWriter(context.Background(), f, "memories-1", fastConfig(1, 1))
	require.NoError(t, err)

	same := doc("a")
	addAll(t, w, same, same)

	changed := doc("a")
	changed.Content = "different"
	addAll(t, w, changed)

	res, err := w.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded, "original write plus changed rewrite")
	assert.Equal(t, 1, res.Unchanged, "identical replay is skipped")
}

func TestWriter_ContextCancellationAbortsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeUpserter{}
	w, err := NewWriter(ctx, f, "memories-1", fastConfig(1, 1))
	require.NoError(t, err)

	require.NoError(t, w.Add(ctx, doc("a")))
	cancel()

	err = w.Add(ctx, doc("b"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriter_RejectsInvalidConfig(t *testing.T) {
	_, err := NewWriter(context.Background(), &fakeUpserter{}, "g", Config{BatchSize: 0, Workers: 1})
	assert.Error(t, err)

	_, err = NewWriter(context.Background(), &fakeUpserter{}, "g", Config{BatchSize: 1, Workers: 0})
	assert.Error(t, err)
}
