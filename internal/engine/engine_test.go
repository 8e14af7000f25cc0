package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/transform"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func memoryDoc(id, content string) *transform.Document {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &transform.Document{
		ID:        id,
		UserID:    "user-1",
		Kind:      "episodic",
		Content:   content,
		Tags:      []string{"test"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEngine_CreateGeneration_NamesAndStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)

	assert.Contains(t, gen.Name, "memories-")
	assert.Equal(t, StatusBuilding, gen.Status)
	assert.Equal(t, MemorySchema().Version, gen.SchemaVersion)

	// Created within the same second still yields a distinct name
	gen2, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	assert.NotEqual(t, gen.Name, gen2.Name)
}

func TestEngine_CreateGeneration_SchemaFailureLeavesBuilding(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateGeneration(ctx, "memories", Schema{Version: 9})
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodeSchemaApplyFailed, syncerrors.GetCode(err))

	// The generation is registered but never became active
	gens, err := e.Catalog().Generations(ctx, "memories")
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, StatusBuilding, gens[0].Status)

	// And the alias was never touched
	_, err = e.ResolveAlias(ctx, "memories")
	assert.Equal(t, syncerrors.ErrCodeAliasUnresolved, syncerrors.GetCode(err))
}

func TestEngine_BulkUpsert_IsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)

	docs := []*transform.Document{
		memoryDoc("a", "first memory"),
		memoryDoc("b", "second memory"),
	}

	failed, err := e.BulkUpsert(ctx, gen.Name, docs)
	require.NoError(t, err)
	assert.Empty(t, failed)

	// Replaying the identical batch must not create duplicates
	failed, err = e.BulkUpsert(ctx, gen.Name, docs)
	require.NoError(t, err)
	assert.Empty(t, failed)

	count, err := e.DocCount(gen.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestEngine_BulkUpsert_OverwritesChangedDocument(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)

	_, err = e.BulkUpsert(ctx, gen.Name, []*transform.Document{memoryDoc("a", "about hiking")})
	require.NoError(t, err)
	_, err = e.BulkUpsert(ctx, gen.Name, []*transform.Document{memoryDoc("a", "about sailing")})
	require.NoError(t, err)
	require.NoError(t, e.Refresh(ctx, gen.Name))

	count, err := e.DocCount(gen.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	hits, err := e.Search(ctx, gen.Name, "sailing", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	hits, err = e.Search(ctx, gen.Name, "hiking", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "old content is gone after overwrite")
}

func TestEngine_SwapAlias_SearchFollowsAlias(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen1, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.BulkUpsert(ctx, gen1.Name, []*transform.Document{memoryDoc("a", "old generation memory")})
	require.NoError(t, err)

	old, err := e.SwapAlias(ctx, "memories", gen1.Name)
	require.NoError(t, err)
	assert.Equal(t, "", old)

	hits, err := e.Search(ctx, "memories", "memory", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	gen2, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.BulkUpsert(ctx, gen2.Name, []*transform.Document{
		memoryDoc("a", "new generation memory"),
		memoryDoc("b", "another new memory"),
	})
	require.NoError(t, err)

	old, err = e.SwapAlias(ctx, "memories", gen2.Name)
	require.NoError(t, err)
	assert.Equal(t, gen1.Name, old)

	hits, err = e.Search(ctx, "memories", "memory", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "alias reads the new generation after swap")

	// Old generation remains fully queryable by its own name
	hits, err = e.Search(ctx, gen1.Name, "memory", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestEngine_SwapAlias_AtomicUnderConcurrentReaders(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen1, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.BulkUpsert(ctx, gen1.Name, []*transform.Document{memoryDoc("a", "searchable memory")})
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen1.Name)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	errCh := make(chan error, 8)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				hits, err := e.Search(ctx, "memories", "memory", 10)
				if err != nil {
					errCh <- fmt.Errorf("reader saw error during swap: %w", err)
					return
				}
				if len(hits) == 0 {
					errCh <- fmt.Errorf("reader saw zero results during swap")
					return
				}
			}
		}()
	}

	// Repeatedly rebuild and swap while readers hammer the alias
	for i := 0; i < 5; i++ {
		gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
		require.NoError(t, err)
		_, err = e.BulkUpsert(ctx, gen.Name, []*transform.Document{memoryDoc("a", "searchable memory")})
		require.NoError(t, err)
		_, err = e.SwapAlias(ctx, "memories", gen.Name)
		require.NoError(t, err)
	}

	close(stop)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestEngine_CloseGeneration_DisablesWrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen1, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen1.Name)
	require.NoError(t, err)

	gen2, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen2.Name)
	require.NoError(t, err)

	require.NoError(t, e.CloseGeneration(ctx, gen1.Name))

	_, err = e.BulkUpsert(ctx, gen1.Name, []*transform.Document{memoryDoc("x", "late write")})
	require.Error(t, err, "closed generations reject writes")
}

func TestEngine_CloseGeneration_RefusesAliasedGeneration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen.Name)
	require.NoError(t, err)

	assert.Error(t, e.CloseGeneration(ctx, gen.Name))
	assert.Error(t, e.DeleteGeneration(ctx, gen.Name))
}

func TestEngine_DeleteGeneration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gen1, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen1.Name)
	require.NoError(t, err)

	gen2, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen2.Name)
	require.NoError(t, err)

	require.NoError(t, e.DeleteGeneration(ctx, gen1.Name))

	entry, err := e.Catalog().Generation(ctx, gen1.Name)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, entry.Status)

	_, err = e.DocCount(gen1.Name)
	assert.Error(t, err)
}

func TestEngine_Persistence_AcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e, err := New(dir)
	require.NoError(t, err)

	gen, err := e.CreateGeneration(ctx, "memories", MemorySchema())
	require.NoError(t, err)
	_, err = e.BulkUpsert(ctx, gen.Name, []*transform.Document{memoryDoc("a", "durable memory")})
	require.NoError(t, err)
	_, err = e.SwapAlias(ctx, "memories", gen.Name)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// Reopen: alias resolves and the generation is readable from disk
	e2, err := New(dir)
	require.NoError(t, err)
	defer func() { _ = e2.Close() }()

	resolved, err := e2.ResolveAlias(ctx, "memories")
	require.NoError(t, err)
	assert.Equal(t, gen.Name, resolved)

	hits, err := e2.Search(ctx, "memories", "durable", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
