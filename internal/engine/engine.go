package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/transform"
)

// ItemError reports a single document that could not be written.
type ItemError struct {
	ID  string
	Err error
}

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
}

// Engine owns the physical bleve indexes and the alias catalog.
// With an empty dataDir all indexes and the catalog live in memory,
// which is the test mode; generations then exist only for the lifetime
// of the Engine.
type Engine struct {
	dataDir string
	catalog *Catalog

	mu      sync.Mutex
	indexes map[string]bleve.Index
	aliases map[string]bleve.IndexAlias
	closed  bool
}

// New opens the engine rooted at dataDir.
func New(dataDir string) (*Engine, error) {
	catalogPath := ""
	if dataDir != "" {
		catalogPath = filepath.Join(dataDir, "catalog.db")
	}

	catalog, err := NewCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dataDir: dataDir,
		catalog: catalog,
		indexes: make(map[string]bleve.Index),
		aliases: make(map[string]bleve.IndexAlias),
	}, nil
}

// Catalog exposes the alias catalog for status reporting.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

func (e *Engine) generationPath(name string) string {
	return filepath.Join(e.dataDir, "indices", name)
}

// nextGenerationName derives a timestamp-suffixed generation name for an
// alias, disambiguating collisions within the same second.
func (e *Engine) nextGenerationName(ctx context.Context, alias string) (string, error) {
	base := fmt.Sprintf("%s-%s", alias, time.Now().UTC().Format("20060102150405"))
	name := base
	for i := 2; ; i++ {
		_, err := e.catalog.Generation(ctx, name)
		if syncerrors.GetCode(err) == syncerrors.ErrCodeGenerationNotFound {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// CreateGeneration registers a new generation for the alias and applies the
// schema by creating the physical index with the compiled mapping.
// On schema failure the generation stays registered in building status and
// no physical index exists; the alias is never touched here.
func (e *Engine) CreateGeneration(ctx context.Context, alias string, sch Schema) (*Generation, error) {
	name, err := e.nextGenerationName(ctx, alias)
	if err != nil {
		return nil, err
	}

	if err := e.catalog.CreateGeneration(ctx, name, alias, sch.Version); err != nil {
		return nil, err
	}

	m, err := sch.BuildMapping()
	if err != nil {
		return nil, syncerrors.SchemaApplyFailed(
			fmt.Sprintf("schema version %d cannot be applied to %s", sch.Version, name), err).
			WithDetail("generation", name)
	}

	var idx bleve.Index
	if e.dataDir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(e.generationPath(name), m)
	}
	if err != nil {
		return nil, syncerrors.SchemaApplyFailed(
			fmt.Sprintf("cannot create index for generation %s", name), err).
			WithDetail("generation", name)
	}

	e.mu.Lock()
	e.indexes[name] = idx
	e.mu.Unlock()

	return e.catalog.Generation(ctx, name)
}

// ResolveAlias returns the generation the alias points at.
func (e *Engine) ResolveAlias(ctx context.Context, alias string) (string, error) {
	return e.catalog.Resolve(ctx, alias)
}

// SwapAlias atomically repoints the alias to newGeneration. The catalog
// update is one transaction and the in-process read path swaps through
// bleve's IndexAlias, so concurrent readers see the old or the new
// generation, never neither. Returns the previous generation name.
func (e *Engine) SwapAlias(ctx context.Context, alias, newGeneration string) (string, error) {
	gen, err := e.catalog.Generation(ctx, newGeneration)
	if err != nil {
		return "", err
	}
	if gen.Status == StatusClosed || gen.Status == StatusDeleted {
		return "", syncerrors.InternalError(
			fmt.Sprintf("cannot alias %s generation %s", gen.Status, newGeneration), nil)
	}

	old, err := e.catalog.SwapAlias(ctx, alias, newGeneration)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	newIdx, err := e.openGenerationLocked(newGeneration)
	if err != nil {
		return "", err
	}

	if ia, ok := e.aliases[alias]; ok {
		var out []bleve.Index
		if old != "" {
			if oldIdx, ok := e.indexes[old]; ok {
				out = append(out, oldIdx)
			}
		}
		ia.Swap([]bleve.Index{newIdx}, out)
	} else {
		e.aliases[alias] = bleve.NewIndexAlias(newIdx)
	}

	return old, nil
}

// BulkUpsert writes documents into a generation as one bleve batch.
// Indexing is keyed by document ID, so replays overwrite rather than
// duplicate. Per-document mapping failures are reported as ItemErrors;
// a whole-batch failure is returned as a retryable BulkWriteFailed.
func (e *Engine) BulkUpsert(ctx context.Context, generation string, docs []*transform.Document) ([]ItemError, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := e.catalog.Generation(ctx, generation)
	if err != nil {
		return nil, err
	}
	if gen.Status == StatusClosed || gen.Status == StatusDeleted {
		return nil, syncerrors.BulkWriteFailed(
			fmt.Sprintf("generation %s is %s", generation, gen.Status), nil)
	}

	e.mu.Lock()
	idx, err := e.openGenerationLocked(generation)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var failed []ItemError
	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc); err != nil {
			failed = append(failed, ItemError{ID: doc.ID, Err: err})
		}
	}

	if err := idx.Batch(batch); err != nil {
		return nil, syncerrors.BulkWriteFailed(
			fmt.Sprintf("bulk request to %s failed", generation), err)
	}

	return failed, nil
}

// Refresh makes the generation's writes visible to verification queries.
// bleve commits batches synchronously; this surfaces any deferred backend
// error and confirms the generation is still readable.
func (e *Engine) Refresh(ctx context.Context, generation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	idx, err := e.openGenerationLocked(generation)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := idx.DocCount(); err != nil {
		return syncerrors.BulkWriteFailed(
			fmt.Sprintf("refresh of %s failed", generation), err)
	}
	return nil
}

// DocCount returns the number of documents in a generation.
func (e *Engine) DocCount(generation string) (uint64, error) {
	e.mu.Lock()
	idx, err := e.openGenerationLocked(generation)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Search runs a match query over the content field. target may be an alias
// (resolved through the live IndexAlias, safe during swaps) or a concrete
// generation name.
func (e *Engine) Search(ctx context.Context, target, query string, limit int) ([]Hit, error) {
	var idx bleve.Index

	if _, err := e.catalog.Resolve(ctx, target); err == nil {
		idx, err = e.aliasHandle(ctx, target)
		if err != nil {
			return nil, err
		}
	} else {
		e.mu.Lock()
		idx, err = e.openGenerationLocked(target)
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search on %s failed: %w", target, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// CloseGeneration disables reads and writes on a generation, retaining its
// storage. Refuses to close the generation currently behind its alias.
func (e *Engine) CloseGeneration(ctx context.Context, name string) error {
	if err := e.ensureNotAliased(ctx, name); err != nil {
		return err
	}

	e.mu.Lock()
	if idx, ok := e.indexes[name]; ok {
		_ = idx.Close()
		delete(e.indexes, name)
	}
	e.mu.Unlock()

	return e.catalog.SetStatus(ctx, name, StatusClosed)
}

// DeleteGeneration removes a generation and its storage entirely.
func (e *Engine) DeleteGeneration(ctx context.Context, name string) error {
	if err := e.ensureNotAliased(ctx, name); err != nil {
		return err
	}

	e.mu.Lock()
	if idx, ok := e.indexes[name]; ok {
		_ = idx.Close()
		delete(e.indexes, name)
	}
	e.mu.Unlock()

	if e.dataDir != "" {
		if err := os.RemoveAll(e.generationPath(name)); err != nil {
			return fmt.Errorf("cannot remove storage of %s: %w", name, err)
		}
	}

	return e.catalog.SetStatus(ctx, name, StatusDeleted)
}

// ensureNotAliased guards close/delete against retiring the generation
// the alias still points at.
func (e *Engine) ensureNotAliased(ctx context.Context, name string) error {
	gen, err := e.catalog.Generation(ctx, name)
	if err != nil {
		return err
	}
	current, err := e.catalog.Resolve(ctx, gen.Alias)
	if err == nil && current == name {
		return syncerrors.InternalError(
			fmt.Sprintf("generation %s is still behind alias %s", name, gen.Alias), nil)
	}
	return nil
}

// Close closes all open indexes and the catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	for _, idx := range e.indexes {
		_ = idx.Close()
	}
	e.indexes = nil
	e.aliases = nil

	return e.catalog.Close()
}

// aliasHandle returns the live IndexAlias for an alias, creating it from
// the catalog assignment on first use.
func (e *Engine) aliasHandle(ctx context.Context, alias string) (bleve.IndexAlias, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ia, ok := e.aliases[alias]; ok {
		return ia, nil
	}

	gen, err := e.catalog.Resolve(ctx, alias)
	if err != nil {
		return nil, err
	}
	idx, err := e.openGenerationLocked(gen)
	if err != nil {
		return nil, err
	}

	ia := bleve.NewIndexAlias(idx)
	e.aliases[alias] = ia
	return ia, nil
}

// openGenerationLocked returns the open index for a generation, opening it
// from disk when necessary. Caller must hold e.mu.
func (e *Engine) openGenerationLocked(name string) (bleve.Index, error) {
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}
	if idx, ok := e.indexes[name]; ok {
		return idx, nil
	}
	if e.dataDir == "" {
		return nil, syncerrors.New(syncerrors.ErrCodeGenerationNotFound,
			fmt.Sprintf("generation %s does not exist in memory", name), nil)
	}

	idx, err := bleve.Open(e.generationPath(name))
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeGenerationNotFound,
			fmt.Sprintf("cannot open generation %s", name), err)
	}
	e.indexes[name] = idx
	return idx, nil
}
