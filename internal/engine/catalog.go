package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
)

// Status is the lifecycle state of an index generation.
type Status string

const (
	// StatusBuilding means the generation exists but has never been behind
	// an alias. A failed schema application leaves it here.
	StatusBuilding Status = "building"
	// StatusActive means the generation is or has been aliased and remains
	// queryable by name.
	StatusActive Status = "active"
	// StatusClosed means reads and writes are disabled, storage retained.
	StatusClosed Status = "closed"
	// StatusDeleted means the generation's storage has been removed.
	StatusDeleted Status = "deleted"
)

// Generation describes one physical index generation.
type Generation struct {
	Name          string
	Alias         string
	SchemaVersion int
	Status        Status
	CreatedAt     time.Time
}

// AliasEntry pairs an alias with the generation it resolves to.
type AliasEntry struct {
	Alias      string
	Generation string
}

// Catalog persists generation metadata and alias assignments in SQLite.
// Alias swaps are single transactions, which is what makes alias
// resolution atomic for catalog readers.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
	CREATE TABLE IF NOT EXISTS generations (
		name           TEXT PRIMARY KEY,
		alias          TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		status         TEXT NOT NULL,
		created_at     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS aliases (
		alias      TEXT PRIMARY KEY,
		generation TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generations_alias ON generations(alias, created_at);
`

// NewCatalog opens the catalog database at path.
// An empty path opens an in-memory catalog for testing.
func NewCatalog(path string) (*Catalog, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create catalog directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog %s: %w", path, err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, syncerrors.New(syncerrors.ErrCodeCatalogCorrupt,
			fmt.Sprintf("cannot initialize catalog %s", path), err)
	}

	return &Catalog{db: db}, nil
}

// CreateGeneration registers a new generation in building status.
func (c *Catalog) CreateGeneration(ctx context.Context, name, alias string, schemaVersion int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO generations (name, alias, schema_version, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		name, alias, schemaVersion, string(StatusBuilding), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("cannot register generation %s: %w", name, err)
	}
	return nil
}

// SetStatus updates a generation's lifecycle status.
func (c *Catalog) SetStatus(ctx context.Context, name string, status Status) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE generations SET status = ? WHERE name = ?`, string(status), name)
	if err != nil {
		return fmt.Errorf("cannot update status of %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return syncerrors.New(syncerrors.ErrCodeGenerationNotFound,
			fmt.Sprintf("generation %s is not in the catalog", name), nil)
	}
	return nil
}

// Generation returns the catalog entry for one generation.
func (c *Catalog) Generation(ctx context.Context, name string) (*Generation, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT name, alias, schema_version, status, created_at
		FROM generations WHERE name = ?`, name)

	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncerrors.New(syncerrors.ErrCodeGenerationNotFound,
			fmt.Sprintf("generation %s is not in the catalog", name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read generation %s: %w", name, err)
	}
	return gen, nil
}

// Generations lists catalog entries, newest first. An empty alias lists all.
func (c *Catalog) Generations(ctx context.Context, alias string) ([]*Generation, error) {
	query := `SELECT name, alias, schema_version, status, created_at FROM generations`
	args := []any{}
	if alias != "" {
		query += ` WHERE alias = ?`
		args = append(args, alias)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gens []*Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("cannot decode generation row: %w", err)
		}
		gens = append(gens, gen)
	}
	return gens, rows.Err()
}

// Resolve returns the generation name an alias currently points at.
func (c *Catalog) Resolve(ctx context.Context, alias string) (string, error) {
	var gen string
	err := c.db.QueryRowContext(ctx,
		`SELECT generation FROM aliases WHERE alias = ?`, alias).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return "", syncerrors.AliasUnresolved(alias, nil)
	}
	if err != nil {
		return "", fmt.Errorf("cannot resolve alias %s: %w", alias, err)
	}
	return gen, nil
}

// SwapAlias atomically repoints an alias to newGeneration and marks it
// active, all in one transaction. Returns the previous generation name,
// empty on first assignment.
func (c *Catalog) SwapAlias(ctx context.Context, alias, newGeneration string) (string, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("cannot begin alias swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var old string
	err = tx.QueryRowContext(ctx,
		`SELECT generation FROM aliases WHERE alias = ?`, alias).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("cannot read current alias %s: %w", alias, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO aliases (alias, generation) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET generation = excluded.generation`,
		alias, newGeneration); err != nil {
		return "", fmt.Errorf("cannot repoint alias %s: %w", alias, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE generations SET status = ? WHERE name = ?`,
		string(StatusActive), newGeneration); err != nil {
		return "", fmt.Errorf("cannot activate generation %s: %w", newGeneration, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("cannot commit alias swap: %w", err)
	}
	return old, nil
}

// Aliases lists all alias assignments.
func (c *Catalog) Aliases(ctx context.Context) ([]AliasEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT alias, generation FROM aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("cannot list aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AliasEntry
	for rows.Next() {
		var e AliasEntry
		if err := rows.Scan(&e.Alias, &e.Generation); err != nil {
			return nil, fmt.Errorf("cannot decode alias row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*Generation, error) {
	var (
		gen       Generation
		status    string
		createdNS int64
	)
	if err := row.Scan(&gen.Name, &gen.Alias, &gen.SchemaVersion, &status, &createdNS); err != nil {
		return nil, err
	}
	gen.Status = Status(status)
	gen.CreatedAt = time.Unix(0, createdNS)
	return &gen, nil
}
