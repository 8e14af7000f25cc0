package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
)

// Store is the SQLite-backed primary store reader.
type Store struct {
	db   *sql.DB
	path string
}

// Verify interface implementation at compile time
var _ Reader = (*Store)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		tags       TEXT NOT NULL DEFAULT '[]',
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at, id);
`

// NewStore opens the primary store database at path.
// An empty path opens an in-memory database for testing.
func NewStore(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, syncerrors.SourceUnavailable(
				fmt.Sprintf("cannot create store directory for %s", path), err)
		}
		// WAL mode allows the memory service to keep writing while a sync reads
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, syncerrors.SourceUnavailable(
			fmt.Sprintf("cannot open primary store %s", path), err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, syncerrors.SourceUnavailable(
			fmt.Sprintf("cannot initialize primary store %s", path), err)
	}

	return &Store{db: db, path: path}, nil
}

// FetchPage returns up to limit records created at or after f.Since,
// ordered by (created_at, id), starting at offset. The boundary is
// inclusive: a record created exactly at f.Since is returned.
func (s *Store) FetchPage(ctx context.Context, f Filter, offset, limit int) ([]*Record, error) {
	query := `SELECT id, user_id, kind, content, tags, metadata, created_at, updated_at
	          FROM memories`
	args := []any{}
	if !f.Since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, f.Since.UnixNano())
	}
	query += ` ORDER BY created_at, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncerrors.SourceUnavailable("primary store query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeSourceQuery,
				"cannot decode primary store row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.SourceUnavailable("primary store read interrupted", err)
	}

	return records, nil
}

// Count returns the number of records matching the filter.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	query := `SELECT COUNT(*) FROM memories`
	args := []any{}
	if !f.Since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, f.Since.UnixNano())
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, syncerrors.SourceUnavailable("primary store count failed", err)
	}
	return n, nil
}

// Insert writes records into the store. Used by the seed command and tests;
// the memory service owns production writes.
func (s *Store) Insert(ctx context.Context, records ...*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncerrors.SourceUnavailable("cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO memories
			(id, user_id, kind, content, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return syncerrors.SourceUnavailable("cannot prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		tags, err := json.Marshal(rec.Tags)
		if err != nil {
			return syncerrors.InternalError(fmt.Sprintf("cannot encode tags for %s", rec.ID), err)
		}
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return syncerrors.InternalError(fmt.Sprintf("cannot encode metadata for %s", rec.ID), err)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.UserID, rec.Kind, rec.Content,
			string(tags), string(metadata),
			rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano()); err != nil {
			return syncerrors.SourceUnavailable(fmt.Sprintf("cannot insert record %s", rec.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncerrors.SourceUnavailable("cannot commit insert", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanRecord decodes one row into a Record.
func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                 Record
		tagsJSON, metaJSON  string
		createdNS, updatedNS int64
	)
	if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.Content,
		&tagsJSON, &metaJSON, &createdNS, &updatedNS); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("tags column: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("metadata column: %w", err)
	}

	rec.CreatedAt = time.Unix(0, createdNS)
	rec.UpdatedAt = time.Unix(0, updatedNS)
	return &rec, nil
}
