// Package source reads memory records from the primary store.
// The primary store is a SQLite database owned by the memory service;
// memsync only consumes its stable read interface.
package source

import (
	"context"
	"time"
)

// Record is an immutable-at-read-time snapshot of one memory record.
type Record struct {
	// ID is the stable record identifier assigned by the primary store.
	ID string

	// UserID scopes the memory to its owner.
	UserID string

	// Kind classifies the memory (episodic, semantic, profile, ...).
	Kind string

	// Content is the memory text.
	Content string

	// Tags are free-form labels attached at extraction time.
	Tags []string

	// Metadata carries extraction context as key-value pairs.
	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter bounds a read over the primary store.
type Filter struct {
	// Since restricts reads to records created at or after the given
	// instant. Zero means unbounded.
	Since time.Time
}

// Reader pages records out of the primary store. Each call is stateless
// and returns up to limit records ordered by (created_at, id); page
// boundaries are store-defined, so callers retry whole pages on failure.
type Reader interface {
	FetchPage(ctx context.Context, f Filter, offset, limit int) ([]*Record, error)
}
