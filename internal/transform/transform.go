// Package transform maps primary store records to search documents.
// Transformers are pure: no I/O, no hidden state, and a deterministic
// document ID per record, which is what makes replayed writes idempotent.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
	"github.com/Aman-CERP/memsync/internal/source"
)

// Document is the indexed form of a memory record.
// Field names line up with the schema fields registered for the alias.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hash returns a digest of the document's indexed content.
// Two transformations of an unchanged record produce the same hash, so
// the bulk writer can skip redundant upserts within a run.
func (d *Document) Hash() string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%d\x00%d",
		d.ID, d.UserID, d.Kind, d.Content, strings.Join(d.Tags, ","),
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// Transformer converts one source record into one target document.
type Transformer interface {
	Transform(rec *source.Record) (*Document, error)
}

// MemoryTransformer is the transformer for memory records.
type MemoryTransformer struct{}

// Verify interface implementation at compile time
var _ Transformer = (*MemoryTransformer)(nil)

// NewMemoryTransformer creates a transformer for memory records.
func NewMemoryTransformer() *MemoryTransformer {
	return &MemoryTransformer{}
}

// Transform maps a record to a document. The document ID is the record ID,
// so re-transforming the same record always targets the same document.
// Returns MalformedRecord when required fields are absent.
func (t *MemoryTransformer) Transform(rec *source.Record) (*Document, error) {
	if rec == nil {
		return nil, syncerrors.MalformedRecord("record is nil", nil)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, syncerrors.MalformedRecord("record has no id", nil)
	}
	if strings.TrimSpace(rec.Content) == "" {
		return nil, syncerrors.MalformedRecord(
			fmt.Sprintf("record %s has no content", rec.ID), nil)
	}
	if rec.CreatedAt.IsZero() {
		return nil, syncerrors.MalformedRecord(
			fmt.Sprintf("record %s has no creation timestamp", rec.ID), nil)
	}

	doc := &Document{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Kind:      rec.Kind,
		Content:   rec.Content,
		Tags:      append([]string(nil), rec.Tags...),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	return doc, nil
}
