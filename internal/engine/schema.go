// Package engine manages search index generations and the alias catalog.
//
// A generation is one physical bleve index built for one schema version.
// An alias is a stable name that resolves to exactly one active generation;
// the mapping lives in a SQLite catalog and every swap is a single ACID
// transaction, so readers never observe a half-switched alias.
package engine

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
)

// FieldType classifies a schema field.
type FieldType string

const (
	// FieldText is analyzed full-text content.
	FieldText FieldType = "text"
	// FieldKeyword is an exact-match, non-analyzed term.
	FieldKeyword FieldType = "keyword"
	// FieldDateTime is a timestamp field.
	FieldDateTime FieldType = "datetime"
)

// Field is one field of an index schema.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
}

// Schema is the versioned mapping applied to a new generation.
type Schema struct {
	Version int     `yaml:"version"`
	Fields  []Field `yaml:"fields"`
}

// MemorySchema returns the current schema for memory documents.
// Bump Version whenever the field list changes; a rebuild then creates a
// generation with the new mapping and swaps the alias over.
func MemorySchema() Schema {
	return Schema{
		Version: 2,
		Fields: []Field{
			{Name: "user_id", Type: FieldKeyword},
			{Name: "kind", Type: FieldKeyword},
			{Name: "content", Type: FieldText},
			{Name: "tags", Type: FieldKeyword},
			{Name: "created_at", Type: FieldDateTime},
			{Name: "updated_at", Type: FieldDateTime},
		},
	}
}

// BuildMapping compiles the schema into a bleve index mapping.
func (s Schema) BuildMapping() (mapping.IndexMapping, error) {
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("schema version %d has no fields", s.Version)
	}

	docMapping := bleve.NewDocumentMapping()
	seen := make(map[string]struct{}, len(s.Fields))

	for _, f := range s.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema version %d has a field with no name", s.Version)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("schema version %d declares field %q twice", s.Version, f.Name)
		}
		seen[f.Name] = struct{}{}

		var fm *mapping.FieldMapping
		switch f.Type {
		case FieldText:
			fm = bleve.NewTextFieldMapping()
		case FieldKeyword:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
		case FieldDateTime:
			fm = bleve.NewDateTimeFieldMapping()
		default:
			return nil, fmt.Errorf("schema version %d field %q has unknown type %q",
				s.Version, f.Name, f.Type)
		}
		docMapping.AddFieldMappingsAt(f.Name, fm)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

// Validate reports whether the schema can be compiled to a mapping.
func (s Schema) Validate() error {
	if _, err := s.BuildMapping(); err != nil {
		return syncerrors.SchemaApplyFailed(err.Error(), err)
	}
	return nil
}
