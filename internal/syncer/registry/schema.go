package registry

import (
	"context"

	"gorm.io/gorm"

	"github.com/indexflow-go/internal/domain/change"
)

// DocumentFunc renders the derived document for one record.
type DocumentFunc func(ctx context.Context, db *gorm.DB, recordID string) (map[string]interface{}, error)

// RelationFunc resolves identities whose derived documents depend on one
// record.
type RelationFunc func(ctx context.Context, db *gorm.DB, recordID string) ([]change.Identity, error)

// IndexDef maps one search index onto its backing table: how to render a
// record's document and which records depend on it.
type IndexDef struct {
	Name      string
	Table     string
	IDColumn  string
	Mapping   string
	Document  DocumentFunc
	Relations []RelationFunc
}

// Schema is the full index mapping for one deployment.
type Schema struct {
	defs  map[string]*IndexDef
	order []string
}

func NewSchema(defs ...*IndexDef) *Schema {
	s := &Schema{defs: make(map[string]*IndexDef)}
	for _, def := range defs {
		if def.IDColumn == "" {
			def.IDColumn = "id"
		}
		s.defs[def.Name] = def
		s.order = append(s.order, def.Name)
	}
	return s
}

func (s *Schema) Index(name string) (*IndexDef, bool) {
	def, ok := s.defs[name]
	return def, ok
}

func (s *Schema) All() []*IndexDef {
	out := make([]*IndexDef, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

// DefaultMapping is used for indexes that do not declare one.
const DefaultMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"created_at": {"type": "date"},
			"updated_at": {"type": "date"}
		}
	}
}`

// HasMany declares that records in childTable referencing this record via
// fkColumn carry derived documents in childIndex.
func HasMany(childIndex, childTable, fkColumn, idColumn string) RelationFunc {
	return func(ctx context.Context, db *gorm.DB, recordID string) ([]change.Identity, error) {
		var ids []string
		err := db.WithContext(ctx).
			Table(childTable).
			Where(fkColumn+" = ?", recordID).
			Pluck(idColumn, &ids).Error
		if err != nil {
			return nil, err
		}
		return toIdentities(childIndex, ids), nil
	}
}

// BelongsTo declares that this record's row in ownTable points at a parent
// (fkColumn) whose derived document in parentIndex embeds it.
func BelongsTo(parentIndex, ownTable, fkColumn, idColumn string) RelationFunc {
	return func(ctx context.Context, db *gorm.DB, recordID string) ([]change.Identity, error) {
		var parentIDs []string
		err := db.WithContext(ctx).
			Table(ownTable).
			Where(idColumn+" = ?", recordID).
			Pluck(fkColumn, &parentIDs).Error
		if err != nil {
			return nil, err
		}
		return toIdentities(parentIndex, parentIDs), nil
	}
}

// ManyToMany declares a join-table relation: rows in joinTable pair this
// record (ownColumn) with records indexed in relatedIndex (relatedColumn).
func ManyToMany(relatedIndex, joinTable, ownColumn, relatedColumn string) RelationFunc {
	return func(ctx context.Context, db *gorm.DB, recordID string) ([]change.Identity, error) {
		var ids []string
		err := db.WithContext(ctx).
			Table(joinTable).
			Where(ownColumn+" = ?", recordID).
			Pluck(relatedColumn, &ids).Error
		if err != nil {
			return nil, err
		}
		return toIdentities(relatedIndex, ids), nil
	}
}

func toIdentities(index string, ids []string) []change.Identity {
	out := make([]change.Identity, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, change.Identity{Index: index, RecordID: id})
	}
	return out
}
