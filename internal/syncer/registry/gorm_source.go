package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/indexflow-go/internal/domain/change"
)

// GormSource reads the system of record: it renders documents and resolves
// relations per the schema. It never writes.
type GormSource struct {
	db     *gorm.DB
	schema *Schema
}

func NewGormSource(db *gorm.DB, schema *Schema) *GormSource {
	return &GormSource{db: db, schema: schema}
}

func (g *GormSource) Document(ctx context.Context, identity change.Identity) (map[string]interface{}, error) {
	def, ok := g.schema.Index(identity.Index)
	if !ok {
		return nil, change.Permanent(fmt.Errorf("no index definition for %q", identity.Index))
	}

	if def.Document != nil {
		doc, err := def.Document(ctx, g.db, identity.RecordID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordGone
		}
		return doc, err
	}

	// Default rendering: the raw row keyed by column name.
	doc := map[string]interface{}{}
	err := g.db.WithContext(ctx).
		Table(def.Table).
		Where(def.IDColumn+" = ?", identity.RecordID).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordGone
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", identity, err)
	}
	return doc, nil
}

func (g *GormSource) RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error) {
	def, ok := g.schema.Index(identity.Index)
	if !ok {
		return nil, fmt.Errorf("no index definition for %q", identity.Index)
	}

	seen := map[change.Identity]bool{}
	var related []change.Identity
	for _, rel := range def.Relations {
		ids, err := rel(ctx, g.db, identity.RecordID)
		if err != nil {
			return nil, fmt.Errorf("relations of %s: %w", identity, err)
		}
		for _, id := range ids {
			if id == identity || seen[id] {
				continue
			}
			seen[id] = true
			related = append(related, id)
		}
	}
	return related, nil
}

// PageIDs returns one page of record ids for an index, ordered by id, for the
// rebuilder's full scans.
func (g *GormSource) PageIDs(ctx context.Context, index string, offset, limit int) ([]string, error) {
	def, ok := g.schema.Index(index)
	if !ok {
		return nil, fmt.Errorf("no index definition for %q", index)
	}

	var ids []string
	err := g.db.WithContext(ctx).
		Table(def.Table).
		Order(def.IDColumn).
		Offset(offset).
		Limit(limit).
		Pluck(def.IDColumn, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("page ids of %s: %w", index, err)
	}
	return ids, nil
}
