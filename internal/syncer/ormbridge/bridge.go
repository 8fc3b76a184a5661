package ormbridge

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/bus"
	"github.com/indexflow-go/pkg/logger"
)

// Processor publishes a change event for every persisted mutation of a
// registered model, wiring GORM's callback chain to the notification bus. It
// is installed either as a gorm.Plugin or by calling Setup directly, and can
// be detached again with Teardown.
type Processor struct {
	bus    bus.Bus
	logger logger.Logger

	mu      sync.RWMutex
	indexes map[string]string // table name -> search index
}

const (
	createCallback = "indexflow:after_create"
	updateCallback = "indexflow:after_update"
	deleteCallback = "indexflow:after_delete"
)

func NewProcessor(b bus.Bus, log logger.Logger) *Processor {
	return &Processor{
		bus:     b,
		logger:  log,
		indexes: make(map[string]string),
	}
}

// Track maps a table onto its search index. Mutations on untracked tables
// are ignored.
func (p *Processor) Track(table, index string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexes[table] = index
}

// Name implements gorm.Plugin.
func (p *Processor) Name() string { return "indexflow:change_notifier" }

// Initialize implements gorm.Plugin.
func (p *Processor) Initialize(db *gorm.DB) error { return p.Setup(db) }

// Setup attaches the after-create/update/delete callbacks.
func (p *Processor) Setup(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register(createCallback, p.notify(change.Created)); err != nil {
		return fmt.Errorf("register create callback: %w", err)
	}
	if err := cb.Update().After("gorm:update").Register(updateCallback, p.notify(change.Updated)); err != nil {
		return fmt.Errorf("register update callback: %w", err)
	}
	if err := cb.Delete().After("gorm:delete").Register(deleteCallback, p.notify(change.Deleted)); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	return nil
}

// Teardown detaches the callbacks.
func (p *Processor) Teardown(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Remove(createCallback); err != nil {
		return err
	}
	if err := cb.Update().Remove(updateCallback); err != nil {
		return err
	}
	return cb.Delete().Remove(deleteCallback)
}

// NotifyRelation reports a relation-membership change for an identity. GORM
// has no signal for association mutations, so repositories call this after
// Append/Delete/Clear on an association.
func (p *Processor) NotifyRelation(ctx context.Context, identity change.Identity, kind change.Kind) error {
	if !kind.IsRelation() {
		return fmt.Errorf("kind %q is not a relation change", kind)
	}
	return p.bus.Publish(ctx, change.NewEvent(identity, kind))
}

func (p *Processor) notify(kind change.Kind) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement == nil || tx.Statement.Schema == nil {
			return
		}

		p.mu.RLock()
		index, tracked := p.indexes[tx.Statement.Table]
		p.mu.RUnlock()
		if !tracked {
			return
		}

		for _, recordID := range p.recordIDs(tx) {
			event := change.NewEvent(change.Identity{Index: index, RecordID: recordID}, kind)
			if err := p.bus.Publish(tx.Statement.Context, event); err != nil {
				p.logger.Error("Failed to publish change event",
					"error", err, "identity", event.Identity.String(), "kind", kind)
			}
		}
	}
}

// recordIDs extracts primary key values from the statement, covering both
// single-record and batch mutations.
func (p *Processor) recordIDs(tx *gorm.DB) []string {
	pf := tx.Statement.Schema.PrioritizedPrimaryField
	if pf == nil {
		return nil
	}

	rv := tx.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		ids := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if v, isZero := pf.ValueOf(tx.Statement.Context, rv.Index(i)); !isZero {
				ids = append(ids, fmt.Sprint(v))
			}
		}
		return ids
	case reflect.Struct:
		if v, isZero := pf.ValueOf(tx.Statement.Context, rv); !isZero {
			return []string{fmt.Sprint(v)}
		}
	}
	return nil
}
