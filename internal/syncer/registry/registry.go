package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/indexflow-go/internal/domain/change"
)

// ErrRecordGone is returned by a DocumentSource when the record backing an
// upsert no longer exists in the system of record.
var ErrRecordGone = errors.New("record no longer exists")

// Registry is the search-index client: a black box exposing document
// upsert/delete plus the relation lookup the expander fans out with.
type Registry interface {
	Upsert(ctx context.Context, identity change.Identity, doc map[string]interface{}) error
	Delete(ctx context.Context, identity change.Identity) error
	RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error)
}

// DocumentSource renders the derived search document for a record, usually by
// loading it (and its relations) from the system of record.
type DocumentSource interface {
	Document(ctx context.Context, identity change.Identity) (map[string]interface{}, error)
}

// RelationSource resolves the identities whose derived documents depend on a
// record.
type RelationSource interface {
	RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error)
}

// Applier executes sync tasks against a Registry, rendering documents through
// a DocumentSource. When the record behind an upsert has meanwhile vanished,
// the document is deleted instead so the index never resurrects stale data.
type Applier struct {
	registry Registry
	source   DocumentSource
}

func NewApplier(reg Registry, source DocumentSource) *Applier {
	return &Applier{registry: reg, source: source}
}

func (a *Applier) Apply(ctx context.Context, task change.Task) error {
	if task.Operation == change.OpDelete {
		return a.registry.Delete(ctx, task.Identity)
	}

	doc, err := a.source.Document(ctx, task.Identity)
	if errors.Is(err, ErrRecordGone) {
		return a.registry.Delete(ctx, task.Identity)
	}
	if err != nil {
		return fmt.Errorf("render document %s: %w", task.Identity, err)
	}

	return a.registry.Upsert(ctx, task.Identity, doc)
}
