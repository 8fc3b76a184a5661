package expander

import (
	"context"
	"fmt"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/metrics"
)

// RelationLookup resolves the identities whose derived documents depend on a
// record. Satisfied by the registry.
type RelationLookup interface {
	RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error)
}

// Expander turns one coalesced change into the ordered set of sync tasks it
// implies: the record itself plus the transitive closure of records whose
// derived documents embed it.
type Expander struct {
	relations RelationLookup
	maxDepth  int
	logger    logger.Logger
}

func New(relations RelationLookup, maxDepth int, log logger.Logger) *Expander {
	return &Expander{relations: relations, maxDepth: maxDepth, logger: log}
}

// Expand returns the tasks for one changed identity. The first task targets
// the identity itself: a Delete for Deleted events, an Upsert otherwise.
// Related identities always get Upsert tasks, even on delete, because those
// records still exist and only their derived documents must be recomputed.
//
// Expansion walks the relation graph breadth-first with a visited set, so
// cyclic relations terminate and each identity is emitted at most once. When
// the walk would exceed the depth cap, the excess identities are dropped and
// change.ErrFanoutLimit is returned alongside the partial task list.
func (e *Expander) Expand(ctx context.Context, identity change.Identity, kind change.Kind) ([]change.Task, error) {
	self := change.Task{Identity: identity, Operation: change.OpUpsert}
	if kind == change.Deleted {
		self.Operation = change.OpDelete
	}

	tasks := []change.Task{self}
	visited := map[change.Identity]bool{identity: true}
	frontier := []change.Identity{identity}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= e.maxDepth {
			dropped := 0
			for _, id := range frontier {
				related, err := e.relations.RelatedIDsOf(ctx, id)
				if err != nil {
					break
				}
				for _, rid := range related {
					if !visited[rid] {
						dropped++
					}
				}
			}
			if dropped > 0 {
				metrics.FanoutDropped.Add(float64(dropped))
				return tasks, fmt.Errorf("expanding %s past depth %d (%d related dropped): %w",
					identity, e.maxDepth, dropped, change.ErrFanoutLimit)
			}
			return tasks, nil
		}

		var next []change.Identity
		for _, id := range frontier {
			related, err := e.relations.RelatedIDsOf(ctx, id)
			if err != nil {
				return tasks, fmt.Errorf("related ids of %s: %w", id, err)
			}
			for _, rid := range related {
				if visited[rid] {
					continue
				}
				visited[rid] = true
				tasks = append(tasks, change.Task{Identity: rid, Operation: change.OpUpsert})
				next = append(next, rid)
			}
		}
		frontier = next
	}

	return tasks, nil
}
