package change

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a mutation observed on a record in the system of record.
type Kind string

const (
	Created         Kind = "created"
	Updated         Kind = "updated"
	Deleted         Kind = "deleted"
	RelationAdded   Kind = "relation_added"
	RelationRemoved Kind = "relation_removed"
	RelationCleared Kind = "relation_cleared"
)

// Identity is the stable unique key of a record: the search index it maps to
// plus the record's primary key in the system of record.
type Identity struct {
	Index    string `json:"index"`
	RecordID string `json:"recordId"`
}

func (id Identity) String() string {
	return id.Index + "/" + id.RecordID
}

// Event is a single mutation notification. Immutable once emitted.
type Event struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an Event with a fresh ID and UTC timestamp.
func NewEvent(identity Identity, kind Kind) Event {
	return Event{
		ID:        uuid.New().String(),
		Identity:  identity,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Valid reports whether k is one of the defined change kinds.
func (k Kind) Valid() bool {
	switch k {
	case Created, Updated, Deleted, RelationAdded, RelationRemoved, RelationCleared:
		return true
	}
	return false
}

// IsRelation reports whether the kind describes a relation-membership change
// rather than a mutation of the record itself.
func (k Kind) IsRelation() bool {
	switch k {
	case RelationAdded, RelationRemoved, RelationCleared:
		return true
	}
	return false
}

// severity orders kinds for coalescing. A pending Deleted is never downgraded,
// an Updated is never downgraded to Created, and relation changes rank with
// Updated because they force the derived document to be re-rendered.
func (k Kind) severity() int {
	switch k {
	case Deleted:
		return 3
	case Updated, RelationAdded, RelationRemoved, RelationCleared:
		return 2
	case Created:
		return 1
	}
	return 0
}

// Merge resolves two kinds observed for the same identity into the single
// kind that must survive coalescing. Relation kinds resolve to Updated so the
// pending set only ever holds Created, Updated or Deleted.
func Merge(pending, incoming Kind) Kind {
	k := pending
	if incoming.severity() > pending.severity() {
		k = incoming
	}
	if k.IsRelation() {
		return Updated
	}
	return k
}

// Operation is what the synchronizer does to the search index for a task.
type Operation string

const (
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// MergeOps resolves two operations queued for the same identity. Delete
// dominates: once a record is gone its document must not be resurrected.
func MergeOps(a, b Operation) Operation {
	if a == OpDelete || b == OpDelete {
		return OpDelete
	}
	return OpUpsert
}

// Task is one unit of work for the synchronizer. Produced by the expander,
// consumed exactly once.
type Task struct {
	Identity  Identity  `json:"identity"`
	Operation Operation `json:"operation"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s %s", t.Operation, t.Identity)
}
