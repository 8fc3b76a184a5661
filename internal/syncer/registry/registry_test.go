package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexflow-go/internal/domain/change"
)

type fakeRegistry struct {
	upserts []change.Identity
	deletes []change.Identity
}

func (f *fakeRegistry) Upsert(ctx context.Context, id change.Identity, doc map[string]interface{}) error {
	f.upserts = append(f.upserts, id)
	return nil
}

func (f *fakeRegistry) Delete(ctx context.Context, id change.Identity) error {
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeRegistry) RelatedIDsOf(ctx context.Context, id change.Identity) ([]change.Identity, error) {
	return nil, nil
}

type mapSource struct {
	docs map[change.Identity]map[string]interface{}
}

func (m *mapSource) Document(ctx context.Context, id change.Identity) (map[string]interface{}, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrRecordGone
	}
	return doc, nil
}

func TestApplierUpsert(t *testing.T) {
	id := change.Identity{Index: "articles", RecordID: "1"}
	reg := &fakeRegistry{}
	applier := NewApplier(reg, &mapSource{docs: map[change.Identity]map[string]interface{}{
		id: {"title": "hello"},
	}})

	err := applier.Apply(context.Background(), change.Task{Identity: id, Operation: change.OpUpsert})
	require.NoError(t, err)
	assert.Equal(t, []change.Identity{id}, reg.upserts)
	assert.Empty(t, reg.deletes)
}

func TestApplierDelete(t *testing.T) {
	id := change.Identity{Index: "articles", RecordID: "1"}
	reg := &fakeRegistry{}
	applier := NewApplier(reg, &mapSource{})

	err := applier.Apply(context.Background(), change.Task{Identity: id, Operation: change.OpDelete})
	require.NoError(t, err)
	assert.Equal(t, []change.Identity{id}, reg.deletes)
}

func TestApplierUpsertOfVanishedRecordDeletes(t *testing.T) {
	// The record was removed between the event and the sync; the stale
	// document must go, not stay.
	id := change.Identity{Index: "articles", RecordID: "gone"}
	reg := &fakeRegistry{}
	applier := NewApplier(reg, &mapSource{})

	err := applier.Apply(context.Background(), change.Task{Identity: id, Operation: change.OpUpsert})
	require.NoError(t, err)
	assert.Empty(t, reg.upserts)
	assert.Equal(t, []change.Identity{id}, reg.deletes)
}
