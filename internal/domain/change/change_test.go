package change

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDominance(t *testing.T) {
	tests := []struct {
		name     string
		pending  Kind
		incoming Kind
		want     Kind
	}{
		{"delete wins over update", Updated, Deleted, Deleted},
		{"delete survives relation add", Deleted, RelationAdded, Deleted},
		{"delete survives relation clear", Deleted, RelationCleared, Deleted},
		{"update survives created", Updated, Created, Updated},
		{"created upgraded by update", Created, Updated, Updated},
		{"created upgraded by relation add", Created, RelationAdded, Updated},
		{"relation resolves to updated", RelationRemoved, RelationAdded, Updated},
		{"created stays created", Created, Created, Created},
		{"update survives relation remove", Updated, RelationRemoved, Updated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.pending, tt.incoming))
		})
	}
}

func TestMergeSequences(t *testing.T) {
	// For any sequence: Deleted if any delete occurred, else Updated if any
	// non-create occurred, else Created.
	resolve := func(kinds ...Kind) Kind {
		got := kinds[0]
		if got.IsRelation() {
			got = Merge(got, got)
		}
		for _, k := range kinds[1:] {
			got = Merge(got, k)
		}
		return got
	}

	assert.Equal(t, Deleted, resolve(Created, Updated, Deleted))
	assert.Equal(t, Deleted, resolve(Deleted, Created))
	assert.Equal(t, Updated, resolve(Created, RelationAdded))
	assert.Equal(t, Updated, resolve(RelationCleared))
	assert.Equal(t, Created, resolve(Created, Created))
}

func TestMergeOps(t *testing.T) {
	assert.Equal(t, OpDelete, MergeOps(OpUpsert, OpDelete))
	assert.Equal(t, OpDelete, MergeOps(OpDelete, OpUpsert))
	assert.Equal(t, OpUpsert, MergeOps(OpUpsert, OpUpsert))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("connection reset"))))
	assert.False(t, IsTransient(Permanent(errors.New("bad mapping"))))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("upsert articles/1: %w", Permanent(errors.New("schema mismatch")))
	assert.False(t, IsTransient(wrapped))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 404, 409, 422} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(Identity{Index: "articles", RecordID: "42"}, Updated)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, "articles/42", ev.Identity.String())
}
