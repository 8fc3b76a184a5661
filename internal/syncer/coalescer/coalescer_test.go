package coalescer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
)

func newTestCoalescer(threshold int) *Coalescer {
	return New(Config{FlushInterval: 10 * time.Millisecond, MaxBatchSize: threshold}, logger.NewNop())
}

func observe(c *Coalescer, id change.Identity, kinds ...change.Kind) {
	for _, k := range kinds {
		c.Observe(change.NewEvent(id, k))
	}
}

func TestFlushEmptyIsIdempotent(t *testing.T) {
	c := newTestCoalescer(0)
	assert.Empty(t, c.Flush())
	assert.Empty(t, c.Flush())
}

func TestDominanceMerge(t *testing.T) {
	id := change.Identity{Index: "articles", RecordID: "1"}

	tests := []struct {
		name  string
		kinds []change.Kind
		want  change.Kind
	}{
		{"delete dominates", []change.Kind{change.Created, change.Updated, change.Deleted}, change.Deleted},
		{"delete survives later relation add", []change.Kind{change.Deleted, change.RelationAdded}, change.Deleted},
		{"update dominates create", []change.Kind{change.Created, change.Updated}, change.Updated},
		{"relation upgrades create", []change.Kind{change.Created, change.RelationRemoved}, change.Updated},
		{"only create stays create", []change.Kind{change.Created}, change.Created},
		{"relation alone becomes update", []change.Kind{change.RelationCleared}, change.Updated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoalescer(0)
			observe(c, id, tt.kinds...)

			entries := c.Flush()
			require.Len(t, entries, 1)
			assert.Equal(t, id, entries[0].Identity)
			assert.Equal(t, tt.want, entries[0].Kind)
		})
	}
}

func TestFlushClearsPending(t *testing.T) {
	c := newTestCoalescer(0)
	observe(c, change.Identity{Index: "articles", RecordID: "1"}, change.Updated)

	require.Len(t, c.Flush(), 1)
	assert.Empty(t, c.Flush())
	assert.Zero(t, c.Size())
}

func TestFlushPreservesFirstObservedOrder(t *testing.T) {
	c := newTestCoalescer(0)
	a := change.Identity{Index: "articles", RecordID: "a"}
	b := change.Identity{Index: "articles", RecordID: "b"}

	observe(c, a, change.Created)
	observe(c, b, change.Created)
	observe(c, a, change.Updated) // must not move a behind b

	entries := c.Flush()
	require.Len(t, entries, 2)
	assert.Equal(t, a, entries[0].Identity)
	assert.Equal(t, b, entries[1].Identity)
}

func TestThresholdTriggersFlush(t *testing.T) {
	c := New(Config{FlushInterval: time.Hour, MaxBatchSize: 2}, logger.NewNop())

	flushed := make(chan []Entry, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx, func(ctx context.Context, entries []Entry) {
		flushed <- entries
	})

	observe(c, change.Identity{Index: "articles", RecordID: "1"}, change.Created)
	observe(c, change.Identity{Index: "articles", RecordID: "2"}, change.Created)

	select {
	case entries := <-flushed:
		assert.Len(t, entries, 2)
	case <-time.After(time.Second):
		t.Fatal("threshold flush never fired")
	}
}

func TestShutdownFlushesRemainder(t *testing.T) {
	c := New(Config{FlushInterval: time.Hour, MaxBatchSize: 0}, logger.NewNop())

	flushed := make(chan []Entry, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(ctx context.Context, entries []Entry) {
			flushed <- entries
		})
		close(done)
	}()

	observe(c, change.Identity{Index: "articles", RecordID: "9"}, change.Deleted)
	cancel()
	<-done

	select {
	case entries := <-flushed:
		require.Len(t, entries, 1)
		assert.Equal(t, change.Deleted, entries[0].Kind)
	default:
		t.Fatal("shutdown flush missing")
	}
}
