package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexflow-go/internal/domain/change"
)

func TestLocalBusDeliversInOrder(t *testing.T) {
	b := NewLocalBus()

	var got []change.Kind
	unsub := b.Subscribe(func(ctx context.Context, ev change.Event) error {
		got = append(got, ev.Kind)
		return nil
	})
	defer unsub()

	id := change.Identity{Index: "articles", RecordID: "1"}
	for _, k := range []change.Kind{change.Created, change.Updated, change.Deleted} {
		require.NoError(t, b.Publish(context.Background(), change.NewEvent(id, k)))
	}

	assert.Equal(t, []change.Kind{change.Created, change.Updated, change.Deleted}, got)
}

func TestLocalBusUnsubscribe(t *testing.T) {
	b := NewLocalBus()

	calls := 0
	unsub := b.Subscribe(func(ctx context.Context, ev change.Event) error {
		calls++
		return nil
	})

	id := change.Identity{Index: "articles", RecordID: "1"}
	require.NoError(t, b.Publish(context.Background(), change.NewEvent(id, change.Created)))
	unsub()
	require.NoError(t, b.Publish(context.Background(), change.NewEvent(id, change.Updated)))

	assert.Equal(t, 1, calls)
}

func TestLocalBusRejectsAfterClose(t *testing.T) {
	b := NewLocalBus()
	require.NoError(t, b.Close())

	id := change.Identity{Index: "articles", RecordID: "1"}
	err := b.Publish(context.Background(), change.NewEvent(id, change.Created))
	assert.ErrorIs(t, err, ErrBusClosed)
}
