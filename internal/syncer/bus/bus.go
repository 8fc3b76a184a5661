package bus

import (
	"context"
	"errors"

	"github.com/indexflow-go/internal/domain/change"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("notification bus closed")

// Handler receives change events from the notification bus.
type Handler func(ctx context.Context, event change.Event) error

// Bus delivers record mutation events from the system of record to the
// synchronizer. Implementations guarantee per-identity ordering.
type Bus interface {
	// Subscribe registers a handler and returns its unsubscribe function.
	Subscribe(handler Handler) (unsubscribe func())

	// Publish emits an event to all subscribed handlers.
	Publish(ctx context.Context, event change.Event) error

	Close() error
}
