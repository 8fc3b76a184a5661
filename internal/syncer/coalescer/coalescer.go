package coalescer

import (
	"context"
	"sync"
	"time"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/metrics"
)

// Entry is one coalesced pending change: the identity plus the dominant kind
// observed since the last flush.
type Entry struct {
	Identity change.Identity
	Kind     change.Kind
}

// FlushFunc consumes a flushed batch. Invoked from the Run goroutine only, so
// flush cycles never overlap.
type FlushFunc func(ctx context.Context, entries []Entry)

// Coalescer absorbs the event stream into a pending set, merging repeated
// events for the same identity under the dominance rule (Deleted > Updated >
// Created, relation changes count as updates). Flushing drains the set in
// first-observed order.
type Coalescer struct {
	interval  time.Duration
	threshold int
	logger    logger.Logger

	mu      sync.Mutex
	pending map[change.Identity]change.Kind
	order   []change.Identity

	kick chan struct{}
}

type Config struct {
	FlushInterval time.Duration
	MaxBatchSize  int
}

func New(cfg Config, log logger.Logger) *Coalescer {
	return &Coalescer{
		interval:  cfg.FlushInterval,
		threshold: cfg.MaxBatchSize,
		logger:    log,
		pending:   make(map[change.Identity]change.Kind),
		kick:      make(chan struct{}, 1),
	}
}

// Observe merges an event into the pending set. A first event creates the
// entry; later events only ever upgrade its kind.
func (c *Coalescer) Observe(event change.Event) {
	metrics.EventsObserved.WithLabelValues(string(event.Kind)).Inc()

	c.mu.Lock()
	pending, ok := c.pending[event.Identity]
	if !ok {
		c.pending[event.Identity] = change.Merge(event.Kind, event.Kind)
		c.order = append(c.order, event.Identity)
	} else {
		c.pending[event.Identity] = change.Merge(pending, event.Kind)
	}
	size := len(c.pending)
	c.mu.Unlock()

	if c.threshold > 0 && size >= c.threshold {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Flush drains the pending set, returning entries in first-observed order.
// Flushing an empty set returns nil.
func (c *Coalescer) Flush() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(c.order))
	for _, identity := range c.order {
		entries = append(entries, Entry{Identity: identity, Kind: c.pending[identity]})
	}

	c.pending = make(map[change.Identity]change.Kind)
	c.order = nil

	return entries
}

// Size returns the number of pending identities.
func (c *Coalescer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run flushes on the configured interval or when the batch threshold is hit,
// whichever comes first, bounding both staleness and batch size. On context
// cancellation it performs one final flush so nothing observed before
// shutdown is lost.
func (c *Coalescer) Run(ctx context.Context, flush FlushFunc) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flushInto(ctx, flush, "interval")
		case <-c.kick:
			c.flushInto(ctx, flush, "threshold")
			ticker.Reset(c.interval)
		case <-ctx.Done():
			c.flushInto(context.Background(), flush, "shutdown")
			return
		}
	}
}

func (c *Coalescer) flushInto(ctx context.Context, flush FlushFunc, trigger string) {
	entries := c.Flush()
	if len(entries) == 0 {
		return
	}

	metrics.FlushesTotal.WithLabelValues(trigger).Inc()
	metrics.FlushBatchSize.Observe(float64(len(entries)))
	c.logger.Debug("Flushing pending changes", "count", len(entries), "trigger", trigger)

	flush(ctx, entries)
}
