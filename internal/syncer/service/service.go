package service

import (
	"context"
	"errors"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/bus"
	"github.com/indexflow-go/internal/syncer/coalescer"
	"github.com/indexflow-go/internal/syncer/expander"
	"github.com/indexflow-go/internal/syncer/registry"
	"github.com/indexflow-go/internal/syncer/synchronizer"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/telemetry"
)

// Service wires the pipeline together: bus events feed the coalescer, flush
// cycles run through the expander, and the resulting tasks are submitted to
// the synchronizer. It owns the lifecycle of all of them.
type Service struct {
	bus       bus.Bus
	coalescer *coalescer.Coalescer
	expander  *expander.Expander
	sync      *synchronizer.Synchronizer
	relCache  *registry.CachedRelations
	telemetry *telemetry.Telemetry
	logger    logger.Logger

	unsubscribe func()
	cancelPump  context.CancelFunc
	pumpDone    chan struct{}
}

// Options carries the service's collaborators. RelationCache and Telemetry
// are optional.
type Options struct {
	Bus           bus.Bus
	Coalescer     *coalescer.Coalescer
	Expander      *expander.Expander
	Synchronizer  *synchronizer.Synchronizer
	RelationCache *registry.CachedRelations
	Telemetry     *telemetry.Telemetry
	Logger        logger.Logger
}

func New(opts Options) *Service {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNop()
	}
	return &Service{
		bus:       opts.Bus,
		coalescer: opts.Coalescer,
		expander:  opts.Expander,
		sync:      opts.Synchronizer,
		relCache:  opts.RelationCache,
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
	}
}

// Start subscribes to the bus and launches the flush pump and worker pool.
func (s *Service) Start() {
	s.sync.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPump = cancel
	s.pumpDone = make(chan struct{})

	s.unsubscribe = s.bus.Subscribe(s.handleEvent)

	go func() {
		defer close(s.pumpDone)
		s.coalescer.Run(ctx, s.flush)
	}()

	s.logger.Info("Sync service started")
}

// Submit routes a task directly to the synchronizer, bypassing coalescing.
// Used by the rebuilder and dead-letter requeue.
func (s *Service) Submit(task change.Task) error {
	return s.sync.Submit(task)
}

// Stats reports pipeline depth for the status endpoint.
func (s *Service) Stats() (pending, inFlight int) {
	return s.coalescer.Size(), s.sync.InFlight()
}

func (s *Service) handleEvent(ctx context.Context, event change.Event) error {
	if event.Kind.IsRelation() && s.relCache != nil {
		// Membership changed, so the cached fan-out set is stale.
		s.relCache.Invalidate(ctx, event.Identity)
	}
	s.coalescer.Observe(event)
	return nil
}

func (s *Service) flush(ctx context.Context, entries []coalescer.Entry) {
	ctx, span := s.telemetry.StartSpan(ctx, "syncer.flush")
	span.SetAttributes(telemetry.BatchSizeAttribute(len(entries)))
	defer span.End()

	for _, entry := range entries {
		tasks, err := s.expander.Expand(ctx, entry.Identity, entry.Kind)
		switch {
		case errors.Is(err, change.ErrFanoutLimit):
			s.logger.Warn("Fan-out capped during expansion",
				"identity", entry.Identity.String(), "error", err)
		case err != nil:
			// The item's own task is still worth applying; only its
			// fan-out is lost.
			s.logger.Error("Expansion failed",
				"identity", entry.Identity.String(), "error", err)
			span.RecordError(err)
		}

		for _, task := range tasks {
			if err := s.sync.Submit(task); err != nil {
				s.logger.Warn("Dropping task during shutdown", "task", task.String())
				return
			}
		}
	}
}

// Shutdown stops intake, flushes the pending set one final time, and drains
// the synchronizer. In-flight registry writes always run to completion.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	if s.cancelPump != nil {
		s.cancelPump()
		<-s.pumpDone
	}

	if err := s.sync.Shutdown(ctx); err != nil {
		return err
	}

	s.logger.Info("Sync service stopped")
	return nil
}
