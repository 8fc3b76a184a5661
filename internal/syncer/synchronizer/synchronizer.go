package synchronizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/deadletter"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/metrics"
	"github.com/indexflow-go/pkg/resilience"
)

// ErrShuttingDown is returned by Submit once shutdown has begun.
var ErrShuttingDown = errors.New("synchronizer is shutting down")

// Applier executes a single task against the search registry. Satisfied by
// registry.Applier.
type Applier interface {
	Apply(ctx context.Context, task change.Task) error
}

type Config struct {
	WorkerPoolSize   int
	MaxRetryAttempts int
	BackoffBase      time.Duration
}

// Synchronizer applies sync tasks through a fixed worker pool with at most
// one in-flight operation per identity. A submission for an identity that is
// already queued or in flight is parked and merged (Delete dominates Upsert);
// when the current operation completes, exactly one follow-up with the merged
// operation runs. Transient failures retry with exponential backoff; exhausted
// or permanent failures go to the dead-letter sink.
type Synchronizer struct {
	cfg     Config
	applier Applier
	dead    deadletter.Sink
	logger  logger.Logger

	queue chan change.Task

	mu       sync.Mutex
	inflight map[change.Identity]*entry
	draining bool

	submitWG sync.WaitGroup // Submits past the draining check
	workerWG sync.WaitGroup
}

// entry tracks one identity from submission to completion. parked holds the
// merged operation of submissions that arrived while the identity was busy.
type entry struct {
	parked *change.Operation
}

func New(cfg Config, applier Applier, dead deadletter.Sink, log logger.Logger) *Synchronizer {
	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = 1
	}
	if cfg.MaxRetryAttempts < 1 {
		cfg.MaxRetryAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 100 * time.Millisecond
	}

	return &Synchronizer{
		cfg:      cfg,
		applier:  applier,
		dead:     dead,
		logger:   log,
		queue:    make(chan change.Task, cfg.WorkerPoolSize*4),
		inflight: make(map[change.Identity]*entry),
	}
}

// Start launches the worker pool.
func (s *Synchronizer) Start() {
	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}
	s.logger.Info("Synchronizer started", "workers", s.cfg.WorkerPoolSize)
}

// Submit enqueues a task. For an identity already queued or in flight the
// operation is merged into the parked slot instead of enqueueing a duplicate,
// which both serializes writes per identity and preserves per-identity order
// across flush cycles.
func (s *Synchronizer) Submit(task change.Task) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrShuttingDown
	}

	if e, ok := s.inflight[task.Identity]; ok {
		if e.parked == nil {
			op := task.Operation
			e.parked = &op
		} else {
			merged := change.MergeOps(*e.parked, task.Operation)
			e.parked = &merged
		}
		s.mu.Unlock()
		return nil
	}

	s.inflight[task.Identity] = &entry{}
	metrics.InFlightTasks.Set(float64(len(s.inflight)))
	s.submitWG.Add(1)
	s.mu.Unlock()

	s.queue <- task
	metrics.QueueDepth.Set(float64(len(s.queue)))
	s.submitWG.Done()
	return nil
}

// InFlight returns the number of identities queued or being written.
func (s *Synchronizer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Shutdown rejects new submissions, lets workers drain the queue and finish
// in-flight writes, and returns once everything has stopped or ctx expires.
// No write is aborted midway.
func (s *Synchronizer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	s.submitWG.Wait()
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Synchronizer drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timeout waiting for synchronizer to drain")
		return ctx.Err()
	}
}

func (s *Synchronizer) worker() {
	defer s.workerWG.Done()

	for task := range s.queue {
		metrics.QueueDepth.Set(float64(len(s.queue)))
		s.process(task)
	}
}

// process runs the task, then any operation parked for the same identity
// while it was busy, before releasing the in-flight marker. A failure here
// dead-letters this identity only; sibling tasks are unaffected.
func (s *Synchronizer) process(task change.Task) {
	op := task.Operation
	for {
		s.execute(change.Task{Identity: task.Identity, Operation: op})

		s.mu.Lock()
		e := s.inflight[task.Identity]
		if e != nil && e.parked != nil {
			op = *e.parked
			e.parked = nil
			s.mu.Unlock()
			continue
		}
		delete(s.inflight, task.Identity)
		metrics.InFlightTasks.Set(float64(len(s.inflight)))
		s.mu.Unlock()
		return
	}
}

func (s *Synchronizer) execute(task change.Task) {
	started := time.Now()

	retryCfg := resilience.RetryConfig{
		MaxAttempts:       s.cfg.MaxRetryAttempts,
		InitialDelay:      s.cfg.BackoffBase,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		ShouldRetry:       change.IsTransient,
		OnRetry: func(attempt int, err error) {
			metrics.TaskRetries.Inc()
			s.logger.Warn("Retrying registry operation",
				"identity", task.Identity.String(),
				"operation", task.Operation,
				"attempt", attempt,
				"error", err,
			)
		},
	}

	ctx := context.Background()
	attempts, err := resilience.Retry(ctx, retryCfg, func() error {
		callStart := time.Now()
		callErr := s.applier.Apply(ctx, task)
		metrics.RegistryCallDuration.WithLabelValues(string(task.Operation)).
			Observe(time.Since(callStart).Seconds())
		return callErr
	})

	if err == nil {
		metrics.TasksTotal.WithLabelValues(string(task.Operation), "succeeded").Inc()
		s.logger.Debug("Task synced",
			"identity", task.Identity.String(),
			"operation", task.Operation,
			"attempts", attempts,
		)
		return
	}

	metrics.TasksTotal.WithLabelValues(string(task.Operation), "dead_lettered").Inc()
	s.dead.OnDeadLetter(ctx, deadletter.Letter{
		Task:          task,
		Attempts:      attempts,
		LastError:     err.Error(),
		FirstFailedAt: started.UTC(),
	})
}
