package rebuild

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/registry"
	"github.com/indexflow-go/pkg/logger"
)

// Submitter accepts sync tasks. Satisfied by the synchronizer.
type Submitter interface {
	Submit(task change.Task) error
}

// IDSource streams record ids out of the system of record in pages.
// Satisfied by registry.GormSource.
type IDSource interface {
	PageIDs(ctx context.Context, index string, offset, limit int) ([]string, error)
}

// Rebuilder performs full resyncs: every record of an index is re-submitted
// as an upsert, repairing whatever drift the realtime pipeline missed. Can
// run on demand or on a cron schedule.
type Rebuilder struct {
	source    IDSource
	submitter Submitter
	schema    *registry.Schema
	pageSize  int
	logger    logger.Logger
	cron      *cron.Cron
}

func New(source IDSource, submitter Submitter, schema *registry.Schema, log logger.Logger) *Rebuilder {
	return &Rebuilder{
		source:    source,
		submitter: submitter,
		schema:    schema,
		pageSize:  500,
		logger:    log,
	}
}

// Rebuild submits one upsert per stored record of the index and returns how
// many were submitted.
func (r *Rebuilder) Rebuild(ctx context.Context, index string) (int, error) {
	if _, ok := r.schema.Index(index); !ok {
		return 0, fmt.Errorf("unknown index %q", index)
	}

	start := time.Now()
	submitted := 0

	for offset := 0; ; offset += r.pageSize {
		select {
		case <-ctx.Done():
			return submitted, ctx.Err()
		default:
		}

		ids, err := r.source.PageIDs(ctx, index, offset, r.pageSize)
		if err != nil {
			return submitted, fmt.Errorf("rebuild %s: %w", index, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			task := change.Task{
				Identity:  change.Identity{Index: index, RecordID: id},
				Operation: change.OpUpsert,
			}
			if err := r.submitter.Submit(task); err != nil {
				return submitted, fmt.Errorf("rebuild %s: %w", index, err)
			}
			submitted++
		}
	}

	r.logger.Info("Index rebuild submitted",
		"index", index, "records", submitted, "took", time.Since(start).String())
	return submitted, nil
}

// RebuildAll rebuilds every index in the schema.
func (r *Rebuilder) RebuildAll(ctx context.Context) error {
	for _, def := range r.schema.All() {
		if _, err := r.Rebuild(ctx, def.Name); err != nil {
			return err
		}
	}
	return nil
}

// Schedule starts periodic full resyncs on a cron spec. An empty spec
// disables scheduling.
func (r *Rebuilder) Schedule(spec string) error {
	if spec == "" {
		return nil
	}

	r.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.RebuildAll(context.Background()); err != nil {
			r.logger.Error("Scheduled rebuild failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid rebuild schedule %q: %w", spec, err)
	}

	r.cron.Start()
	r.logger.Info("Scheduled index rebuild", "spec", spec)
	return nil
}

// Stop halts the cron scheduler, waiting for a running rebuild to finish.
func (r *Rebuilder) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
