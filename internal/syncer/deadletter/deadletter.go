package deadletter

import (
	"context"
	"time"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/metrics"
)

// Letter is a task removed from the retry pipeline, carrying enough context
// for external remediation. Nothing is ever silently dropped: every letter
// passes through at least the logging sink.
type Letter struct {
	Task          change.Task `json:"task"`
	Attempts      int         `json:"attempts"`
	LastError     string      `json:"lastError"`
	FirstFailedAt time.Time   `json:"firstFailedAt"`
}

// Sink receives dead letters for alerting or reprocessing.
type Sink interface {
	OnDeadLetter(ctx context.Context, letter Letter)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, letter Letter)

func (f SinkFunc) OnDeadLetter(ctx context.Context, letter Letter) { f(ctx, letter) }

// Fanout delivers each letter to every sink in order.
type Fanout []Sink

func (f Fanout) OnDeadLetter(ctx context.Context, letter Letter) {
	for _, sink := range f {
		sink.OnDeadLetter(ctx, letter)
	}
}

// LogSink records every dead letter in the service log and the dead-letter
// counter. Always wired first.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) OnDeadLetter(ctx context.Context, letter Letter) {
	metrics.DeadLetters.Inc()
	s.logger.Error("Task dead-lettered",
		"identity", letter.Task.Identity.String(),
		"operation", letter.Task.Operation,
		"attempts", letter.Attempts,
		"lastError", letter.LastError,
	)
}
