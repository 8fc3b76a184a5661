package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, registered on the default registry and served by the
// admin server's /metrics endpoint.
var (
	EventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexflow_events_observed_total",
			Help: "Change events received from the notification bus",
		},
		[]string{"kind"},
	)

	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexflow_flushes_total",
			Help: "Coalescer flush cycles by trigger (interval, threshold, shutdown)",
		},
		[]string{"trigger"},
	)

	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexflow_flush_batch_size",
			Help:    "Identities emitted per coalescer flush",
			Buckets: []float64{1, 4, 16, 64, 256, 1024},
		},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexflow_tasks_total",
			Help: "Sync tasks by operation and terminal status",
		},
		[]string{"operation", "status"},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexflow_task_retries_total",
			Help: "Registry operations retried after a transient failure",
		},
	)

	DeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexflow_dead_letters_total",
			Help: "Tasks moved to the dead-letter sink",
		},
	)

	InFlightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexflow_inflight_tasks",
			Help: "Identities currently being written to the registry",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexflow_queue_depth",
			Help: "Tasks waiting for a synchronizer worker",
		},
	)

	RegistryCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexflow_registry_call_duration_seconds",
			Help:    "Latency of registry upsert/delete calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	FanoutDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexflow_fanout_dropped_total",
			Help: "Related identities dropped by the fan-out depth cap",
		},
	)
)
