package database

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexflow_db_connections_in_use",
		Help: "Open connections currently executing queries.",
	})
	connsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexflow_db_connections_idle",
		Help: "Open connections sitting idle in the pool.",
	})
	connsWaited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexflow_db_connection_waits_total",
		Help: "Times a caller had to wait for a free connection.",
	})
)

// ReportPoolStats samples the connection pool every interval and exports the
// numbers as Prometheus gauges. Fan-out expansion and rebuilds lean hard on
// the read pool, so pool exhaustion shows up here before it shows up as
// latency. Blocks until ctx is cancelled.
func (d *DB) ReportPoolStats(ctx context.Context, interval time.Duration) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return
	}

	var lastWaits int64
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			connsInUse.Set(float64(stats.InUse))
			connsIdle.Set(float64(stats.Idle))
			if delta := stats.WaitCount - lastWaits; delta > 0 {
				connsWaited.Add(float64(delta))
			}
			lastWaits = stats.WaitCount
		}
	}
}
