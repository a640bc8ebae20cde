// Package metrics exposes the prometheus collectors for the server
// process, grounded on MOHCentral-opm-stats-api/internal/worker/pool.go's
// promauto metrics block (package-level counters/gauges/histograms
// registered once at import time) and its reportQueueDepth ticker idiom.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the Resolution Queue's pending-job count, §4.G.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "p2picks_queue_depth",
		Help: "Current number of jobs pending in the resolution queue.",
	})

	// QueueJobsProcessed counts completed jobs by type and outcome.
	QueueJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2picks_queue_jobs_processed_total",
		Help: "Total resolution-queue jobs processed, by job type and outcome.",
	}, []string{"type", "outcome"})

	// QueueJobDeadLettered counts jobs that exhausted retries.
	QueueJobDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2picks_queue_jobs_dead_lettered_total",
		Help: "Total resolution-queue jobs moved to the dead-letter set, by job type.",
	}, []string{"type"})

	// BreakerState reports the live-data circuit breaker's state per
	// league: 0 closed, 1 open, 2 half-open, mirroring livedata.BreakerState.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "p2picks_livedata_breaker_state",
		Help: "Live-data ingest circuit breaker state by league (0=closed, 1=open, 2=half-open).",
	}, []string{"league"})

	// IngestTickDuration measures one ingest loop tick across all leagues.
	IngestTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "p2picks_livedata_ingest_tick_duration_seconds",
		Help:    "Duration of a single live-data ingest tick.",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequestsTotal counts HTTP requests by route, method, and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2picks_http_requests_total",
		Help: "Total HTTP requests handled, by route, method, and status code.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration measures handler latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "p2picks_http_request_duration_seconds",
		Help:    "HTTP handler latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// DepthSource reports a current queue depth, satisfied by *queue.Queue.
type DepthSource interface {
	Depth(ctx context.Context) (int64, error)
}

// BreakerSource reports a league's circuit breaker state as an int,
// satisfied by a small adapter over *livedata.Ingest.
type BreakerSource interface {
	BreakerStateValue(league string) int
}

// ReportQueueDepth polls depth on an interval and updates the QueueDepth
// gauge, the pull-based analogue of pool.go's reportQueueDepth goroutine
// (there, len() on an in-process channel; here, a Redis LLEN round trip).
func ReportQueueDepth(ctx context.Context, source DepthSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := source.Depth(ctx); err == nil {
				QueueDepth.Set(float64(n))
			}
		}
	}
}

// ReportBreakerState polls each league's breaker state on an interval and
// updates the BreakerState gauge vector.
func ReportBreakerState(ctx context.Context, source BreakerSource, leagues []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, league := range leagues {
				BreakerState.WithLabelValues(league).Set(float64(source.BreakerStateValue(league)))
			}
		}
	}
}
