package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Object store metrics
	ObjectStoreTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_store_transactions_total",
			Help: "Total number of object store transactions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ObjectStoreTxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hoard_store_transaction_duration_seconds",
			Help:    "Object store transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoard_objects_total",
			Help: "Total number of objects (blobs and trees) in the store",
		},
	)

	// Garbage collection metrics
	GCCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hoard_gc_cycles_total",
			Help: "Total number of garbage collection cycles completed",
		},
	)

	GCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hoard_gc_duration_seconds",
			Help:    "Time taken for a garbage collection cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GCObjectsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hoard_gc_objects_reclaimed_total",
			Help: "Total number of objects reclaimed by garbage collection",
		},
	)

	GCObjectsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoard_gc_objects_live",
			Help: "Number of objects reachable from a live root as of the last GC cycle",
		},
	)

	// Merge/reconciliation metrics
	MergeCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_merge_cycles_total",
			Help: "Total number of three-way merge cycles by cave and outcome",
		},
		[]string{"cave", "outcome"},
	)

	MergeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hoard_merge_duration_seconds",
			Help:    "Time taken for a three-way merge cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cave"},
	)

	MergeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_merge_decisions_total",
			Help: "Total number of pull-preference decisions applied by decision kind",
		},
		[]string{"decision"},
	)

	// Deferred operations queue metrics
	DeferredOpsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_deferred_ops_enqueued_total",
			Help: "Total number of deferred operations enqueued by cave and op kind",
		},
		[]string{"cave", "op"},
	)

	DeferredOpsQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hoard_deferred_ops_queue_depth",
			Help: "Number of pending deferred operations by cave",
		},
		[]string{"cave"},
	)

	DeferredOpsFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hoard_deferred_ops_flush_duration_seconds",
			Help:    "Time taken to flush a cave's deferred operation queue in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler loop metrics
	ReconcilerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hoard_reconciler_cycles_total",
			Help: "Total number of reconciler ticks completed",
		},
	)

	ReconcilerCaveLastPull = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hoard_reconciler_cave_last_pull_timestamp_seconds",
			Help: "Unix timestamp of the last successful pull per cave",
		},
		[]string{"cave"},
	)

	ReconcilerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_reconciler_errors_total",
			Help: "Total number of reconciler errors by cave",
		},
		[]string{"cave"},
	)

	// Aggregate/query metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hoard_query_duration_seconds",
			Help:    "Time taken to compute a tree aggregate by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	HoardUsedSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hoard_used_size_bytes",
			Help: "Disk footprint a cave would occupy holding current and desired content, in bytes",
		},
		[]string{"cave"},
	)
)

func init() {
	prometheus.MustRegister(ObjectStoreTxTotal)
	prometheus.MustRegister(ObjectStoreTxDuration)
	prometheus.MustRegister(ObjectsTotal)

	prometheus.MustRegister(GCCyclesTotal)
	prometheus.MustRegister(GCDuration)
	prometheus.MustRegister(GCObjectsReclaimed)
	prometheus.MustRegister(GCObjectsLive)

	prometheus.MustRegister(MergeCyclesTotal)
	prometheus.MustRegister(MergeDuration)
	prometheus.MustRegister(MergeDecisionsTotal)

	prometheus.MustRegister(DeferredOpsEnqueuedTotal)
	prometheus.MustRegister(DeferredOpsQueueDepth)
	prometheus.MustRegister(DeferredOpsFlushDuration)

	prometheus.MustRegister(ReconcilerCyclesTotal)
	prometheus.MustRegister(ReconcilerCaveLastPull)
	prometheus.MustRegister(ReconcilerErrorsTotal)

	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(HoardUsedSizeBytes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
