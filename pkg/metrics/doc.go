/*
Package metrics provides Prometheus metrics collection and exposition for hoard.

The metrics package defines and registers all hoard metrics using the
Prometheus client library, providing observability into object store
transaction volume, garbage collection, merge/reconciliation cycles, the
deferred operations queue, and aggregate query latency. Metrics are exposed
via an HTTP endpoint for scraping by Prometheus servers.

# Metric categories

Object store: hoard_store_transactions_total, hoard_store_transaction_duration_seconds,
hoard_objects_total.

Garbage collection: hoard_gc_cycles_total, hoard_gc_duration_seconds,
hoard_gc_objects_reclaimed_total, hoard_gc_objects_live.

Merge: hoard_merge_cycles_total, hoard_merge_duration_seconds,
hoard_merge_decisions_total (broken down by the pull-preference decision
applied, e.g. add_to_hoard, restore_from_hoard).

Deferred operations: hoard_deferred_ops_enqueued_total,
hoard_deferred_ops_queue_depth, hoard_deferred_ops_flush_duration_seconds.

Reconciler: hoard_reconciler_cycles_total, hoard_reconciler_cave_last_pull_timestamp_seconds,
hoard_reconciler_errors_total.

Aggregates: hoard_query_duration_seconds, hoard_used_size_bytes.

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	err := store.WriteTxn(fn)
	timer.ObserveDuration(metrics.GCDuration)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObjectStoreTxTotal.WithLabelValues("write", outcome).Inc()

# Timer

Timer is a small stopwatch helper independent of any specific metric: start
one with NewTimer, then call ObserveDuration/ObserveDurationVec against the
relevant histogram once the operation completes, or read Duration directly
for logging.
*/
package metrics
