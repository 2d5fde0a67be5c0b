/*
Package reconciler drives each cave's content toward the hoard's
desired state.

Pull runs a three-way merge (pkg/merge) between a cave's previous scan
(current), its new scan (staging), and every root's desired view,
resolved by the pull-preference decision table (pkg/prefs) and content
placement rules (pkg/content). The merge's output is committed back
through pkg/roots: each participating root's desired slot advances, and
the pulling cave's staging scan is promoted to current.

PendingOperations reports, without executing it, the plan a local sync
agent needs to bring a cave's current content in line with its desired
content: a fetch for each path present in desired but missing from
current, a delete for the reverse, and an update where both sides hold
different content at the same path. Execution is left to the external
consumer; reconciler only computes the plan.

# Usage

	rec := reconciler.NewReconciler(db, cfg)
	rec.Start(10 * time.Second) // daemon mode
	defer rec.Stop()

	if err := rec.Pull(caveUUID); err != nil { ... } // one-shot, e.g. cmd/hoard pull
	ops, err := rec.PendingOperations(caveUUID)

# Free-space guard

A backup cave's pull first checks projected disk usage (pkg/aggregate)
against its configured CapacityBytes, aborting the pull early when less
than 10% would remain free. This is advisory only: it blocks starting a
new merge but never rolls back assignments a prior pull already
committed.
*/
package reconciler
