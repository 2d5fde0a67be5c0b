// Package merge implements the three-way merge engine: a synchronized
// pre-order walk of a cave's current/staging roots plus zero-or-more
// other participating roots (the shared "HOARD" root and other caves'
// desired roots), producing a new Object ID for every participating
// root under a pluggable MergePreferences policy.
//
// Ported from original_source/lmdb_storage/{three_way_merge,
// merge_trees}.py.
package merge

// ByRoot is a sparse map from root name to a value, used both for the
// original decoded objects at a merge position (ByRoot[object.Object])
// and for the new IDs produced for each root (ByRoot[object.ID]).
// Ported from merge_trees.py's ByRoot; Go's map semantics already give
// us "absent means not assigned" for free, so this is a thin wrapper
// that documents intent and supports MapByRoot.
type ByRoot[V any] map[string]V

// NewByRoot returns an empty ByRoot.
func NewByRoot[V any]() ByRoot[V] { return make(ByRoot[V]) }

// Get returns the value assigned to name, if any.
func (b ByRoot[V]) Get(name string) (V, bool) {
	v, ok := b[name]
	return v, ok
}

// Set assigns value to name.
func (b ByRoot[V]) Set(name string, value V) { b[name] = value }

// Names returns the root names with an assigned value, in no particular
// order.
func (b ByRoot[V]) Names() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	return out
}

// MapByRoot applies f to every assigned value, producing a new ByRoot of
// possibly different value type. Ported from ByRoot.map.
func MapByRoot[V any, R any](b ByRoot[V], f func(V) R) ByRoot[R] {
	out := make(ByRoot[R], len(b))
	for k, v := range b {
		out[k] = f(v)
	}
	return out
}
