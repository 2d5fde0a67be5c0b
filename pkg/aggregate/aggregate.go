// Package aggregate implements generic post-order folds over the
// object tree, memoized by Object ID, and the concrete statistics built
// on top of that fold.
//
// Ported from original_source/lmdb_storage/tree_calculation.py's
// RecursiveCalculator/CachedCalculator and
// contents/recursive_stats_calc.py's UsedSizeCalculator/
// QueryStatsCalculator/SizeCountPresenceStatsCalculator.
package aggregate

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/madcowbg/hoard/pkg/content"
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
	"github.com/madcowbg/hoard/pkg/tree"
)

// AtomFn computes a leaf result from a blob.
type AtomFn[R any] func(obj object.Blob) R

// AggregateFn folds a tree node's already-computed child results into
// its own result.
type AggregateFn[R any] func(children []NamedResult[R]) R

// NamedResult pairs a child's name with its folded value, the unit
// AggregateFn consumes.
type NamedResult[R any] struct {
	Name  string
	Value R
}

// Calculator is a generic post-order fold over one tree rooted at an
// Object ID, memoizing every computed node by ID in a bounded LRU
// cache — an intentional bound on memory relative to the Python's
// unbounded dict cache; the fold is pure, so a cache miss just
// recomputes. Ported from RecursiveCalculator/CachedCalculator.
type Calculator[R any] struct {
	tx        *store.ReadTx
	atom      AtomFn[R]
	aggregate AggregateFn[R]
	forNone   func() R
	cache     *lru.Cache[object.ID, R]
}

// NewCalculator builds a Calculator. cacheSize bounds the memoization
// cache; a non-positive value picks a sane default.
func NewCalculator[R any](tx *store.ReadTx, atom AtomFn[R], aggregate AggregateFn[R], forNone func() R, cacheSize int) (*Calculator[R], error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[object.ID, R](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Calculator[R]{tx: tx, atom: atom, aggregate: aggregate, forNone: forNone, cache: cache}, nil
}

// Calculate folds id's subtree into R, a zero ID yielding forNone().
func (c *Calculator[R]) Calculate(id object.ID) (R, error) {
	if id.IsZero() {
		return c.forNone(), nil
	}
	if v, ok := c.cache.Get(id); ok {
		return v, nil
	}

	obj, err := c.tx.Get(id)
	if err != nil {
		var zero R
		return zero, err
	}

	var result R
	switch o := obj.(type) {
	case object.Blob:
		result = c.atom(o)
	case object.Tree:
		children := o.Children()
		named := make([]NamedResult[R], len(children))
		for i, child := range children {
			v, err := c.Calculate(child.ID)
			if err != nil {
				var zero R
				return zero, err
			}
			named[i] = NamedResult[R]{Name: child.Name, Value: v}
		}
		result = c.aggregate(named)
	}

	c.cache.Add(id, result)
	return result, nil
}

// TotalSize sums the blob sizes reachable from root, counting a blob
// once for every path at which it appears.
// Ported from RecursiveSumCalculator's typical instantiation.
func TotalSize(tx *store.ReadTx, root object.ID, cacheSize int) (int64, error) {
	calc, err := NewCalculator[int64](tx,
		func(b object.Blob) int64 { return b.Size },
		func(children []NamedResult[int64]) int64 {
			var sum int64
			for _, c := range children {
				sum += c.Value
			}
			return sum
		},
		func() int64 { return 0 },
		cacheSize)
	if err != nil {
		return 0, err
	}
	return calc.Calculate(root)
}

// UsedSize sums, over the union of paths present under current and
// desired, the larger of the two sides' blob size at that path — the
// disk footprint a cave would occupy if it held both its current and
// desired content. Ported from recursive_stats_calc.py's
// UsedSizeCalculator/get_used_size, adapted from the original's
// general multi-root composite reader to the common current/desired
// pair.
func UsedSize(tx *store.ReadTx, current, desired object.ID) (int64, error) {
	var total int64
	err := tree.ZipDFS(tx, current, desired, true, func(path hoardpath.Path, diff tree.DiffType, left, right object.ID, skip func()) error {
		leftBlob, leftIsBlob, err := blobAt(tx, left)
		if err != nil {
			return err
		}
		rightBlob, rightIsBlob, err := blobAt(tx, right)
		if err != nil {
			return err
		}
		if !leftIsBlob && !rightIsBlob {
			return nil
		}
		size := int64(0)
		if leftIsBlob && leftBlob.Size > size {
			size = leftBlob.Size
		}
		if rightIsBlob && rightBlob.Size > size {
			size = rightBlob.Size
		}
		total += size
		return nil
	})
	return total, err
}

func blobAt(tx *store.ReadTx, id object.ID) (object.Blob, bool, error) {
	if id.IsZero() {
		return object.Blob{}, false, nil
	}
	obj, err := tx.Get(id)
	if err != nil {
		return object.Blob{}, false, err
	}
	b, ok := obj.(object.Blob)
	return b, ok, nil
}

// FileStats is a blob leaf's aggregated presence summary.
type FileStats struct {
	IsDeleted  bool
	NumSources int
	UsedSize   int64
}

// FolderStats is a tree node's aggregated presence summary.
type FolderStats struct {
	CountNonDeleted int
}

// QueryStats is either a FileStats (leaf) or FolderStats (tree node).
type QueryStats interface{}

// PresenceFn reports, for one blob, the per-cave status known about it
// (e.g. from a deferred-op or cave-scan index); nil or empty means the
// blob is not tracked as present anywhere.
type PresenceFn func(id object.ID) map[string]content.FileStatus

// ComputeQueryStats folds root into a QueryStats tree, classifying a
// blob as deleted when no cave reports it beyond cleanup, and counting
// its present sources. Ported from recursive_stats_calc.py's
// calc_query_stats/QueryStatsCalculator.
func ComputeQueryStats(tx *store.ReadTx, root object.ID, presence PresenceFn, cacheSize int) (QueryStats, error) {
	atom := func(b object.Blob) QueryStats {
		statuses := presence(b.ID())
		numSources := 0
		anyLive := false
		for _, s := range statuses {
			if s == content.StatusAvailable {
				numSources++
			}
			if s != content.StatusCleanup {
				anyLive = true
			}
		}
		return FileStats{IsDeleted: !anyLive, NumSources: numSources, UsedSize: b.Size}
	}
	aggregate := func(children []NamedResult[QueryStats]) QueryStats {
		count := 0
		for _, c := range children {
			switch v := c.Value.(type) {
			case FileStats:
				if !v.IsDeleted {
					count++
				}
			case FolderStats:
				count += v.CountNonDeleted
			}
		}
		return FolderStats{CountNonDeleted: count}
	}
	forNone := func() QueryStats { return FolderStats{CountNonDeleted: 0} }

	calc, err := NewCalculator[QueryStats](tx, atom, aggregate, forNone, cacheSize)
	if err != nil {
		return nil, err
	}
	return calc.Calculate(root)
}

// SizeCount is a (file count, total size) pair, aggregated additively.
type SizeCount struct {
	NFiles int
	Size   int64
}

func (s SizeCount) Add(other SizeCount) SizeCount {
	return SizeCount{NFiles: s.NFiles + other.NFiles, Size: s.Size + other.Size}
}

// PerRemoteStats is one cave's total and per-status size/count breakdown.
type PerRemoteStats struct {
	Total    SizeCount
	Presence map[content.FileStatus]SizeCount
}

func (s *PerRemoteStats) add(other PerRemoteStats) {
	s.Total = s.Total.Add(other.Total)
	if s.Presence == nil {
		s.Presence = make(map[content.FileStatus]SizeCount)
	}
	for status, sc := range other.Presence {
		s.Presence[status] = s.Presence[status].Add(sc)
	}
}

// SizeCountPresenceStats aggregates SizeCount totals per cave UUID.
// Ported from recursive_stats_calc.py's SizeCountPresenceStats.
type SizeCountPresenceStats struct {
	PerRemote map[string]PerRemoteStats
}

func newSizeCountPresenceStats() SizeCountPresenceStats {
	return SizeCountPresenceStats{PerRemote: make(map[string]PerRemoteStats)}
}

func (s *SizeCountPresenceStats) add(other SizeCountPresenceStats) {
	for uuid, stat := range other.PerRemote {
		cur := s.PerRemote[uuid]
		cur.add(stat)
		s.PerRemote[uuid] = cur
	}
}

// ComputeSizeCountPresenceStats folds root into per-cave size/count
// totals, using presence to learn which caves carry each blob and in
// what status. Ported from calc_size_count_stats/
// SizeCountPresenceStatsCalculator.
func ComputeSizeCountPresenceStats(tx *store.ReadTx, root object.ID, presence PresenceFn, cacheSize int) (SizeCountPresenceStats, error) {
	atom := func(b object.Blob) SizeCountPresenceStats {
		result := newSizeCountPresenceStats()
		for uuid, status := range presence(b.ID()) {
			result.PerRemote[uuid] = PerRemoteStats{
				Total:    SizeCount{NFiles: 1, Size: b.Size},
				Presence: map[content.FileStatus]SizeCount{status: {NFiles: 1, Size: b.Size}},
			}
		}
		return result
	}
	aggregate := func(children []NamedResult[SizeCountPresenceStats]) SizeCountPresenceStats {
		result := newSizeCountPresenceStats()
		for _, c := range children {
			result.add(c.Value)
		}
		return result
	}
	forNone := func() SizeCountPresenceStats { return newSizeCountPresenceStats() }

	calc, err := NewCalculator[SizeCountPresenceStats](tx, atom, aggregate, forNone, cacheSize)
	if err != nil {
		return SizeCountPresenceStats{}, err
	}
	return calc.Calculate(root)
}
