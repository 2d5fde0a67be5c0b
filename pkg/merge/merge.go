package merge

import (
	"sort"

	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// MergePreferences delegates the four file-level merge cases to policy.
// Exactly these four methods, per the merge contract: every file-level
// position in the walk is one of combine_both_existing, combine_base_only,
// combine_staging_only, or merge_missing. Ported from three_way_merge.py's
// MergePreferences.
type MergePreferences interface {
	// CombineBothExisting handles a path present in both staging and
	// base, with differing content.
	CombineBothExisting(path []string, original ByRoot[object.Object], stagingName, baseName string, stagingBlob, baseBlob object.Blob) (ByRoot[object.ID], error)

	// CombineBaseOnly handles a path deleted in staging but present in base.
	CombineBaseOnly(path []string, original ByRoot[object.Object], stagingName, baseName string, baseBlob object.Blob) (ByRoot[object.ID], error)

	// CombineStagingOnly handles a path newly added in staging.
	CombineStagingOnly(path []string, original ByRoot[object.Object], stagingName, baseName string, stagingBlob object.Blob) (ByRoot[object.ID], error)

	// MergeMissing handles a path present in neither staging nor base,
	// only in one of the other participating roots.
	MergeMissing(path []string, original ByRoot[object.Object], stagingName, baseName string) (ByRoot[object.ID], error)
}

// ThreewayMerge runs the merge walk over a transaction. CurrentName and
// StagingName identify which two of the participating roots are the
// base and staging inputs; Others lists the remaining participating
// root names (typically "HOARD" plus other caves' desired roots).
type ThreewayMerge struct {
	Tx          *store.WriteTx
	CurrentName string
	StagingName string
	Others      []string
	Prefs       MergePreferences
}

// Run executes the merge starting from initial, a ByRoot[object.ID]
// giving every participating root's current top-level ID (zero ID for
// an absent root). It returns the new ID to assign to each
// participating root's desired slot. Ported from Merge.merge_trees.
func (m *ThreewayMerge) Run(initial ByRoot[object.ID]) (ByRoot[object.ID], error) {
	return m.recurse(nil, initial)
}

func (m *ThreewayMerge) recurse(path []string, ids ByRoot[object.ID]) (ByRoot[object.ID], error) {
	original := make(ByRoot[object.Object], len(ids))
	trees := make(ByRoot[object.Tree])
	blobs := make(ByRoot[object.Blob])

	for name, id := range ids {
		if id.IsZero() {
			continue
		}
		obj, err := m.Tx.Get(id)
		if err != nil {
			return nil, err
		}
		original[name] = obj
		switch v := obj.(type) {
		case object.Tree:
			trees[name] = v
		case object.Blob:
			blobs[name] = v
		}
	}

	baseID, baseOK := ids.Get(m.CurrentName)
	stagingID, stagingOK := ids.Get(m.StagingName)
	idsEqual := baseOK == stagingOK && (!baseOK || baseID == stagingID)

	if len(trees) > 0 && !idsEqual {
		return m.drilldown(path, ids, trees)
	}
	return m.combineNonDrilldown(path, original, blobs, ids, idsEqual)
}

func (m *ThreewayMerge) drilldown(path []string, ids ByRoot[object.ID], trees ByRoot[object.Tree]) (ByRoot[object.ID], error) {
	names := unionChildNames(trees)

	builder := newResultBuilder()
	for _, childName := range names {
		childIDs := make(ByRoot[object.ID])
		for name, t := range trees {
			if id, ok := t.Get(childName); ok {
				childIDs.Set(name, id)
			}
		}
		merged, err := m.recurse(append(append([]string{}, path...), childName), childIDs)
		if err != nil {
			return nil, err
		}
		builder.addForChild(childName, merged)
	}
	return builder.materialize(m.Tx)
}

func (m *ThreewayMerge) combineNonDrilldown(path []string, original ByRoot[object.Object], blobs ByRoot[object.Blob], ids ByRoot[object.ID], idsEqual bool) (ByRoot[object.ID], error) {
	if idsEqual {
		out := make(ByRoot[object.ID], len(ids))
		for name, id := range ids {
			out[name] = id
		}
		return out, nil
	}

	stagingBlob, stagingOK := blobs.Get(m.StagingName)
	baseBlob, baseOK := blobs.Get(m.CurrentName)

	switch {
	case stagingOK && baseOK:
		return m.Prefs.CombineBothExisting(path, original, m.StagingName, m.CurrentName, stagingBlob, baseBlob)
	case baseOK:
		return m.Prefs.CombineBaseOnly(path, original, m.StagingName, m.CurrentName, baseBlob)
	case stagingOK:
		return m.Prefs.CombineStagingOnly(path, original, m.StagingName, m.CurrentName, stagingBlob)
	default:
		return m.Prefs.MergeMissing(path, original, m.StagingName, m.CurrentName)
	}
}

func unionChildNames(trees ByRoot[object.Tree]) []string {
	seen := make(map[string]struct{})
	for _, t := range trees {
		for _, c := range t.Children() {
			seen[c.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resultBuilder accumulates, per root name, the child-name → child-ID map
// that will become that root's new subtree at this path. Ported from
// merge_trees.py's SeparateRootsMergeResult.
type resultBuilder struct {
	childrenByRoot map[string][]object.Child
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{childrenByRoot: make(map[string][]object.Child)}
}

func (b *resultBuilder) addForChild(childName string, merged ByRoot[object.ID]) {
	for rootName, id := range merged {
		b.childrenByRoot[rootName] = append(b.childrenByRoot[rootName], object.Child{Name: childName, ID: id})
	}
}

func (b *resultBuilder) materialize(tx *store.WriteTx) (ByRoot[object.ID], error) {
	out := make(ByRoot[object.ID], len(b.childrenByRoot))
	for rootName, children := range b.childrenByRoot {
		if len(children) == 0 {
			continue // empty trees are elided
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
		id, err := tx.Put(object.FromSortedChildren(children))
		if err != nil {
			return nil, err
		}
		out[rootName] = id
	}
	return out, nil
}
