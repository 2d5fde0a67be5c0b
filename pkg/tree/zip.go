package tree

import (
	"sort"

	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// DiffType classifies one step of a zip_dfs walk.
type DiffType int

const (
	Same DiffType = iota
	Different
	LeftMissing
	RightMissing
)

func (d DiffType) String() string {
	switch d {
	case Same:
		return "same"
	case Different:
		return "different"
	case LeftMissing:
		return "left_missing"
	case RightMissing:
		return "right_missing"
	default:
		return "unknown"
	}
}

// ZipVisitFn is called once per step of a synchronized two-root DFS.
type ZipVisitFn func(path hoardpath.Path, diff DiffType, left, right object.ID, skip func()) error

// ZipDFS synchronizes a pre-order DFS over left and right. When
// drilldownSame is false, equal IDs (including both zero) are reported
// once as Same and not descended; when true, tree nodes that are equal
// are still walked (their own children will also report Same). A tree
// present on one side only is reported as LeftMissing or RightMissing and
// its children are walked and reported the same way. Ported
// from tree_diff.py's zip_dfs, with the left/right-missing labeling
// corrected to match which side actually lacks the node.
func ZipDFS(tx *store.ReadTx, left, right object.ID, drilldownSame bool, visit ZipVisitFn) error {
	return zipDFSRec(tx, hoardpath.Empty, left, right, drilldownSame, visit)
}

func zipDFSRec(tx *store.ReadTx, path hoardpath.Path, left, right object.ID, drilldownSame bool, visit ZipVisitFn) error {
	if left == right {
		skipped := false
		if err := visit(path, Same, left, right, func() { skipped = true }); err != nil {
			return err
		}
		if !drilldownSame || skipped || left.IsZero() {
			return nil
		}
		obj, err := tx.Get(left)
		if err != nil {
			return err
		}
		t, ok := obj.(object.Tree)
		if !ok {
			return nil
		}
		for _, c := range t.Children() {
			childPath, err := path.JoinPath(hoardpath.New(c.Name))
			if err != nil {
				return err
			}
			if err := zipDFSRec(tx, childPath, c.ID, c.ID, drilldownSame, visit); err != nil {
				return err
			}
		}
		return nil
	}

	// A missing side walks as an empty tree, so a subtree present on one
	// side only is still descended.
	diff := Different
	var leftObj, rightObj object.Object = object.Tree{}, object.Tree{}
	var err error
	if left.IsZero() {
		diff = LeftMissing
	} else if leftObj, err = tx.Get(left); err != nil {
		return err
	}
	if right.IsZero() {
		diff = RightMissing
	} else if rightObj, err = tx.Get(right); err != nil {
		return err
	}
	leftTree, leftIsTree := leftObj.(object.Tree)
	rightTree, rightIsTree := rightObj.(object.Tree)
	if !leftIsTree || !rightIsTree {
		return visit(path, diff, left, right, func() {})
	}

	skipped := false
	if err := visit(path, diff, left, right, func() { skipped = true }); err != nil {
		return err
	}
	if skipped {
		return nil
	}

	for _, name := range unionChildNames(leftTree, rightTree) {
		childPath, err := path.JoinPath(hoardpath.New(name))
		if err != nil {
			return err
		}
		leftChild, _ := leftTree.Get(name)
		rightChild, _ := rightTree.Get(name)
		if err := zipDFSRec(tx, childPath, leftChild, rightChild, drilldownSame, visit); err != nil {
			return err
		}
	}
	return nil
}

func unionChildNames(trees ...object.Tree) []string {
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

// NWayVisitFn is called once per step of an N-root synchronized DFS. ids
// holds one entry per root, in the caller's original order; object.ZeroID
// marks a root absent at this path.
type NWayVisitFn func(path hoardpath.Path, ids []object.ID, skip func()) error

// ZipTreesDFS generalizes ZipDFS to N roots. Descent past a node happens
// only if at least one of the ids at that node is a tree.
func ZipTreesDFS(tx *store.ReadTx, roots []object.ID, visit NWayVisitFn) error {
	ids := make([]object.ID, len(roots))
	copy(ids, roots)
	return zipTreesRec(tx, hoardpath.Empty, ids, visit)
}

func zipTreesRec(tx *store.ReadTx, path hoardpath.Path, ids []object.ID, visit NWayVisitFn) error {
	skipped := false
	if err := visit(path, ids, func() { skipped = true }); err != nil {
		return err
	}
	if skipped {
		return nil
	}

	trees := make([]object.Tree, len(ids))
	present := make([]bool, len(ids))
	anyTree := false
	for i, id := range ids {
		if id.IsZero() {
			continue
		}
		obj, err := tx.Get(id)
		if err != nil {
			return err
		}
		if t, ok := obj.(object.Tree); ok {
			trees[i] = t
			present[i] = true
			anyTree = true
		}
	}
	if !anyTree {
		return nil
	}

	presentTrees := make([]object.Tree, 0, len(trees))
	for i, ok := range present {
		if ok {
			presentTrees = append(presentTrees, trees[i])
		}
	}
	names := unionChildNames(presentTrees...)

	for _, name := range names {
		childIDs := make([]object.ID, len(ids))
		for i := range ids {
			if present[i] {
				if cid, ok := trees[i].Get(name); ok {
					childIDs[i] = cid
				}
			}
		}
		childPath, err := path.JoinPath(hoardpath.New(name))
		if err != nil {
			return err
		}
		if err := zipTreesRec(tx, childPath, childIDs, visit); err != nil {
			return err
		}
	}
	return nil
}
