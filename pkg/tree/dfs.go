// Package tree implements the tree primitives operating over the
// content-addressed object model: pre-order DFS, pairwise and N-way
// zip-diff, subtree grafting, and single-pass construction from sorted
// path/blob pairs.
//
// Ported from original_source/lmdb_storage/{tree_diff,tree_iteration}.py.
// Throughout this package object.ZeroID stands for "no tree here", the
// same convention pkg/roots uses for an unset root slot, avoided here in
// pointer form because recursion would otherwise thread *object.ID
// through every frame for no benefit.
package tree

import (
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// VisitFn is called once per node in pre-order. Calling skip on a tree
// node prunes descent into its children; calling it on a blob has no
// effect since blobs have no children.
type VisitFn func(path hoardpath.Path, id object.ID, obj object.Object, skip func()) error

// DFS walks root in pre-order, rooted at the empty relative path. A zero
// root yields nothing.
func DFS(tx *store.ReadTx, root object.ID, visit VisitFn) error {
	if root.IsZero() {
		return nil
	}
	return dfsRec(tx, hoardpath.Empty, root, visit)
}

func dfsRec(tx *store.ReadTx, path hoardpath.Path, id object.ID, visit VisitFn) error {
	obj, err := tx.Get(id)
	if err != nil {
		return err
	}

	skipped := false
	if err := visit(path, id, obj, func() { skipped = true }); err != nil {
		return err
	}
	if skipped {
		return nil
	}

	t, ok := obj.(object.Tree)
	if !ok {
		return nil
	}
	for _, child := range t.Children() {
		childPath, err := path.JoinPath(hoardpath.New(child.Name))
		if err != nil {
			return err
		}
		if err := dfsRec(tx, childPath, child.ID, visit); err != nil {
			return err
		}
	}
	return nil
}
