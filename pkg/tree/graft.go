package tree

import (
	"sort"

	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// GraftInTree replaces the subtree at path inside oldRoot with the
// subtree at the same path inside donorRoot, and returns the new root
// ID. If donorRoot has no node at path, the subtree is removed from
// oldRoot instead. Intermediate nodes on the path are cloned; unaffected
// siblings are structurally shared. Empty trees are elided: a directory
// left with no children after the graft disappears from its parent.
func GraftInTree(tx *store.WriteTx, oldRoot object.ID, path []string, donorRoot object.ID) (object.ID, error) {
	donorSubtree, err := resolveSubtree(tx, donorRoot, path)
	if err != nil {
		return object.ID{}, err
	}

	if len(path) == 0 {
		return donorSubtree, nil
	}
	return setAtPath(tx, oldRoot, path, donorSubtree)
}

// RemoveChild removes the node at path from root, eliding any directory
// left empty by the removal. Equivalent to grafting a zero (absent)
// subtree at path.
func RemoveChild(tx *store.WriteTx, root object.ID, path []string) (object.ID, error) {
	if len(path) == 0 {
		return object.ID{}, nil
	}
	return setAtPath(tx, root, path, object.ID{})
}

// resolveSubtree walks root down path and returns the ID found there, or
// object.ID{} (zero) if any component along the way is absent.
func resolveSubtree(tx *store.ReadTx, root object.ID, path []string) (object.ID, error) {
	current := root
	for _, name := range path {
		if current.IsZero() {
			return object.ID{}, nil
		}
		obj, err := tx.Get(current)
		if err != nil {
			return object.ID{}, err
		}
		t, ok := obj.(object.Tree)
		if !ok {
			return object.ID{}, nil
		}
		child, found := t.Get(name)
		if !found {
			return object.ID{}, nil
		}
		current = child
	}
	return current, nil
}

// setAtPath returns a new root with the node at path set to newChild
// (or removed, if newChild is the zero ID), rebuilding only the tree
// nodes along path.
func setAtPath(tx *store.WriteTx, root object.ID, path []string, newChild object.ID) (object.ID, error) {
	name := path[0]
	rest := path[1:]

	var children []object.Child
	if !root.IsZero() {
		obj, err := tx.Get(root)
		if err != nil {
			return object.ID{}, err
		}
		if t, ok := obj.(object.Tree); ok {
			children = t.Children()
		}
	}

	var existingChild object.ID
	existingIdx := -1
	for i, c := range children {
		if c.Name == name {
			existingChild = c.ID
			existingIdx = i
			break
		}
	}

	var replacement object.ID
	if len(rest) == 0 {
		replacement = newChild
	} else {
		var err error
		replacement, err = setAtPath(tx, existingChild, rest, newChild)
		if err != nil {
			return object.ID{}, err
		}
	}

	rebuilt := make([]object.Child, 0, len(children)+1)
	for i, c := range children {
		if i == existingIdx {
			continue
		}
		rebuilt = append(rebuilt, c)
	}
	if !replacement.IsZero() {
		rebuilt = append(rebuilt, object.Child{Name: name, ID: replacement})
	}

	if len(rebuilt) == 0 {
		return object.ID{}, nil
	}

	sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i].Name < rebuilt[j].Name })
	return tx.Put(object.FromSortedChildren(rebuilt))
}
