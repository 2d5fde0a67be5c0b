package tree

import (
	"sort"

	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// PathBlob is one (full relative path, blob ID) input to
// MktreeFromSortedTuples.
type PathBlob struct {
	Path hoardpath.Path
	Blob object.ID
}

type frame struct {
	name     string
	children []object.Child
}

// MktreeFromSortedTuples builds a tree in one pass from pairs sorted in
// ascending path order with no duplicate paths, using a stack of
// in-progress directory frames. Returns the root ID (zero if pairs is
// empty). Ported from the stack-based construction in
// original_source/lmdb_storage/tree_structure.py's tree-building helpers.
func MktreeFromSortedTuples(tx *store.WriteTx, pairs []PathBlob) (object.ID, error) {
	stack := []frame{{}}
	var currentDir []string

	commit := func() error {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		currentDir = currentDir[:len(currentDir)-1]

		treeID, err := buildTreeFrame(tx, top.children)
		if err != nil {
			return err
		}
		if !treeID.IsZero() {
			parent := &stack[len(stack)-1]
			parent.children = append(parent.children, object.Child{Name: top.name, ID: treeID})
		}
		return nil
	}

	for _, pair := range pairs {
		parts := pair.Path.Parts()
		if len(parts) == 0 {
			continue
		}
		dirParts := parts[:len(parts)-1]
		leaf := parts[len(parts)-1]

		common := commonPrefixLen(currentDir, dirParts)
		for len(currentDir) > common {
			if err := commit(); err != nil {
				return object.ID{}, err
			}
		}
		for i := common; i < len(dirParts); i++ {
			stack = append(stack, frame{name: dirParts[i]})
			currentDir = append(currentDir, dirParts[i])
		}

		top := &stack[len(stack)-1]
		top.children = append(top.children, object.Child{Name: leaf, ID: pair.Blob})
	}

	for len(stack) > 1 {
		if err := commit(); err != nil {
			return object.ID{}, err
		}
	}

	return buildTreeFrame(tx, stack[0].children)
}

func buildTreeFrame(tx *store.WriteTx, children []object.Child) (object.ID, error) {
	if len(children) == 0 {
		return object.ID{}, nil
	}
	sorted := make([]object.Child, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return tx.Put(object.FromSortedChildren(sorted))
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
