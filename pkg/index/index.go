// Package index implements the reverse lookup tables: given a blob's
// Object ID, find every hoard path resolving to it without a full tree
// walk per query; given a path, find its Object ID the same way
//.
//
// Ported from original_source/lmdb_storage/{lookup_tables,
// lookup_tables_paths}.py's compute_lookup_table/LookupTable family. A
// lookup table is a byte buffer of records of (20-byte key, varint value
// length, packed value), with the root it was built from kept beside it
// in LookupTable.RootID; it is built in one DFS pass over a root and then
// queried many times.
package index

import (
	"crypto/sha1"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	varint "github.com/multiformats/go-varint"

	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// IntPath is a sequence of child indices from a tree's root down to a
// blob, the compressed-path representation fastDFS produces.
type IntPath []int

type visitFn func(compressedPath []byte, id object.ID, obj object.Object, skip func()) error

// fastDFS walks root in pre-order like tree.DFS, but accumulates a
// compressed path of varint-encoded child indices instead of named path
// components. Ported from lookup_tables.py's fast_dfs.
func fastDFS(tx *store.ReadTx, compressedPath []byte, id object.ID, visit visitFn) error {
	if id.IsZero() {
		return nil
	}
	obj, err := tx.Get(id)
	if err != nil {
		return err
	}

	tr, isTree := obj.(object.Tree)
	if !isTree {
		return visit(compressedPath, id, obj, func() {})
	}

	skipped := false
	if err := visit(compressedPath, id, obj, func() { skipped = true }); err != nil {
		return err
	}
	if skipped {
		return nil
	}

	for idx, child := range tr.Children() {
		childPath := append(append([]byte(nil), compressedPath...), varint.ToUvarint(uint64(idx))...)
		if err := fastDFS(tx, childPath, child.ID, visit); err != nil {
			return err
		}
	}
	return nil
}

func decodeIntPath(raw []byte) (IntPath, error) {
	var path IntPath
	for len(raw) > 0 {
		v, n, err := varint.FromUvarint(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding compressed path: %w", err)
		}
		path = append(path, int(v))
		raw = raw[n:]
	}
	return path, nil
}

func appendRecord(buf []byte, key [20]byte, value []byte) []byte {
	buf = append(buf, key[:]...)
	buf = append(buf, varint.ToUvarint(uint64(len(value)))...)
	buf = append(buf, value...)
	return buf
}

func parseRecords(packed []byte) (map[[20]byte][][]byte, error) {
	out := make(map[[20]byte][][]byte)
	idx := 0
	for idx < len(packed) {
		var key [20]byte
		if idx+20 > len(packed) {
			return nil, fmt.Errorf("truncated lookup record key")
		}
		copy(key[:], packed[idx:idx+20])
		idx += 20

		n, read, err := varint.FromUvarint(packed[idx:])
		if err != nil {
			return nil, fmt.Errorf("decoding lookup record length: %w", err)
		}
		idx += read
		if idx+int(n) > len(packed) {
			return nil, fmt.Errorf("truncated lookup record value")
		}
		value := append([]byte(nil), packed[idx:idx+int(n)]...)
		idx += int(n)

		out[key] = append(out[key], value)
	}
	return out, nil
}

// LookupTable is a parsed lookup buffer resolving a 20-byte key to its
// decoded values, decoding lazily on first access and keeping a bounded
// LRU of recently decoded keys warm.
type LookupTable[V any] struct {
	RootID  object.ID
	raw     map[[20]byte][][]byte
	reader  func(raw []byte) (V, error)
	decoded *lru.Cache[[20]byte, []V]
}

func newLookupTable[V any](rootID object.ID, packed []byte, reader func([]byte) (V, error), cacheSize int) (*LookupTable[V], error) {
	raw, err := parseRecords(packed)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[[20]byte, []V](cacheSize)
	if err != nil {
		return nil, err
	}
	return &LookupTable[V]{RootID: rootID, raw: raw, reader: reader, decoded: cache}, nil
}

// Len returns the number of distinct keys indexed.
func (t *LookupTable[V]) Len() int { return len(t.raw) }

// Contains reports whether id has any indexed value.
func (t *LookupTable[V]) Contains(id object.ID) bool {
	_, ok := t.raw[id]
	return ok
}

// Keys returns every indexed key, in no particular order.
func (t *LookupTable[V]) Keys() []object.ID {
	out := make([]object.ID, 0, len(t.raw))
	for k := range t.raw {
		out = append(out, k)
	}
	return out
}

// Get decodes and returns every value indexed under id, using the LRU
// cache to avoid redecoding on repeat lookups.
func (t *LookupTable[V]) Get(id object.ID) ([]V, error) {
	if cached, ok := t.decoded.Get(id); ok {
		return cached, nil
	}
	rawValues, ok := t.raw[id]
	if !ok {
		return nil, nil
	}
	out := make([]V, len(rawValues))
	for i, raw := range rawValues {
		v, err := t.reader(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	t.decoded.Add(id, out)
	return out, nil
}

// resolveIntPath walks root by child index to reconstruct the named
// hoard path for path. Ported from lookup_tables.py's get_path_string.
func resolveIntPath(tx *store.ReadTx, root object.ID, path IntPath) (hoardpath.Path, error) {
	var parts []string
	currentID := root
	for _, childIdx := range path {
		obj, err := tx.Get(currentID)
		if err != nil {
			return hoardpath.Path{}, err
		}
		tr, ok := obj.(object.Tree)
		if !ok {
			return hoardpath.Path{}, fmt.Errorf("int path descends into a non-tree object %s", currentID)
		}
		children := tr.Children()
		if childIdx < 0 || childIdx >= len(children) {
			return hoardpath.Path{}, fmt.Errorf("int path index %d out of range for %s", childIdx, currentID)
		}
		parts = append(parts, children[childIdx].Name)
		currentID = children[childIdx].ID
	}
	return hoardpath.FromParts(true, parts), nil
}

// ObjToPaths builds the blob-ID -> hoard-path reverse index for root,
// with cacheSize bounding the decoded-path LRU (a non-positive value
// picks a sane default).
func ObjToPaths(tx *store.ReadTx, root object.ID, cacheSize int) (*LookupTable[hoardpath.Path], error) {
	var packed []byte
	err := fastDFS(tx, nil, root, func(compressedPath []byte, id object.ID, obj object.Object, skip func()) error {
		if _, isBlob := obj.(object.Blob); isBlob {
			packed = appendRecord(packed, id, compressedPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reader := func(raw []byte) (hoardpath.Path, error) {
		intPath, err := decodeIntPath(raw)
		if err != nil {
			return hoardpath.Path{}, err
		}
		return resolveIntPath(tx, root, intPath)
	}
	return newLookupTable[hoardpath.Path](root, packed, reader, cacheSize)
}

// PathHashToObj builds the sha1(path)-> blob-ID reverse index for root,
// letting a caller test "does this path exist" without walking the tree
// by name. Ported from lookup_tables_paths.py's compute_path_lookup_table.
func PathHashToObj(tx *store.ReadTx, root object.ID, cacheSize int) (*LookupTable[object.ID], error) {
	var packed []byte
	err := fastDFSNamed(tx, hoardpath.Root, root, func(path hoardpath.Path, id object.ID, obj object.Object, skip func()) error {
		if _, isBlob := obj.(object.Blob); isBlob {
			digest := sha1.Sum([]byte(path.AsPosix()))
			packed = appendRecord(packed, digest, id[:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reader := func(raw []byte) (object.ID, error) { return object.IDFromBytes(raw) }
	return newLookupTable[object.ID](root, packed, reader, cacheSize)
}

func fastDFSNamed(tx *store.ReadTx, path hoardpath.Path, id object.ID, visit func(hoardpath.Path, object.ID, object.Object, func()) error) error {
	if id.IsZero() {
		return nil
	}
	obj, err := tx.Get(id)
	if err != nil {
		return err
	}

	tr, isTree := obj.(object.Tree)
	if !isTree {
		return visit(path, id, obj, func() {})
	}

	skipped := false
	if err := visit(path, id, obj, func() { skipped = true }); err != nil {
		return err
	}
	if skipped {
		return nil
	}

	for _, child := range tr.Children() {
		childPath, err := path.JoinPath(hoardpath.New(child.Name))
		if err != nil {
			return err
		}
		if err := fastDFSNamed(tx, childPath, child.ID, visit); err != nil {
			return err
		}
	}
	return nil
}

// DiffEntry is one blob present only under the "existing" root of a
// Difference call, at the given hoard path.
type DiffEntry struct {
	ID   object.ID
	Path hoardpath.Path
}

// Difference returns every blob present under existingIn whose content
// at that path differs from (or is absent from) missingIn: "what needs
// to be deleted/added when reconciling missingIn towards existingIn".
// Ported from lookup_tables_paths.py's
// compute_obj_id_to_path_difference_lookup_table, using tree.ZipDFS in
// place of the original's bespoke fast_zip_left_dfs.
func Difference(tx *store.ReadTx, existingIn, missingIn object.ID) ([]DiffEntry, error) {
	var out []DiffEntry
	err := zipLeftDFS(tx, hoardpath.Root, existingIn, missingIn, func(path hoardpath.Path, left, right object.Object, skip func()) error {
		if left == nil {
			return nil
		}
		if _, isTree := left.(object.Tree); isTree {
			return nil
		}
		if right != nil && left.ID() == right.ID() {
			return nil
		}
		out = append(out, DiffEntry{ID: left.ID(), Path: path})
		return nil
	})
	return out, err
}

// zipLeftDFS mirrors tree.ZipDFS with drilldownSame=false, but descends
// by the left tree's child order and tolerates a nil right side at any
// level, matching fast_zip_left_dfs's semantics precisely enough for
// Difference's needs.
func zipLeftDFS(tx *store.ReadTx, path hoardpath.Path, leftID, rightID object.ID, visit func(hoardpath.Path, object.Object, object.Object, func()) error) error {
	if leftID.IsZero() && rightID.IsZero() {
		return nil
	}

	var leftObj, rightObj object.Object
	var err error
	if !leftID.IsZero() {
		leftObj, err = tx.Get(leftID)
		if err != nil {
			return err
		}
	}
	if !rightID.IsZero() {
		rightObj, err = tx.Get(rightID)
		if err != nil {
			return err
		}
	}

	if leftID == rightID {
		return visit(path, leftObj, rightObj, func() {})
	}

	leftTree, leftIsTree := leftObj.(object.Tree)
	if leftIsTree {
		skipped := false
		if err := visit(path, leftObj, rightObj, func() { skipped = true }); err != nil {
			return err
		}
		if skipped {
			return nil
		}

		var rightTree object.Tree
		if rt, ok := rightObj.(object.Tree); ok {
			rightTree = rt
		}

		for _, child := range leftTree.Children() {
			childPath, err := path.JoinPath(hoardpath.New(child.Name))
			if err != nil {
				return err
			}
			var childRightID object.ID
			if id, ok := rightTree.Get(child.Name); ok {
				childRightID = id
			}
			if err := zipLeftDFS(tx, childPath, child.ID, childRightID, visit); err != nil {
				return err
			}
		}
		return nil
	}

	return visit(path, leftObj, rightObj, func() {})
}
