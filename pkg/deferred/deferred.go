// Package deferred implements the deferred-operations queue: pending
// add/remove edits accumulated against a cave's root instead of
// rewriting its tree on every single file, flushed in one
// batched rebuild per (cave, branch).
//
// Ported from original_source/lmdb_storage/deferred_operations.py's
// HoardDeferredOperations.
package deferred

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/log"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/roots"
	"github.com/madcowbg/hoard/pkg/store"
	"github.com/madcowbg/hoard/pkg/tree"
)

// Branch is which of a root's three slots an operation targets.
type Branch string

const (
	BranchCurrent Branch = "current"
	BranchStaging Branch = "staging"
	BranchDesired Branch = "desired"
)

// Op is the edit kind queued against a path.
type Op string

const (
	OpAdd Op = "add"
	OpDel Op = "del"
)

// item is the wire form stored in the deferred-ops bucket, keyed by an
// auto-incrementing sequence number so FIFO order survives a restart.
type item struct {
	Cave   string
	Branch string
	Path   string
	Blob   []byte // 20-byte object ID; empty for OpDel
	Op     string
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Enqueue appends one pending edit. It does not touch the cave's root;
// call Flush or FlushAll to apply it.
func Enqueue(tx *store.WriteTx, cave roots.Name, branch Branch, path hoardpath.Path, blob object.ID, op Op) error {
	it := item{Cave: string(cave), Branch: string(branch), Path: path.AsPosix(), Op: string(op)}
	if op == OpAdd {
		it.Blob = append([]byte(nil), blob[:]...)
	}

	raw, err := msgpack.Marshal(it)
	if err != nil {
		return fmt.Errorf("encoding deferred op: %w", err)
	}

	bucket := tx.DeferredOpsBucket()
	seq, err := bucket.NextSequence()
	if err != nil {
		return fmt.Errorf("allocating deferred op sequence: %w", err)
	}
	return bucket.Put(sequenceKey(seq), raw)
}

// HaveDeferredOps reports whether any operation is queued, for any cave
// or branch.
func HaveDeferredOps(tx *store.ReadTx) (bool, error) {
	found := false
	err := tx.DeferredOpsBucket().ForEach(func(_, _ []byte) error {
		found = true
		return nil
	})
	return found, err
}

type queued struct {
	key  []byte
	item item
}

// pending reads every queued item, decoded, alongside its storage key.
func pending(tx *store.ReadTx) ([]queued, error) {
	var out []queued
	err := tx.DeferredOpsBucket().ForEach(func(k, v []byte) error {
		var it item
		if err := msgpack.Unmarshal(v, &it); err != nil {
			return fmt.Errorf("decoding deferred op: %w", err)
		}
		key := append([]byte(nil), k...)
		out = append(out, queued{key: key, item: it})
		return nil
	})
	return out, err
}

// Flush applies every queued operation for one (cave, branch) pair: it
// loads the branch's current tree, applies each add/del in queue order,
// rebuilds the tree from the resulting path set, assigns the new root,
// and removes the applied items from the queue. A no-op if nothing is
// queued for this pair.
func Flush(tx *store.WriteTx, cave roots.Name, branch Branch) error {
	all, err := pending(&tx.ReadTx)
	if err != nil {
		return err
	}

	var mine []queued
	for _, q := range all {
		if q.item.Cave == string(cave) && q.item.Branch == string(branch) {
			mine = append(mine, q)
		}
	}
	if len(mine) == 0 {
		return nil
	}

	data, err := roots.Get(&tx.ReadTx, cave)
	if err != nil {
		return err
	}

	var currentRoot object.ID
	switch branch {
	case BranchCurrent:
		if data.Current != nil {
			currentRoot = *data.Current
		}
	case BranchStaging:
		if data.Staging != nil {
			currentRoot = *data.Staging
		}
	case BranchDesired:
		if data.Desired != nil {
			currentRoot = *data.Desired
		}
	default:
		return fmt.Errorf("unknown deferred op branch %q", branch)
	}

	byPath := make(map[string]object.ID)
	if err := tree.DFS(&tx.ReadTx, currentRoot, func(path hoardpath.Path, id object.ID, obj object.Object, skip func()) error {
		if _, isBlob := obj.(object.Blob); isBlob {
			byPath[path.AsPosix()] = id
		}
		return nil
	}); err != nil {
		return err
	}

	for _, q := range mine {
		// The tree walk above keys by relative path; queued paths may be
		// absolute, so they are keyed the same way.
		key := hoardpath.FromParts(false, hoardpath.New(q.item.Path).Parts()).AsPosix()
		switch Op(q.item.Op) {
		case OpAdd:
			id, idErr := object.IDFromBytes(q.item.Blob)
			if idErr != nil {
				return idErr
			}
			byPath[key] = id
		case OpDel:
			if _, present := byPath[key]; !present {
				log.WithCave(string(cave)).Warn().Str("path", q.item.Path).Msg("deferred delete of a path not in the tree")
			}
			delete(byPath, key)
		default:
			return fmt.Errorf("unknown deferred op kind %q", q.item.Op)
		}
	}

	pairs := make([]tree.PathBlob, 0, len(byPath))
	for p, id := range byPath {
		pairs = append(pairs, tree.PathBlob{Path: hoardpath.New(p), Blob: id})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Path.Less(pairs[j].Path) })

	newRoot, err := tree.MktreeFromSortedTuples(tx, pairs)
	if err != nil {
		return err
	}

	var setErr error
	switch branch {
	case BranchCurrent:
		setErr = roots.SetCurrent(tx, cave, idOrNil(newRoot))
	case BranchStaging:
		setErr = roots.SetStaging(tx, cave, idOrNil(newRoot))
	case BranchDesired:
		setErr = roots.SetDesired(tx, cave, idOrNil(newRoot))
	}
	if setErr != nil {
		return setErr
	}

	bucket := tx.DeferredOpsBucket()
	for _, q := range mine {
		if err := bucket.Delete(q.key); err != nil {
			return err
		}
	}
	return nil
}

func idOrNil(id object.ID) *object.ID {
	if id.IsZero() {
		return nil
	}
	return &id
}

// FlushAll applies every queued operation, grouped by (cave, branch).
func FlushAll(tx *store.WriteTx) error {
	all, err := pending(&tx.ReadTx)
	if err != nil {
		return err
	}

	type pair struct{ cave, branch string }
	seen := make(map[pair]bool)
	var order []pair
	for _, q := range all {
		p := pair{q.item.Cave, q.item.Branch}
		if !seen[p] {
			seen[p] = true
			order = append(order, p)
		}
	}

	for _, p := range order {
		if err := Flush(tx, roots.Name(p.cave), Branch(p.branch)); err != nil {
			return err
		}
	}
	return nil
}
