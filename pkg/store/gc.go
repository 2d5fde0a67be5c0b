package store

import (
	"fmt"

	"github.com/madcowbg/hoard/pkg/hoarderr"
	"github.com/madcowbg/hoard/pkg/object"
)

// GCStats reports what a GC cycle found and reclaimed.
type GCStats struct {
	LiveRoots   int
	LiveObjects int
	Deleted     int
}

// GC deletes every stored object unreachable from any root in liveRoots.
// Ported from object_store.py's ObjectStorage.gc: validate every root
// resolves, BFS-mark everything reachable, delete the rest. Runs in one
// write transaction so a crash mid-GC can never leave a live object
// deleted alongside an undeleted dead one and only that.
func (s *Store) GC(liveRoots []object.ID) (GCStats, error) {
	stats := GCStats{LiveRoots: len(liveRoots)}

	err := s.WriteTxn(func(tx *WriteTx) error {
		if err := validateRootsPresent(tx, liveRoots); err != nil {
			return err
		}

		live, err := findAllLive(tx, liveRoots)
		if err != nil {
			return err
		}
		stats.LiveObjects = len(live)

		var toDelete []object.ID
		if err := tx.ForEachObject(func(id object.ID, _ []byte) error {
			if !live[id] {
				toDelete = append(toDelete, id)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, id := range toDelete {
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		stats.Deleted = len(toDelete)

		return validateRootsPresent(tx, liveRoots)
	})
	return stats, err
}

func validateRootsPresent(tx *ReadTx, roots []object.ID) error {
	for _, id := range roots {
		if id.IsZero() {
			continue
		}
		if !tx.Has(id) {
			return hoarderr.New(hoarderr.InconsistentStore, fmt.Sprintf("root object %s is missing", id))
		}
	}
	return nil
}

// findAllLive performs a BFS from roots through Tree children, the Go
// equivalent of object_store.py's find_all_live.
func findAllLive(tx *ReadTx, roots []object.ID) (map[object.ID]bool, error) {
	live := make(map[object.ID]bool, len(roots))
	queue := make([]object.ID, 0, len(roots))
	for _, id := range roots {
		if id.IsZero() {
			continue
		}
		if !live[id] {
			live[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		obj, err := tx.Get(current)
		if err != nil {
			return nil, err
		}
		tree, ok := obj.(object.Tree)
		if !ok {
			continue // blobs have no children
		}
		for _, child := range tree.Children() {
			if !live[child.ID] {
				live[child.ID] = true
				queue = append(queue, child.ID)
			}
		}
	}
	return live, nil
}

// CopyObjectsFrom copies every object reachable from rootIDs in other
// into s, skipping objects s already has, and returns how many it
// copied. Ported from object_store.py's copy_trees_from.
func (s *Store) CopyObjectsFrom(other *Store, rootIDs []object.ID) (int, error) {
	var copied int
	err := other.ReadTxn(func(srcTx *ReadTx) error {
		live, err := findAllLive(srcTx, rootIDs)
		if err != nil {
			return err
		}

		return s.WriteTxn(func(dstTx *WriteTx) error {
			for id := range live {
				if dstTx.Has(id) {
					continue
				}
				obj, err := srcTx.Get(id)
				if err != nil {
					return err
				}
				if err := dstTx.PutRaw(id, obj.Serialize()); err != nil {
					return err
				}
				copied++
			}
			return nil
		})
	})
	return copied, err
}
