package aggregate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madcowbg/hoard/pkg/content"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hoard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTotalSizeSumsNestedBlobs(t *testing.T) {
	s := openTestStore(t)

	blobA := object.NewBlob("a", 10, nil)
	blobB := object.NewBlob("b", 20, nil)
	var root object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if _, err := tx.Put(blobA); err != nil {
			return err
		}
		if _, err := tx.Put(blobB); err != nil {
			return err
		}
		sub := object.FromSortedChildren([]object.Child{{Name: "b.txt", ID: blobB.ID()}})
		subID, err := tx.Put(sub)
		if err != nil {
			return err
		}
		top := object.FromSortedChildren([]object.Child{
			{Name: "a.txt", ID: blobA.ID()},
			{Name: "dir", ID: subID},
		})
		root, err = tx.Put(top)
		return err
	}))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		total, err := TotalSize(tx, root, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 30, total)
		return nil
	}))
}

func TestTotalSizeOfZeroRootIsZero(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		total, err := TotalSize(tx, object.ID{}, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
		return nil
	}))
}

func TestUsedSizeTakesLargerSidePerPath(t *testing.T) {
	s := openTestStore(t)

	currentBlob := object.NewBlob("old", 10, nil)
	desiredBlob := object.NewBlob("new", 25, nil)
	var currentRoot, desiredRoot object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if _, err := tx.Put(currentBlob); err != nil {
			return err
		}
		if _, err := tx.Put(desiredBlob); err != nil {
			return err
		}
		var err error
		currentRoot, err = tx.Put(object.FromSortedChildren([]object.Child{{Name: "f.txt", ID: currentBlob.ID()}}))
		if err != nil {
			return err
		}
		desiredRoot, err = tx.Put(object.FromSortedChildren([]object.Child{{Name: "f.txt", ID: desiredBlob.ID()}}))
		return err
	}))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		used, err := UsedSize(tx, currentRoot, desiredRoot)
		require.NoError(t, err)
		assert.EqualValues(t, 25, used)
		return nil
	}))
}

func TestUsedSizeSumsAcrossDistinctPaths(t *testing.T) {
	s := openTestStore(t)

	currentOnly := object.NewBlob("c", 5, nil)
	desiredOnly := object.NewBlob("d", 7, nil)
	var currentRoot, desiredRoot object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if _, err := tx.Put(currentOnly); err != nil {
			return err
		}
		if _, err := tx.Put(desiredOnly); err != nil {
			return err
		}
		var err error
		currentRoot, err = tx.Put(object.FromSortedChildren([]object.Child{{Name: "c.txt", ID: currentOnly.ID()}}))
		if err != nil {
			return err
		}
		desiredRoot, err = tx.Put(object.FromSortedChildren([]object.Child{{Name: "d.txt", ID: desiredOnly.ID()}}))
		return err
	}))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		used, err := UsedSize(tx, currentRoot, desiredRoot)
		require.NoError(t, err)
		assert.EqualValues(t, 12, used)
		return nil
	}))
}

func TestComputeQueryStatsCountsNonDeletedFiles(t *testing.T) {
	s := openTestStore(t)

	alive := object.NewBlob("alive", 1, nil)
	deleted := object.NewBlob("deleted", 1, nil)
	var root object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if _, err := tx.Put(alive); err != nil {
			return err
		}
		if _, err := tx.Put(deleted); err != nil {
			return err
		}
		var err error
		root, err = tx.Put(object.FromSortedChildren([]object.Child{
			{Name: "alive.txt", ID: alive.ID()},
			{Name: "deleted.txt", ID: deleted.ID()},
		}))
		return err
	}))

	presence := func(id object.ID) map[string]content.FileStatus {
		if id == alive.ID() {
			return map[string]content.FileStatus{"cave-1": content.StatusAvailable}
		}
		return map[string]content.FileStatus{"cave-1": content.StatusCleanup}
	}

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		stats, err := ComputeQueryStats(tx, root, presence, 0)
		require.NoError(t, err)
		folder, ok := stats.(FolderStats)
		require.True(t, ok)
		assert.Equal(t, 1, folder.CountNonDeleted)
		return nil
	}))
}

func TestComputeSizeCountPresenceStatsAggregatesPerRemote(t *testing.T) {
	s := openTestStore(t)

	blob := object.NewBlob("f", 4, nil)
	var root object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if _, err := tx.Put(blob); err != nil {
			return err
		}
		var err error
		root, err = tx.Put(object.FromSortedChildren([]object.Child{{Name: "f.txt", ID: blob.ID()}}))
		return err
	}))

	presence := func(id object.ID) map[string]content.FileStatus {
		return map[string]content.FileStatus{"cave-1": content.StatusAvailable}
	}

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		stats, err := ComputeSizeCountPresenceStats(tx, root, presence, 0)
		require.NoError(t, err)
		cave1 := stats.PerRemote["cave-1"]
		assert.Equal(t, 1, cave1.Total.NFiles)
		assert.EqualValues(t, 4, cave1.Total.Size)
		assert.Equal(t, SizeCount{NFiles: 1, Size: 4}, cave1.Presence[content.StatusAvailable])
		return nil
	}))
}
