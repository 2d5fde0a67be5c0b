package reconciler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/deferred"
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/roots"
	"github.com/madcowbg/hoard/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hoard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putTree(t *testing.T, s *store.Store, files map[string]string) object.ID {
	t.Helper()
	var children []object.Child
	var rootID object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		for name, content := range files {
			blob := object.NewBlob(content, int64(len(content)), nil)
			if _, err := tx.Put(blob); err != nil {
				return err
			}
			children = append(children, object.Child{Name: name, ID: blob.ID()})
		}
		tree := object.FromSortedChildren(children)
		var err error
		rootID, err = tx.Put(tree)
		return err
	}))
	return rootID
}

const caveUUID = "cave-1"

func baseConfig(t config.CaveType) config.HoardConfig {
	return config.HoardConfig{
		Caves: map[string]config.CaveConfig{
			caveUUID: {UUID: caveUUID, Type: t, MountedAt: "/mnt/cave1"},
		},
	}
}

func TestPullOnUnknownCaveReturnsError(t *testing.T) {
	s := openTestStore(t)
	r := NewReconciler(s, baseConfig(config.Partial))

	err := r.Pull("no-such-cave")
	assert.Error(t, err)
}

func TestPullPropagatesNewPartialFileToHoard(t *testing.T) {
	s := openTestStore(t)
	staging := putTree(t, s, map[string]string{"a.txt": "hello"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetStaging(tx, roots.Name(caveUUID), &staging)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	require.NoError(t, r.Pull(caveUUID))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		hoardData, err := roots.Get(tx, roots.HoardRoot)
		require.NoError(t, err)
		require.NotNil(t, hoardData.Desired)

		obj, err := tx.Get(*hoardData.Desired)
		require.NoError(t, err)
		tr := obj.(object.Tree)
		_, found := tr.Get("a.txt")
		assert.True(t, found)

		caveData, err := roots.Get(tx, roots.Name(caveUUID))
		require.NoError(t, err)
		require.NotNil(t, caveData.Current)
		assert.Equal(t, staging, *caveData.Current)
		return nil
	}))
}

func TestPullDoesNotLeakSyntheticStagingRootIntoRegistry(t *testing.T) {
	s := openTestStore(t)
	staging := putTree(t, s, map[string]string{"a.txt": "hello"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetStaging(tx, roots.Name(caveUUID), &staging)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	require.NoError(t, r.Pull(caveUUID))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		names, err := roots.AllNames(tx)
		require.NoError(t, err)
		for _, name := range names {
			assert.NotEqual(t, stagingRootName(caveUUID), string(name), "merge-walk staging key must never become a registry root")
		}
		return nil
	}))
}

func TestPullFlushesQueuedDeferredStagingOpsBeforeMerging(t *testing.T) {
	s := openTestStore(t)

	var blobID object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		blob := object.NewBlob("queued", 6, nil)
		blobID = blob.ID()
		if _, err := tx.Put(blob); err != nil {
			return err
		}
		return deferred.Enqueue(tx, roots.Name(caveUUID), deferred.BranchStaging, hoardpath.New("queued.txt"), blobID, deferred.OpAdd)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	require.NoError(t, r.Pull(caveUUID))

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		hoardData, err := roots.Get(tx, roots.HoardRoot)
		require.NoError(t, err)
		require.NotNil(t, hoardData.Desired)

		obj, err := tx.Get(*hoardData.Desired)
		require.NoError(t, err)
		tr := obj.(object.Tree)
		got, found := tr.Get("queued.txt")
		require.True(t, found)
		assert.Equal(t, blobID, got)

		hasPending, err := deferred.HaveDeferredOps(tx)
		require.NoError(t, err)
		assert.False(t, hasPending)
		return nil
	}))
}

func TestPullAbortsOnBackupCaveWhenFreeSpaceWouldFallBelowThreshold(t *testing.T) {
	s := openTestStore(t)
	hoardDesired := putTree(t, s, map[string]string{"big.bin": "0123456789"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetDesired(tx, roots.HoardRoot, &hoardDesired)
	}))

	cfg := baseConfig(config.Backup)
	cave := cfg.Caves[caveUUID]
	cave.CapacityBytes = 10 // exactly the size used, leaving 0% free
	cfg.Caves[caveUUID] = cave

	r := NewReconciler(s, cfg)
	err := r.Pull(caveUUID)
	assert.Error(t, err)
}

func TestPullSkipsFreeSpaceGuardWhenCapacityUnset(t *testing.T) {
	s := openTestStore(t)
	hoardDesired := putTree(t, s, map[string]string{"big.bin": "0123456789"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetDesired(tx, roots.HoardRoot, &hoardDesired)
	}))

	r := NewReconciler(s, baseConfig(config.Backup))
	assert.NoError(t, r.Pull(caveUUID))
}

func TestPendingOperationsOnUnknownCaveReturnsError(t *testing.T) {
	s := openTestStore(t)
	r := NewReconciler(s, baseConfig(config.Partial))

	_, err := r.PendingOperations("no-such-cave")
	assert.Error(t, err)
}

func TestPendingOperationsReportsFetchForDesiredOnlyFile(t *testing.T) {
	s := openTestStore(t)
	desired := putTree(t, s, map[string]string{"new.txt": "content"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetDesired(tx, roots.Name(caveUUID), &desired)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	ops, err := r.PendingOperations(caveUUID)
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpFetch, ops[0].Op)
	assert.Equal(t, "new.txt", ops[0].Path.String())
}

func TestPendingOperationsReportsDeleteForCurrentOnlyFile(t *testing.T) {
	s := openTestStore(t)
	current := putTree(t, s, map[string]string{"stale.txt": "old"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		return roots.SetCurrent(tx, roots.Name(caveUUID), &current)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	ops, err := r.PendingOperations(caveUUID)
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpDelete, ops[0].Op)
}

func TestPendingOperationsReportsUpdateForDifferingContent(t *testing.T) {
	s := openTestStore(t)
	current := putTree(t, s, map[string]string{"f.txt": "old-content"})
	desired := putTree(t, s, map[string]string{"f.txt": "new-content"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if err := roots.SetCurrent(tx, roots.Name(caveUUID), &current); err != nil {
			return err
		}
		return roots.SetDesired(tx, roots.Name(caveUUID), &desired)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	ops, err := r.PendingOperations(caveUUID)
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpUpdate, ops[0].Op)
}

func TestPendingOperationsReportsNoOpsWhenCurrentMatchesDesired(t *testing.T) {
	s := openTestStore(t)
	root := putTree(t, s, map[string]string{"same.txt": "same"})

	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		if err := roots.SetCurrent(tx, roots.Name(caveUUID), &root); err != nil {
			return err
		}
		return roots.SetDesired(tx, roots.Name(caveUUID), &root)
	}))

	r := NewReconciler(s, baseConfig(config.Partial))
	ops, err := r.PendingOperations(caveUUID)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStartAndStopDoesNotPanic(t *testing.T) {
	s := openTestStore(t)
	r := NewReconciler(s, baseConfig(config.Partial))

	r.Start(10 * time.Millisecond)
	r.Stop()
}
