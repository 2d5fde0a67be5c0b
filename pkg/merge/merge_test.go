package merge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// takeStagingPreferences is a minimal MergePreferences used only to
// exercise ThreewayMerge's walk: it always prefers staging's content and
// propagates it to every participating root, mirroring
// NaiveMergePreferences from three_way_merge.py.
type takeStagingPreferences struct {
	roots []string
}

func (p *takeStagingPreferences) assignToAll(id object.ID) ByRoot[object.ID] {
	out := make(ByRoot[object.ID], len(p.roots))
	for _, r := range p.roots {
		out[r] = id
	}
	return out
}

func (p *takeStagingPreferences) CombineBothExisting(path []string, original ByRoot[object.Object], stagingName, baseName string, stagingBlob, baseBlob object.Blob) (ByRoot[object.ID], error) {
	return p.assignToAll(stagingBlob.ID()), nil
}

func (p *takeStagingPreferences) CombineBaseOnly(path []string, original ByRoot[object.Object], stagingName, baseName string, baseBlob object.Blob) (ByRoot[object.ID], error) {
	return make(ByRoot[object.ID]), nil // deleted in staging: propagate deletion
}

func (p *takeStagingPreferences) CombineStagingOnly(path []string, original ByRoot[object.Object], stagingName, baseName string, stagingBlob object.Blob) (ByRoot[object.ID], error) {
	return p.assignToAll(stagingBlob.ID()), nil
}

func (p *takeStagingPreferences) MergeMissing(path []string, original ByRoot[object.Object], stagingName, baseName string) (ByRoot[object.ID], error) {
	out := make(ByRoot[object.ID], len(original))
	for name, obj := range original {
		out[name] = obj.ID()
	}
	return out, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hoard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestThreewayMergePropagatesNewStagingFileToAllRoots(t *testing.T) {
	s := openTestStore(t)

	var stagingRoot object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		blob := object.NewBlob("new-file", 10, nil)
		tree := object.FromSortedChildren([]object.Child{{Name: "a.txt", ID: blob.ID()}})
		if _, err := tx.Put(blob); err != nil {
			return err
		}
		var err error
		stagingRoot, err = tx.Put(tree)
		return err
	}))

	var result ByRoot[object.ID]
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		prefs := &takeStagingPreferences{roots: []string{"current", "staging", "HOARD"}}
		m := &ThreewayMerge{Tx: tx, CurrentName: "current", StagingName: "staging", Others: []string{"HOARD"}, Prefs: prefs}

		initial := ByRoot[object.ID]{"staging": stagingRoot}
		var err error
		result, err = m.Run(initial)
		return err
	}))

	hoardRoot, ok := result.Get("HOARD")
	require.True(t, ok)

	require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
		obj, err := tx.Get(hoardRoot)
		require.NoError(t, err)
		tr := obj.(object.Tree)
		got, found := tr.Get("a.txt")
		require.True(t, found)
		assert.Equal(t, object.NewBlob("new-file", 10, nil).ID(), got)
		return nil
	}))
}

func TestThreewayMergeIsNoOpWhenCurrentAndStagingAreIdentical(t *testing.T) {
	s := openTestStore(t)

	var root object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		blob := object.NewBlob("same", 5, nil)
		tree := object.FromSortedChildren([]object.Child{{Name: "f.txt", ID: blob.ID()}})
		if _, err := tx.Put(blob); err != nil {
			return err
		}
		var err error
		root, err = tx.Put(tree)
		return err
	}))

	var result ByRoot[object.ID]
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		prefs := &takeStagingPreferences{roots: []string{"current", "staging", "HOARD"}}
		m := &ThreewayMerge{Tx: tx, CurrentName: "current", StagingName: "staging", Others: []string{"HOARD"}, Prefs: prefs}

		initial := ByRoot[object.ID]{"current": root, "staging": root, "HOARD": root}
		var err error
		result, err = m.Run(initial)
		return err
	}))

	for _, name := range []string{"current", "staging", "HOARD"} {
		id, ok := result.Get(name)
		require.True(t, ok)
		assert.Equal(t, root, id)
	}
}

func TestThreewayMergeDeletionInStagingPropagatesRemoval(t *testing.T) {
	s := openTestStore(t)

	var currentRoot object.ID
	var stagingRoot object.ID
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		blob := object.NewBlob("deleted-file", 3, nil)
		tree := object.FromSortedChildren([]object.Child{{Name: "gone.txt", ID: blob.ID()}})
		if _, err := tx.Put(blob); err != nil {
			return err
		}
		var err error
		currentRoot, err = tx.Put(tree)
		if err != nil {
			return err
		}
		emptyTree := object.FromSortedChildren(nil)
		stagingRoot, err = tx.Put(emptyTree)
		return err
	}))

	var result ByRoot[object.ID]
	require.NoError(t, s.WriteTxn(func(tx *store.WriteTx) error {
		prefs := &takeStagingPreferences{roots: []string{"current", "staging", "HOARD"}}
		m := &ThreewayMerge{Tx: tx, CurrentName: "current", StagingName: "staging", Others: []string{"HOARD"}, Prefs: prefs}

		initial := ByRoot[object.ID]{"current": currentRoot, "staging": stagingRoot, "HOARD": currentRoot}
		var err error
		result, err = m.Run(initial)
		return err
	}))

	hoardRoot, ok := result.Get("HOARD")
	if ok {
		require.NoError(t, s.ReadTxn(func(tx *store.ReadTx) error {
			obj, err := tx.Get(hoardRoot)
			require.NoError(t, err)
			tr := obj.(object.Tree)
			_, found := tr.Get("gone.txt")
			assert.False(t, found)
			return nil
		}))
	}
}
