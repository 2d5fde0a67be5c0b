package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/merge"
	"github.com/madcowbg/hoard/pkg/object"
)

func TestDecisionTableMatchesSpec(t *testing.T) {
	cases := []struct {
		caveType config.CaveType
		s        Situation
		want     Decision
	}{
		{config.Partial, SameAndPresent, AddToHoard},
		{config.Partial, AddedOrPresent, AddToHoard},
		{config.Partial, HoardOnlyLocalUnknown, AcceptFromHoard},
		{config.Partial, HoardOnlyLocalMoved, MoveInHoard},
		{config.Backup, AddedOrPresent, Ignore},
		{config.Backup, DifferentAndModified, RestoreFromHoard},
		{config.Incoming, SameAndPresent, Cleanup},
		{config.Incoming, DifferentAndAdded, AddToHoardAndCleanup},
		{config.Incoming, HoardOnlyLocalUnknown, Ignore},
	}
	for _, c := range cases {
		p := PullPreferences{RemoteType: c.caveType}
		assert.Equal(t, c.want, p.decisionFor(c.s), "type=%v situation=%v", c.caveType, c.s)
	}
}

func TestPartialDifferentAndPresentHonorsForceResetFlag(t *testing.T) {
	p := PullPreferences{RemoteType: config.Partial}
	assert.Equal(t, RestoreFromHoard, p.decisionFor(DifferentAndPresent))

	p.ForceResetWithLocalContents = true
	assert.Equal(t, AddToHoard, p.decisionFor(DifferentAndPresent))
}

func TestPartialHoardOnlyLocalDeletedHonorsForceFetchFlag(t *testing.T) {
	p := PullPreferences{RemoteType: config.Partial}
	assert.Equal(t, DeleteFromHoard, p.decisionFor(HoardOnlyLocalDeleted))

	p.ForceFetchLocalMissing = true
	assert.Equal(t, RestoreFromHoard, p.decisionFor(HoardOnlyLocalDeleted))
}

func TestCombineStagingOnlyPropagatesNewPartialContent(t *testing.T) {
	pm := &PullMergePreferences{
		Preferences: PullPreferences{RemoteType: config.Partial},
		RemoteUUID:  "cave-1",
	}
	blob := object.NewBlob("h", 5, nil)
	result, err := pm.CombineStagingOnly([]string{"a.txt"}, merge.ByRoot[object.Object]{}, "cave-1/staging", "cave-1/current", blob)
	require.NoError(t, err)

	hoardID, ok := result.Get("HOARD")
	require.True(t, ok)
	assert.Equal(t, blob.ID(), hoardID)

	caveID, ok := result.Get("cave-1/current")
	require.True(t, ok)
	assert.Equal(t, blob.ID(), caveID)
}

func TestCombineStagingOnlyRecognizesExistingHoardContent(t *testing.T) {
	pm := &PullMergePreferences{Preferences: PullPreferences{RemoteType: config.Partial}, RemoteUUID: "cave-1"}
	blob := object.NewBlob("h", 5, nil)
	original := merge.ByRoot[object.Object]{"HOARD": blob}

	result, err := pm.CombineStagingOnly([]string{"a.txt"}, original, "cave-1/staging", "cave-1/current", blob)
	require.NoError(t, err)

	caveID, ok := result.Get("cave-1/current")
	require.True(t, ok)
	assert.Equal(t, blob.ID(), caveID)
}

func TestCombineBaseOnlyBackupIgnoresLocalDeletion(t *testing.T) {
	pm := &PullMergePreferences{Preferences: PullPreferences{RemoteType: config.Backup}, RemoteUUID: "backup-1"}
	blob := object.NewBlob("h", 5, nil)
	original := merge.ByRoot[object.Object]{"HOARD": blob, "backup-1/current": blob}

	result, err := pm.CombineBaseOnly([]string{"a.txt"}, original, "backup-1/staging", "backup-1/current", blob)
	require.NoError(t, err)

	caveID, ok := result.Get("backup-1/current")
	require.True(t, ok)
	assert.Equal(t, blob.ID(), caveID, "RestoreFromHoard keeps the backup's copy in place")
}

func TestCombineBaseOnlyPartialDeletesFromEveryRoot(t *testing.T) {
	pm := &PullMergePreferences{Preferences: PullPreferences{RemoteType: config.Partial}, RemoteUUID: "cave-1"}
	blob := object.NewBlob("h", 5, nil)
	original := merge.ByRoot[object.Object]{"HOARD": blob, "cave-1/current": blob, "cave-2/current": blob}

	result, err := pm.CombineBaseOnly([]string{"a.txt"}, original, "cave-1/staging", "cave-1/current", blob)
	require.NoError(t, err)

	assert.Empty(t, result, "DeleteFromHoard removes the path from every participating root, not just HOARD")
}

func TestCombineBothExistingIdenticalIsNoOp(t *testing.T) {
	pm := &PullMergePreferences{Preferences: PullPreferences{RemoteType: config.Partial}, RemoteUUID: "cave-1"}
	blob := object.NewBlob("h", 5, nil)
	original := merge.ByRoot[object.Object]{"cave-1/current": blob, "cave-1/staging": blob}

	result, err := pm.CombineBothExisting([]string{"a.txt"}, original, "cave-1/staging", "cave-1/current", blob, blob)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestMergeMissingDefaultsToHoardOnlyLocalUnknown(t *testing.T) {
	pm := &PullMergePreferences{Preferences: PullPreferences{RemoteType: config.Partial}, RemoteUUID: "cave-1"}
	blob := object.NewBlob("h", 5, nil)
	original := merge.ByRoot[object.Object]{"HOARD": blob}

	result, err := pm.MergeMissing([]string{"a.txt"}, original, "cave-1/staging", "cave-1/current")
	require.NoError(t, err)

	caveID, ok := result.Get("cave-1/current")
	require.True(t, ok, "AcceptFromHoard copies hoard content into the cave's slot")
	assert.Equal(t, blob.ID(), caveID)
}
