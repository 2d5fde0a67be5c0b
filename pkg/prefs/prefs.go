// Package prefs implements Pull Preferences: the per-cave-type decision
// table that drives a three-way merge pulling one cave's local scan
// into the hoard.
//
// Ported from original_source/command/contents/pull_preferences.py,
// collapsing its class hierarchy (deep inheritance over CaveType) into
// a flat (CaveType, Situation) -> Decision lookup table.
package prefs

import (
	"fmt"

	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/content"
	"github.com/madcowbg/hoard/pkg/hoarderr"
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/merge"
	"github.com/madcowbg/hoard/pkg/object"
)

// Decision is the action taken for one (cave type, situation) pair.
type Decision int

const (
	AddToHoard Decision = iota
	AddToHoardAndCleanup
	Ignore
	Cleanup
	RestoreFromHoard
	DeleteFromHoard
	AcceptFromHoard
	MoveInHoard
	Fail
)

// Situation classifies where a path stands relative to a cave's previous
// scan (base), new scan (staging), and the hoard.
type Situation int

const (
	SameAndPresent Situation = iota
	AddedOrPresent
	DifferentAndModified
	DifferentAndAdded
	DifferentAndPresent
	HoardOnlyLocalDeleted
	HoardOnlyLocalUnknown
	HoardOnlyLocalMoved
)

// decisionTable reproduces the decision table verbatim. The two rows with
// a conditional second option (different & present; hoard-only
// local-deleted) are resolved in decisionFor using the preferences'
// flags, so this table carries each row's default (first-listed) value.
var decisionTable = map[config.CaveType][8]Decision{
	config.Partial: {
		SameAndPresent:        AddToHoard,
		AddedOrPresent:        AddToHoard,
		DifferentAndModified:  AddToHoard,
		DifferentAndAdded:     AddToHoard,
		DifferentAndPresent:   RestoreFromHoard,
		HoardOnlyLocalDeleted: DeleteFromHoard,
		HoardOnlyLocalUnknown: AcceptFromHoard,
		HoardOnlyLocalMoved:   MoveInHoard,
	},
	config.Backup: {
		SameAndPresent:        AddToHoard,
		AddedOrPresent:        Ignore,
		DifferentAndModified:  RestoreFromHoard,
		DifferentAndAdded:     RestoreFromHoard,
		DifferentAndPresent:   RestoreFromHoard,
		HoardOnlyLocalDeleted: RestoreFromHoard,
		HoardOnlyLocalUnknown: RestoreFromHoard,
		HoardOnlyLocalMoved:   RestoreFromHoard,
	},
	config.Incoming: {
		SameAndPresent:        Cleanup,
		AddedOrPresent:        AddToHoardAndCleanup,
		DifferentAndModified:  AddToHoardAndCleanup,
		DifferentAndAdded:     AddToHoardAndCleanup,
		DifferentAndPresent:   Cleanup,
		HoardOnlyLocalDeleted: Ignore,
		HoardOnlyLocalUnknown: Ignore,
		HoardOnlyLocalMoved:   Ignore,
	},
}

// PullPreferences is the value object consulted to decide each file's
// fate when pulling one cave's scan. Partial's two conditional rows are
// driven by ForceResetWithLocalContents ("assume_current", different &
// present) and ForceFetchLocalMissing (hoard-only local-deleted).
type PullPreferences struct {
	RemoteType                  config.CaveType
	ForceFetchLocalMissing      bool
	ForceResetWithLocalContents bool
}

// decisionFor looks up the table, applying Partial's conditional rows.
func (p PullPreferences) decisionFor(s Situation) Decision {
	if p.RemoteType == config.Partial {
		switch s {
		case DifferentAndPresent:
			if p.ForceResetWithLocalContents {
				return AddToHoard
			}
			return RestoreFromHoard
		case HoardOnlyLocalDeleted:
			if p.ForceFetchLocalMissing {
				return RestoreFromHoard
			}
			return DeleteFromHoard
		}
	}
	return decisionTable[p.RemoteType][s]
}

// PullMergePreferences adapts PullPreferences into a merge.MergePreferences,
// consulting content.Preferences for where an added file should propagate.
// baseName identifies the cave's own root (its "current"/previous scan
// slot, passed to each callback as baseName per the merge contract); "HOARD"
// is the hoard's global desired root.
type PullMergePreferences struct {
	Preferences PullPreferences
	Content     *content.Preferences
	RemoteUUID  string
}

var _ merge.MergePreferences = (*PullMergePreferences)(nil)

func idsFromOriginal(original merge.ByRoot[object.Object]) merge.ByRoot[object.ID] {
	out := make(merge.ByRoot[object.ID], len(original))
	for name, obj := range original {
		out[name] = obj.ID()
	}
	return out
}

func hoardPathOf(path []string) hoardpath.Path {
	return hoardpath.FromParts(true, path)
}

// execute turns a Decision into the per-root ID assignment for this
// path, given the roots already present (original), the cave's own root
// name (baseName), the content blob under discussion, and where adds
// should propagate beyond the cave itself and "HOARD".
func (p *PullMergePreferences) execute(d Decision, original merge.ByRoot[object.ID], baseName string, content object.Blob, path []string) (merge.ByRoot[object.ID], error) {
	result := make(merge.ByRoot[object.ID], len(original))
	for name, id := range original {
		result[name] = id
	}

	switch d {
	case Ignore:
		return result, nil

	case AddToHoard, AddToHoardAndCleanup:
		result["HOARD"] = content.ID()
		result[baseName] = content.ID()
		if p.Content != nil {
			for _, uuid := range p.Content.ReposToAdd(hoardPathOf(path), nil) {
				result[uuid] = content.ID()
			}
		}
		if d == AddToHoardAndCleanup {
			delete(result, baseName)
		}
		return result, nil

	case Cleanup:
		delete(result, baseName)
		return result, nil

	case RestoreFromHoard, AcceptFromHoard, MoveInHoard:
		hoardID, ok := result["HOARD"]
		if !ok {
			return result, nil
		}
		result[baseName] = hoardID
		return result, nil

	case DeleteFromHoard:
		for name := range result {
			delete(result, name)
		}
		return result, nil

	case Fail:
		return nil, hoarderr.New(hoarderr.InvariantViolation, fmt.Sprintf("pull preferences demand failure at %v", path))

	default:
		return nil, hoarderr.New(hoarderr.InvariantViolation, fmt.Sprintf("unhandled decision %v", d))
	}
}

// CombineBothExisting handles a path differing between the cave's
// previous and new scan. A identical-ID pair is a defensive no-op (it
// should not normally reach here, since the merge walk only drills into
// a differing subtree).
func (p *PullMergePreferences) CombineBothExisting(path []string, original merge.ByRoot[object.Object], stagingName, baseName string, stagingBlob, baseBlob object.Blob) (merge.ByRoot[object.ID], error) {
	ids := idsFromOriginal(original)
	if stagingBlob.ID() == baseBlob.ID() {
		return ids, nil
	}
	d := p.Preferences.decisionFor(DifferentAndModified)
	return p.execute(d, ids, baseName, stagingBlob, path)
}

// CombineBaseOnly handles a path deleted from the cave's new scan
// relative to its previous scan.
func (p *PullMergePreferences) CombineBaseOnly(path []string, original merge.ByRoot[object.Object], stagingName, baseName string, baseBlob object.Blob) (merge.ByRoot[object.ID], error) {
	ids := idsFromOriginal(original)
	d := p.Preferences.decisionFor(HoardOnlyLocalDeleted)
	return p.execute(d, ids, baseName, baseBlob, path)
}

// CombineStagingOnly handles a path newly present in the cave's new
// scan. If the hoard already holds the identical content, this is the
// cave simply recognizing what it already has (AddedOrPresent);
// otherwise it is new content to propagate (DifferentAndAdded).
func (p *PullMergePreferences) CombineStagingOnly(path []string, original merge.ByRoot[object.Object], stagingName, baseName string, stagingBlob object.Blob) (merge.ByRoot[object.ID], error) {
	ids := idsFromOriginal(original)

	situation := DifferentAndAdded
	if hoardID, ok := ids["HOARD"]; ok && hoardID == stagingBlob.ID() {
		situation = AddedOrPresent
	}
	d := p.Preferences.decisionFor(situation)
	return p.execute(d, ids, baseName, stagingBlob, path)
}

// MergeMissing handles a path absent from the cave entirely (neither
// scan holds it) but present via another participating root. Rename
// detection (HoardOnlyLocalMoved) is not implemented; this always
// classifies as HoardOnlyLocalUnknown.
func (p *PullMergePreferences) MergeMissing(path []string, original merge.ByRoot[object.Object], stagingName, baseName string) (merge.ByRoot[object.ID], error) {
	ids := idsFromOriginal(original)
	d := p.Preferences.decisionFor(HoardOnlyLocalUnknown)

	var blob object.Blob
	if obj, ok := original["HOARD"]; ok {
		if b, isBlob := obj.(object.Blob); isBlob {
			blob = b
		}
	}
	return p.execute(d, ids, baseName, blob, path)
}
