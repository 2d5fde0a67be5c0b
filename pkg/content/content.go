// Package content implements Content Preferences: given a new file's
// hoard path, enumerate the caves that should acquire it — partial
// caves configured to fetch new content, plus backup sets balancing up
// to one copy per shared mount point.
//
// Ported from original_source/command/content_prefs.py's
// ContentPrefs/BackupSet.
package content

import (
	"sort"

	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/hoardpath"
)

// FileStatus is the hoard-side status of one cave's copy of a file,
// consulted by BackupSet to avoid re-requesting an already-scheduled
// backup, using the status tracking original_source's
// currently_scheduled_backups relies on.
type FileStatus string

const (
	StatusGet       FileStatus = "get"
	StatusCopy      FileStatus = "copy"
	StatusAvailable FileStatus = "available"
	StatusCleanup   FileStatus = "cleanup"
	StatusUnknown   FileStatus = "unknown"
)

// HoardFileProps is the minimal per-file, per-cave status view content
// preferences needs: which caves already have this file requested or
// present.
type HoardFileProps struct {
	StatusByCave map[string]FileStatus
}

// ReposWithStatus returns the cave UUIDs currently in any of statuses.
func (p HoardFileProps) ReposWithStatus(statuses ...FileStatus) []string {
	want := make(map[FileStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []string
	for uuid, s := range p.StatusByCave {
		if want[s] {
			out = append(out, uuid)
		}
	}
	sort.Strings(out)
	return out
}

func isPathAvailable(cave config.CaveConfig, hoardFile hoardpath.Path) bool {
	mount := hoardpath.New(cave.MountedAt)
	return hoardFile.IsRelativeTo(mount)
}

// BackupSet groups the backup caves sharing one mount point: only one of
// them needs to hold any given file, since they are redundant replicas
// of the same physical slot.
type BackupSet struct {
	MountedAt string
	backups   map[string]config.CaveConfig
}

// NewBackupSet groups backups (all assumed to share one mount point).
func NewBackupSet(mountedAt string, backups []config.CaveConfig) *BackupSet {
	m := make(map[string]config.CaveConfig, len(backups))
	for _, b := range backups {
		m[b.UUID] = b
	}
	return &BackupSet{MountedAt: mountedAt, backups: m}
}

func (b *BackupSet) numCopiesDesired() int {
	if len(b.backups) == 0 {
		return 0
	}
	return 1 // min(1, len(backups)): one copy suffices across a shared mount point
}

// CurrentlyScheduledBackups returns the backups in this set already
// requested or holding hoardFile, per hoardProps, avoiding
// re-requesting a copy from a cave that already has one queued.
func (b *BackupSet) CurrentlyScheduledBackups(hoardFile hoardpath.Path, hoardProps *HoardFileProps) []string {
	if hoardProps == nil {
		return nil
	}
	var out []string
	for _, uuid := range hoardProps.ReposWithStatus(StatusGet, StatusCopy, StatusAvailable) {
		cave, ok := b.backups[uuid]
		if ok && isPathAvailable(cave, hoardFile) {
			out = append(out, uuid)
		}
	}
	return out
}

// ReposToBackupTo returns the additional backup cave UUIDs that should
// acquire hoardFile, topping the set up to numCopiesDesired beyond what
// CurrentlyScheduledBackups already reports.
func (b *BackupSet) ReposToBackupTo(hoardFile hoardpath.Path, hoardProps *HoardFileProps) []string {
	past := b.CurrentlyScheduledBackups(hoardFile, hoardProps)
	desired := b.numCopiesDesired()
	if len(past) >= desired {
		return nil
	}
	alreadyScheduled := make(map[string]bool, len(past))
	for _, uuid := range past {
		alreadyScheduled[uuid] = true
	}

	var candidates []string
	for uuid, cave := range b.backups {
		if alreadyScheduled[uuid] {
			continue
		}
		if !isPathAvailable(cave, hoardFile) {
			continue
		}
		candidates = append(candidates, uuid)
	}
	sort.Strings(candidates)

	need := desired - len(past)
	if need < len(candidates) {
		candidates = candidates[:need]
	}
	return candidates
}

// Preferences enumerates, for a new file, every cave that should acquire
// it: fetch-new partials with an available path, plus one pick per
// backup set.
type Preferences struct {
	partialsFetchNew []config.CaveConfig
	backupSets       []*BackupSet
}

// NewPreferences builds Preferences from the hoard's cave configuration.
func NewPreferences(cfg config.HoardConfig) *Preferences {
	var partials []config.CaveConfig
	for _, c := range cfg.CavesOfType(config.Partial) {
		if c.FetchNew {
			partials = append(partials, c)
		}
	}

	byMount := make(map[string][]config.CaveConfig)
	for _, c := range cfg.CavesOfType(config.Backup) {
		byMount[c.MountedAt] = append(byMount[c.MountedAt], c)
	}
	var sets []*BackupSet
	for mount, backups := range byMount {
		sets = append(sets, NewBackupSet(mount, backups))
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].MountedAt < sets[j].MountedAt })

	return &Preferences{partialsFetchNew: partials, backupSets: sets}
}

// ReposToAdd returns the deduplicated cave UUIDs that should acquire
// hoardFile: every available fetch-new partial, plus each backup set's
// pick.
func (p *Preferences) ReposToAdd(hoardFile hoardpath.Path, hoardProps *HoardFileProps) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(uuid string) {
		if !seen[uuid] {
			seen[uuid] = true
			out = append(out, uuid)
		}
	}

	for _, c := range p.partialsFetchNew {
		if isPathAvailable(c, hoardFile) {
			add(c.UUID)
		}
	}
	for _, bs := range p.backupSets {
		for _, uuid := range bs.ReposToBackupTo(hoardFile, hoardProps) {
			add(uuid)
		}
	}
	return out
}
