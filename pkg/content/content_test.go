package content

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/hoardpath"
)

func TestReposToAddIncludesAvailableFetchNewPartials(t *testing.T) {
	cfg := config.HoardConfig{Caves: map[string]config.CaveConfig{
		"p1": {UUID: "p1", Type: config.Partial, MountedAt: "/mnt/p1", FetchNew: true},
		"p2": {UUID: "p2", Type: config.Partial, MountedAt: "/mnt/p2", FetchNew: false},
	}}
	prefs := NewPreferences(cfg)

	got := prefs.ReposToAdd(hoardpath.New("/mnt/p1/a.txt"), nil)
	assert.Equal(t, []string{"p1"}, got)
}

func TestReposToAddExcludesPartialWhenPathNotAvailable(t *testing.T) {
	cfg := config.HoardConfig{Caves: map[string]config.CaveConfig{
		"p1": {UUID: "p1", Type: config.Partial, MountedAt: "/mnt/p1", FetchNew: true},
	}}
	prefs := NewPreferences(cfg)

	got := prefs.ReposToAdd(hoardpath.New("/mnt/other/a.txt"), nil)
	assert.Empty(t, got)
}

func TestReposToAddPicksOneBackupPerMountPoint(t *testing.T) {
	cfg := config.HoardConfig{Caves: map[string]config.CaveConfig{
		"b1": {UUID: "b1", Type: config.Backup, MountedAt: "/mnt/backup"},
		"b2": {UUID: "b2", Type: config.Backup, MountedAt: "/mnt/backup"},
	}}
	prefs := NewPreferences(cfg)

	got := prefs.ReposToAdd(hoardpath.New("/mnt/backup/a.txt"), nil)
	assert.Len(t, got, 1)
}

func TestCurrentlyScheduledBackupsPreventsDoubleScheduling(t *testing.T) {
	bs := NewBackupSet("/mnt/backup", []config.CaveConfig{
		{UUID: "b1", MountedAt: "/mnt/backup"},
		{UUID: "b2", MountedAt: "/mnt/backup"},
	})
	props := &HoardFileProps{StatusByCave: map[string]FileStatus{"b1": StatusAvailable}}

	scheduled := bs.CurrentlyScheduledBackups(hoardpath.New("/mnt/backup/a.txt"), props)
	assert.Equal(t, []string{"b1"}, scheduled)

	toBackup := bs.ReposToBackupTo(hoardpath.New("/mnt/backup/a.txt"), props)
	assert.Empty(t, toBackup, "b1 already covers the desired single copy")
}

func TestReposToBackupToIgnoresUnrelatedMountPoints(t *testing.T) {
	bs := NewBackupSet("/mnt/backup", []config.CaveConfig{
		{UUID: "b1", MountedAt: "/mnt/backup"},
	})

	got := bs.ReposToBackupTo(hoardpath.New("/mnt/other/a.txt"), nil)
	assert.Empty(t, got)
}

func TestReposToAddDedupesAcrossPartialAndBackup(t *testing.T) {
	cfg := config.HoardConfig{Caves: map[string]config.CaveConfig{
		"p1": {UUID: "p1", Type: config.Partial, MountedAt: "/mnt/shared", FetchNew: true},
		"b1": {UUID: "b1", Type: config.Backup, MountedAt: "/mnt/shared"},
	}}
	prefs := NewPreferences(cfg)

	got := prefs.ReposToAdd(hoardpath.New("/mnt/shared/a.txt"), nil)
	assert.ElementsMatch(t, []string{"p1", "b1"}, got)
}
