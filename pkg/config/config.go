// Package config holds hoard-wide and per-cave configuration: cave
// type, mount point, fetch policy, and connection characteristics used
// by placement decisions.
//
// Grounded on original_source/config.py's HoardConfig/HoardRemote, loaded
// from YAML the way deployment manifests are (gopkg.in/yaml.v3),
// through an afero filesystem so tests never touch the real disk —
// mirroring how cmd/warren's apply.go reads its manifest.
package config

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/madcowbg/hoard/pkg/hoarderr"
)

// CaveType classifies how a cave participates in pull preferences.
type CaveType string

const (
	Partial  CaveType = "partial"
	Backup   CaveType = "backup"
	Incoming CaveType = "incoming"
)

// ConnectionSpeed is an advisory enumeration consumed only by external
// file-placement decisions.
type ConnectionSpeed string

const (
	SpeedUnknown ConnectionSpeed = ""
	SpeedSlow    ConnectionSpeed = "slow"
	SpeedFast    ConnectionSpeed = "fast"
)

// ConnectionLatency is an advisory enumeration consumed only by external
// file-placement decisions.
type ConnectionLatency string

const (
	LatencyUnknown ConnectionLatency = ""
	LatencyLow     ConnectionLatency = "low"
	LatencyHigh    ConnectionLatency = "high"
)

// CaveConfig describes one cave's participation in the hoard.
type CaveConfig struct {
	UUID                   string            `yaml:"uuid"`
	Type                   CaveType          `yaml:"type"`
	MountedAt              string            `yaml:"mounted_at"`
	FetchNew               bool              `yaml:"fetch_new"`
	MinCopiesBeforeCleanup int               `yaml:"min_copies_before_cleanup"`
	ConnectionSpeed        ConnectionSpeed   `yaml:"connection_speed"`
	ConnectionLatency      ConnectionLatency `yaml:"connection_latency"`

	// CapacityBytes is the cave's total usable storage, consulted by the
	// reconciler's free-space projection guard. Zero means
	// unknown/unbounded: the guard is skipped.
	CapacityBytes int64 `yaml:"capacity_bytes"`
}

// HoardConfig is the full set of caves participating in one hoard.
type HoardConfig struct {
	Caves map[string]CaveConfig `yaml:"caves"`
}

// CavesOfType returns every cave config with the given type, in no
// particular order.
func (c HoardConfig) CavesOfType(t CaveType) []CaveConfig {
	var out []CaveConfig
	for _, cave := range c.Caves {
		if cave.Type == t {
			out = append(out, cave)
		}
	}
	return out
}

// Load reads and parses a HoardConfig from path using fs, validating
// each cave config's type and mount point.
func Load(fs afero.Fs, path string) (HoardConfig, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return HoardConfig{}, fmt.Errorf("reading hoard config %s: %w", path, err)
	}

	var cfg HoardConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return HoardConfig{}, fmt.Errorf("parsing hoard config %s: %w", path, err)
	}

	for uuid, cave := range cfg.Caves {
		if cave.Type != Partial && cave.Type != Backup && cave.Type != Incoming {
			return HoardConfig{}, hoarderr.New(hoarderr.WrongCaveType, fmt.Sprintf("cave %s has unknown type %q", uuid, cave.Type))
		}
		if cave.MountedAt == "" {
			return HoardConfig{}, hoarderr.New(hoarderr.BadPath, fmt.Sprintf("cave %s has no mounted_at", uuid))
		}
	}

	return cfg, nil
}

// Save writes cfg as YAML to path using fs.
func Save(fs afero.Fs, path string, cfg HoardConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling hoard config: %w", err)
	}
	if err := afero.WriteFile(fs, path, raw, 0644); err != nil {
		return fmt.Errorf("writing hoard config %s: %w", path, err)
	}
	return nil
}
