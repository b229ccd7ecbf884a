// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for snapkeep.
package config

import (
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is empty.
const (
	DefaultCommandTimeout    = "5m"
	DefaultSweepSchedule     = "17 * * * *"
	DefaultReconcileSchedule = "*/15 * * * *"
	DefaultSweepMaxAge       = "1h"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Targets maps target names to their directories.
	Targets map[string]Target `yaml:"targets"`

	// Engine tunes the snapshot engine.
	Engine Engine `yaml:"engine"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// Target locates one managed server on disk.
type Target struct {
	// Root is the server directory.
	Root string `yaml:"root"`

	// ConfigDir holds the files captured by file-set snapshots.
	// Defaults to Root.
	ConfigDir string `yaml:"config_dir,omitempty"`

	// WorldsDir must exist before a versioned push. Defaults to Root/worlds.
	WorldsDir string `yaml:"worlds_dir,omitempty"`

	// BackupRepo is the git working copy pushed by versioned-push
	// schedules. Defaults to Root.
	BackupRepo string `yaml:"backup_repo,omitempty"`

	// RunningCheck is an argv command exiting zero while the server runs.
	RunningCheck []string `yaml:"running_check,omitempty"`
}

// Dirs returns the target directories with defaults applied.
func (t Target) Dirs() (configDir, worldsDir, backupRepo string) {
	configDir, worldsDir, backupRepo = t.ConfigDir, t.WorldsDir, t.BackupRepo
	if configDir == "" {
		configDir = t.Root
	}
	if worldsDir == "" {
		worldsDir = filepath.Join(t.Root, "worlds")
	}
	if backupRepo == "" {
		backupRepo = t.Root
	}
	return configDir, worldsDir, backupRepo
}

// Engine holds snapshot engine settings.
type Engine struct {
	// Root is exported to backup scripts as SNAPKEEP_ROOT.
	Root string `yaml:"root,omitempty"`

	// SnapshotDir stores file-set content. Defaults to <data_dir>/snapshots.
	SnapshotDir string `yaml:"snapshot_dir,omitempty"`

	// CommandTimeout bounds each subprocess call (Go duration syntax).
	CommandTimeout string `yaml:"command_timeout,omitempty"`

	// SweepSchedule runs the temporary directory sweep.
	SweepSchedule string `yaml:"sweep_schedule,omitempty"`

	// SweepMaxAge is the age after which a temporary directory is abandoned.
	SweepMaxAge string `yaml:"sweep_max_age,omitempty"`

	// ReconcileSchedule re-reads schedules from the store.
	ReconcileSchedule string `yaml:"reconcile_schedule,omitempty"`

	// AuditLog is a JSONL file receiving audit events. Empty disables it.
	AuditLog string `yaml:"audit_log,omitempty"`
}

// Timeout parses CommandTimeout, falling back to DefaultCommandTimeout.
func (e Engine) Timeout() (time.Duration, error) {
	return parseDuration(e.CommandTimeout, DefaultCommandTimeout)
}

// MaxTempAge parses SweepMaxAge, falling back to DefaultSweepMaxAge.
func (e Engine) MaxTempAge() (time.Duration, error) {
	return parseDuration(e.SweepMaxAge, DefaultSweepMaxAge)
}

// Sweep returns the sweep cron expression.
func (e Engine) Sweep() string {
	if e.SweepSchedule == "" {
		return DefaultSweepSchedule
	}
	return e.SweepSchedule
}

// Reconcile returns the reconcile cron expression.
func (e Engine) Reconcile() string {
	if e.ReconcileSchedule == "" {
		return DefaultReconcileSchedule
	}
	return e.ReconcileSchedule
}

// SnapshotPath returns the blob store root for dataDir.
func (e Engine) SnapshotPath(dataDir string) string {
	if e.SnapshotDir != "" {
		return e.SnapshotDir
	}
	return filepath.Join(dataDir, "snapshots")
}

func parseDuration(v, def string) (time.Duration, error) {
	if v == "" {
		v = def
	}
	return time.ParseDuration(v)
}
