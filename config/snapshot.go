package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ActivationState is the persisted remaining time-to-live for one metric's
// activation (§6 Persisted state (a): "for each metric with activations,
// the metric id plus remaining activation ttl").
type ActivationState struct {
	MetricID          int64 `yaml:"metric_id"`
	RemainingTTLSec   int64 `yaml:"remaining_ttl_sec"`
}

// Snapshot is the active-configuration snapshot persisted across process
// restarts, round-tripped through YAML for a human-diffable on-disk form
// (the same role the teacher's TOML file plays for input configuration).
type Snapshot struct {
	ConfigKey   string            `yaml:"config_key"`
	Activations []ActivationState `yaml:"activations"`
}

// AlertMetadata is the persisted refractory-period state for one alert's
// dimensions (§6 Persisted state (b); grounded on
// AnomalyTracker::writeAlertMetadataToProto/loadAlertMetadata in
// original_source).
type AlertMetadata struct {
	AlertID int64 `yaml:"alert_id"`
	// RefractoryEndsSec maps a dimension key's hash to its refractory
	// period end, wall-clock seconds.
	RefractoryEndsSec map[uint64]uint32 `yaml:"refractory_ends_sec"`
}

// SnapshotFile is the full on-disk document: one Snapshot plus every
// alert's metadata for the configuration.
type SnapshotFile struct {
	Snapshot Snapshot        `yaml:"snapshot"`
	Alerts   []AlertMetadata `yaml:"alerts"`
}

// SaveSnapshot writes f to path as YAML, overwriting any existing file.
func SaveSnapshot(path string, f SnapshotFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a previously-saved snapshot file. A missing file is
// not an error: it means no prior state, and the caller should proceed
// with a fresh install.
func LoadSnapshot(path string) (SnapshotFile, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return SnapshotFile{}, false, nil
	}
	if err != nil {
		return SnapshotFile{}, false, fmt.Errorf("config: read snapshot %s: %w", path, err)
	}
	var f SnapshotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return SnapshotFile{}, false, fmt.Errorf("config: parse snapshot %s: %w", path, err)
	}
	return f, true, nil
}
