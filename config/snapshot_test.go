package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSnapshotMissingFileIsNotAnError(t *testing.T) {
	f, ok, err := LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SnapshotFile{}, f)
}

func TestSaveThenLoadSnapshotRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	want := SnapshotFile{
		Snapshot: Snapshot{
			ConfigKey: "1000:my-config",
			Activations: []ActivationState{
				{MetricID: 1, RemainingTTLSec: 45},
			},
		},
		Alerts: []AlertMetadata{
			{AlertID: 7, RefractoryEndsSec: map[uint64]uint32{123: 1000, 456: 2000}},
		},
	}

	require.NoError(t, SaveSnapshot(path, want))

	got, ok, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLoadSnapshotRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o600))

	_, _, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestSaveSnapshotOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, SaveSnapshot(path, SnapshotFile{Snapshot: Snapshot{ConfigKey: "first"}}))
	require.NoError(t, SaveSnapshot(path, SnapshotFile{Snapshot: Snapshot{ConfigKey: "second"}}))

	got, ok, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.Snapshot.ConfigKey)
}
