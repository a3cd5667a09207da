package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restricted.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureTableThenAppendAndQueryRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureTable("1000:app", 1))

	rows := []Row{
		{DimensionHash: 1, BucketStartNs: 0, BucketEndNs: 1000, Value: 5, WallClockSec: 100},
		{DimensionHash: 2, BucketStartNs: 1000, BucketEndNs: 2000, Value: 7, WallClockSec: 200},
	}
	require.NoError(t, s.AppendRows("1000:app", 1, rows))

	tbl := tableName("1000:app", 1)
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+tbl).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestAppendRowsWithEmptySliceIsANoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureTable("1000:app", 1))
	require.NoError(t, s.AppendRows("1000:app", 1, nil))

	tbl := tableName("1000:app", 1)
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+tbl).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSweepExpiredDeletesOnlyOldRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureTable("1000:app", 1))
	require.NoError(t, s.AppendRows("1000:app", 1, []Row{
		{DimensionHash: 1, WallClockSec: 100},
		{DimensionHash: 2, WallClockSec: 900},
	}))

	require.NoError(t, s.SweepExpired("1000:app", 1, 1000, 500)) // cutoff = 500

	tbl := tableName("1000:app", 1)
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+tbl).Scan(&count))
	assert.Equal(t, 1, count, "only the row older than the cutoff should be swept")
}

func TestDropConfigRemovesAllTablesForThatConfigOnly(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureTable("1000:app-a", 1))
	require.NoError(t, s.EnsureTable("1000:app-a", 2))
	require.NoError(t, s.EnsureTable("1000:app-b", 1))

	require.NoError(t, s.DropConfig("1000:app-a"))

	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE ?`,
		"restricted_%").Scan(&count))
	assert.Equal(t, 1, count, "only app-b's table should remain")

	// app-b's table is still queryable.
	tbl := tableName("1000:app-b", 1)
	_, err := s.db.Exec("SELECT COUNT(*) FROM " + tbl)
	assert.NoError(t, err)
}

func TestDropConfigOnConfigWithNoTablesIsANoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.DropConfig("never-installed"))
}
