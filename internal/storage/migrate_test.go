package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pulse.db")

	v, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	v, dirty, err = SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
}

func TestRunMigrations_CreatesDatasetTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.db")
	require.NoError(t, RunMigrations(path))

	s, err := Open(context.Background(), Options{Dialect: SQLite, DSN: path}, nil)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{
		"aggregated_transaction", "aggregated_user",
		"map_user", "map_insurance", "map_map", "top_map",
	} {
		var n int
		err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestLoadSample_RefusesLoadedDatabase(t *testing.T) {
	s := openSample(t)

	rw, err := Open(context.Background(), Options{Dialect: SQLite, DSN: s.opts.DSN, Writable: true}, nil)
	require.NoError(t, err)
	defer rw.Close()

	_, err = LoadSample(context.Background(), rw.DB())
	assert.ErrorContains(t, err, "already has")
}
