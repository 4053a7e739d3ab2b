package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_RunPortalMigrations(t *testing.T) {
	db := openTestDB(t)

	m := NewMigrator(db)
	for _, migration := range GetPortalMigrations() {
		m.AddMigration(migration)
	}
	require.NoError(t, m.RunMigrations())

	version, err := m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Both tables are queryable.
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n))
	assert.Equal(t, 0, n)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM voucher_rolls").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestMigrator_RunMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)

	m := NewMigrator(db)
	for _, migration := range GetPortalMigrations() {
		m.AddMigration(migration)
	}
	require.NoError(t, m.RunMigrations())
	require.NoError(t, m.RunMigrations())

	version, err := m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}
