package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_index.sql": {Data: []byte("CREATE INDEX idx_things_name ON things(name);")},
		"migrations/001_create.sql":    {Data: []byte("CREATE TABLE things (name TEXT);")},
		"migrations/README.md":         {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"migrations/create.sql": {Data: []byte("SELECT 1;")},
	}, "migrations")
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/001_b.sql": {Data: []byte("SELECT 1;")},
	}, "migrations")
	assert.Error(t, err)
}

func TestRunMigrations_AppliesOnce(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"migrations/001_create.sql": {Data: []byte("CREATE TABLE things (name TEXT);")},
	}

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(fsys, "migrations"))
	require.NoError(t, migrator.RunMigrations(fsys, "migrations"), "re-running must skip applied migrations")

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)

	_, err = db.Exec("INSERT INTO things (name) VALUES ('ok')")
	assert.NoError(t, err)
}
