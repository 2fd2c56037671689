package sqlmigrate

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/internal/sqldb"
)

func TestApply(t *testing.T) {
	db, err := sqldb.Open(t.Context(), sqldb.SQLite, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"m/001_init.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE a (id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE a;\n")},
		"m/002_more.sql":  {Data: []byte("CREATE TABLE b (id TEXT PRIMARY KEY);")},
		"m/README.md":     {Data: []byte("ignored")},
		"m/003_empty.sql": {Data: []byte("-- +migrate Up\n-- +migrate Down\n")},
	}

	require.NoError(t, Apply(t.Context(), db, sqldb.SQLite, fsys, "m"))
	// second run is a no-op even though CREATE TABLE would fail now
	require.NoError(t, Apply(t.Context(), db, sqldb.SQLite, fsys, "m"))

	var n int
	require.NoError(t, db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	require.Equal(t, 2, n)

	_, err = db.ExecContext(t.Context(), "INSERT INTO b (id) VALUES ('x')")
	require.NoError(t, err)
}

func TestExtractUpMigration(t *testing.T) {
	require.Equal(t, "\nUP\n", ExtractUpMigration("-- +migrate Up\nUP\n-- +migrate Down\nDOWN"))
	require.Equal(t, "PLAIN", ExtractUpMigration("PLAIN"))
}
