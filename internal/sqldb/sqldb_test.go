package sqldb

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b >= ?"
	require.Equal(t, q, SQLite.Rebind(q))
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b >= $2", Postgres.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite": SQLite, "SQLite3": SQLite, "postgres": Postgres, "pq": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseDialect("mysql")
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(t.Context(), SQLite, filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(t.Context(), "CREATE TABLE u (id TEXT PRIMARY KEY, k TEXT UNIQUE)")
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(), "INSERT INTO u VALUES ('1', 'a')")
	require.NoError(t, err)

	_, err = db.ExecContext(t.Context(), "INSERT INTO u VALUES ('2', 'a')")
	require.True(t, IsUniqueViolation(err), "unique: %v", err)
	_, err = db.ExecContext(t.Context(), "INSERT INTO u VALUES ('1', 'b')")
	require.True(t, IsUniqueViolation(err), "primary key: %v", err)

	require.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}
