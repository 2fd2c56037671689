package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put(t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := s.Keys(t.Context(), "p")
	require.NoError(t, err)
	require.Equal(t, []string{"p2"}, keys)
}

func Test_MemoryUpdate(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	rev, err := Update(ctx, s, "k", "v1", 0)
	require.NoError(t, err)
	require.NotZero(t, rev)

	_, err = Update(ctx, s, "k", "again", 0)
	require.ErrorIs(t, err, ErrRevisionMismatch, "create-only write on existing key")

	_, err = Update(ctx, s, "k", "stale", rev+100)
	require.ErrorIs(t, err, ErrRevisionMismatch)

	rev2, err := Update(ctx, s, "k", "v2", rev)
	require.NoError(t, err)
	require.Greater(t, rev2, rev)

	v, gotRev, err := GetRev[string](ctx, s, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.Equal(t, rev2, gotRev)

	_, err = Update(ctx, s, "missing", "x", 7)
	require.ErrorIs(t, err, ErrRevisionMismatch)
}
