package bolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/estests"
	"github.com/codewandler/esk/ports/kv"
)

func openDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEventStore(t *testing.T) {
	estests.RunStoreSuite(t, func(t *testing.T) es.EnvelopeStore {
		return openDB(t, filepath.Join(t.TempDir(), "events.db")).Events()
	})
}

func envelope(id string) es.Envelope {
	return es.Envelope{
		ID:         id,
		Name:       "inc",
		Type:       "counter.incremented",
		OccurredAt: time.Now().UTC(),
		Data:       []byte(`{"inc":1}`),
	}.Seal()
}

func TestEventStore_survivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	db, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = db.Events().Append(t.Context(), "counter-a", es.ExpectNoStream(), []es.Envelope{envelope("1"), envelope("2")})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openDB(t, path)
	read, err := db.Events().Read(t.Context(), "counter-a", es.ReadAll())
	require.NoError(t, err)
	require.Len(t, read, 2)
	require.NoError(t, read[1].Verify())

	_, err = db.Events().Append(t.Context(), "counter-a", es.ExpectExact(1), []es.Envelope{envelope("3")})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
}

func TestEventStore_ReadAll(t *testing.T) {
	s := openDB(t, filepath.Join(t.TempDir(), "events.db")).Events()

	_, err := s.Append(t.Context(), "counter-a", es.ExpectAny(), []es.Envelope{envelope("1")})
	require.NoError(t, err)
	_, err = s.Append(t.Context(), "counter-b", es.ExpectAny(), []es.Envelope{envelope("2"), envelope("3")})
	require.NoError(t, err)
	_, err = s.Append(t.Context(), "counter-a", es.ExpectAny(), []es.Envelope{envelope("4")})
	require.NoError(t, err)

	var ids []string
	require.NoError(t, s.ReadAll(t.Context(), 0, func(env es.Envelope) bool {
		ids = append(ids, env.ID)
		return true
	}))
	require.Equal(t, []string{"1", "2", "3", "4"}, ids)

	ids = nil
	require.NoError(t, s.ReadAll(t.Context(), 2, func(env es.Envelope) bool {
		ids = append(ids, env.ID)
		return len(ids) < 2
	}))
	require.Equal(t, []string{"2", "3"}, ids)
}

func TestGlobalPointer(t *testing.T) {
	stream, v, ok := parseGlobalPointer(globalPointer("patient-1", 42))
	require.True(t, ok)
	require.Equal(t, es.StreamID("patient-1"), stream)
	require.Equal(t, es.Version(42), v)

	_, _, ok = parseGlobalPointer([]byte("short"))
	require.False(t, ok)
}

func TestKvStore(t *testing.T) {
	store := openDB(t, filepath.Join(t.TempDir(), "kv.db")).KV()
	ctx := t.Context()

	_, err := store.Get(ctx, "p/1")
	require.ErrorIs(t, err, kv.ErrNotFound)

	rev, err := store.Update(ctx, "p/1", kv.Entry{Data: []byte(`1`)}, 0)
	require.NoError(t, err)
	require.NotZero(t, rev)

	_, err = store.Update(ctx, "p/1", kv.Entry{Data: []byte(`2`)}, 0)
	require.ErrorIs(t, err, kv.ErrRevisionMismatch)

	rev2, err := store.Update(ctx, "p/1", kv.Entry{Data: []byte(`2`)}, rev)
	require.NoError(t, err)
	require.Greater(t, rev2, rev)

	e, err := store.Get(ctx, "p/1")
	require.NoError(t, err)
	require.Equal(t, []byte(`2`), e.Data)
	require.Equal(t, rev2, e.Revision)

	require.NoError(t, store.Put(ctx, "p/2", kv.Entry{Data: []byte(`x`)}, kv.PutOptions{}))
	require.NoError(t, store.Put(ctx, "q/1", kv.Entry{Data: []byte(`y`)}, kv.PutOptions{}))
	keys, err := store.Keys(ctx, "p/")
	require.NoError(t, err)
	require.Equal(t, []string{"p/1", "p/2"}, keys)

	require.NoError(t, store.Delete(ctx, "p/1"))
	_, err = store.Get(ctx, "p/1")
	require.ErrorIs(t, err, kv.ErrNotFound)
}
