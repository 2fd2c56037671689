package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/ports/kv"
)

func TestKV(t *testing.T) {
	type fooBar struct {
		Fruit string
		Count int
	}
	s, err := NewKvStore(t.Context(), KvConfig{
		Bucket:  "fruits",
		Connect: StartTestServer(t),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ctx := t.Context()

	_, err = kv.Get[fooBar](ctx, s, "apple")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, kv.Put(ctx, s, "apple", fooBar{Fruit: "apple", Count: 10}, kv.PutOptions{}))
	v, rev, err := kv.GetRev[fooBar](ctx, s, "apple")
	require.NoError(t, err)
	require.Equal(t, fooBar{Fruit: "apple", Count: 10}, v)

	_, err = kv.Update(ctx, s, "apple", fooBar{Fruit: "apple"}, 0)
	require.ErrorIs(t, err, kv.ErrRevisionMismatch, "create on existing key")
	_, err = kv.Update(ctx, s, "apple", fooBar{Fruit: "apple"}, rev+10)
	require.ErrorIs(t, err, kv.ErrRevisionMismatch)

	newRev, err := kv.Update(ctx, s, "apple", fooBar{Fruit: "apple", Count: 11}, rev)
	require.NoError(t, err)
	require.Greater(t, newRev, rev)

	_, err = kv.Update(ctx, s, "pear", fooBar{Fruit: "pear"}, 0)
	require.NoError(t, err)

	keys, err := s.Keys(ctx, "ap")
	require.NoError(t, err)
	require.Equal(t, []string{"apple"}, keys)

	require.NoError(t, s.Delete(ctx, "apple"))
	_, err = kv.Get[fooBar](ctx, s, "apple")
	require.ErrorIs(t, err, kv.ErrNotFound)

	// a deleted key can be created again
	_, err = kv.Update(ctx, s, "apple", fooBar{Fruit: "apple"}, 0)
	require.NoError(t, err)
}
