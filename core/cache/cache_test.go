package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	n := NewNop()
	n.Put("patient-1", 1)
	_, ok := n.Get("patient-1")
	require.False(t, ok)
	n.Delete("patient-1")
}

func TestTyped(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 4})
	t.Cleanup(l.Close)

	ints := NewTyped[int](l)
	ints.Put("a", 7)
	v, ok := ints.Get("a")
	require.True(t, ok)
	require.Equal(t, 7, v)

	l.Put("b", "not an int")
	v, ok = ints.Get("b")
	require.False(t, ok, "wrong type reads as a miss")
	require.Zero(t, v)

	ints.Delete("a")
	_, ok = ints.Get("a")
	require.False(t, ok)
}
