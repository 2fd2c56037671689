package proj

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codewandler/esk/core/es"
)

// Snapshot is a read-model record: the folded state of one entity stamped
// with the version of the last event folded into it.
type Snapshot[T any] struct {
	Key      string      `json:"key"`
	StreamID es.StreamID `json:"stream_id"`
	Version  es.Version  `json:"version"`
	State    T           `json:"state"`
}

func (s Snapshot[T]) logAttrs() slog.Attr {
	return slog.Group("snapshot", slog.String("key", s.Key), s.StreamID.SlogAttr(), s.Version.SlogAttr())
}

// SnapshotStore persists read-model snapshots.
//
// Save writes snap in a single transaction covering the entity and all records
// it owns, and only if the stored version is lower than snap.Version. It
// reports whether anything was written; an older or equal snap is not an error.
type SnapshotStore[T any] interface {
	Load(ctx context.Context, key string) (es.Maybe[Snapshot[T]], error)
	Save(ctx context.Context, snap Snapshot[T]) (bool, error)
}

// InMemoryStore is a SnapshotStore for tests/dev.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot[T]
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{snaps: map[string]Snapshot[T]{}}
}

func (m *InMemoryStore[T]) Load(ctx context.Context, key string) (es.Maybe[Snapshot[T]], error) {
	if err := ctx.Err(); err != nil {
		return es.None[Snapshot[T]](), err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if !ok {
		return es.None[Snapshot[T]](), nil
	}
	return es.Some(s), nil
}

func (m *InMemoryStore[T]) Save(ctx context.Context, snap Snapshot[T]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.snaps[snap.Key]; ok && cur.Version >= snap.Version {
		return false, nil
	}
	m.snaps[snap.Key] = snap
	return true, nil
}

// Keys lists the stored keys.
func (m *InMemoryStore[T]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.snaps))
	for k := range m.snaps {
		out = append(out, k)
	}
	return out
}

var _ SnapshotStore[any] = (*InMemoryStore[any])(nil)
