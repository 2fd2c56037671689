package proj

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/ports/kv"
)

// KVStore keeps each snapshot as one JSON document in a kv.Store. The entity
// and everything it owns live in the same document, so a single
// compare-and-set write is the transaction.
type KVStore[T any] struct {
	kv       kv.Store
	prefix   string
	maxTries int
}

func NewKVStore[T any](store kv.Store, prefix string) *KVStore[T] {
	return &KVStore[T]{kv: store, prefix: prefix, maxTries: 8}
}

func (s *KVStore[T]) key(k string) string { return s.prefix + k }

func (s *KVStore[T]) Load(ctx context.Context, key string) (es.Maybe[Snapshot[T]], error) {
	snap, err := kv.Get[Snapshot[T]](ctx, s.kv, s.key(key))
	if errors.Is(err, kv.ErrNotFound) {
		return es.None[Snapshot[T]](), nil
	}
	if err != nil {
		return es.None[Snapshot[T]](), fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	return es.Some(snap), nil
}

func (s *KVStore[T]) Save(ctx context.Context, snap Snapshot[T]) (bool, error) {
	k := s.key(snap.Key)
	for range s.maxTries {
		cur, rev, err := kv.GetRev[Snapshot[T]](ctx, s.kv, k)
		switch {
		case errors.Is(err, kv.ErrNotFound):
			rev = 0
		case err != nil:
			return false, fmt.Errorf("failed to load snapshot %s: %w", snap.Key, err)
		case cur.Version >= snap.Version:
			return false, nil
		}

		_, err = kv.Update(ctx, s.kv, k, snap, rev)
		if errors.Is(err, kv.ErrRevisionMismatch) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to save snapshot %s: %w", snap.Key, err)
		}
		return true, nil
	}
	return false, fmt.Errorf("failed to save snapshot %s: %w", snap.Key, kv.ErrRevisionMismatch)
}

// Keys lists the snapshot keys. The underlying store must implement kv.Lister.
func (s *KVStore[T]) Keys(ctx context.Context) ([]string, error) {
	lister, ok := s.kv.(kv.Lister)
	if !ok {
		return nil, fmt.Errorf("%T cannot list keys", s.kv)
	}
	keys, err := lister.Keys(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	return keys, nil
}

var _ SnapshotStore[any] = (*KVStore[any])(nil)
