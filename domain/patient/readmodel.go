package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es/proj"
	"github.com/codewandler/esk/ports/kv"
)

// ReadModel is where the projector keeps patients. Keys are patient ids.
type ReadModel interface {
	proj.SnapshotStore[Patient]
	ListMeta(ctx context.Context) ([]PatientMeta, error)
}

// KVReadModel keeps each patient as one document in a key-value store that
// can list its keys.
type KVReadModel struct {
	*proj.KVStore[Patient]
}

func NewKVReadModel(store kv.Store) (*KVReadModel, error) {
	if _, ok := store.(kv.Lister); !ok {
		return nil, fmt.Errorf("%T cannot list keys", store)
	}
	return &KVReadModel{KVStore: proj.NewKVStore[Patient](store, "patient.")}, nil
}

func (m *KVReadModel) ListMeta(ctx context.Context) ([]PatientMeta, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PatientMeta, 0, len(keys))
	for _, key := range keys {
		loaded, err := m.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		snap, ok := loaded.Get()
		if !ok {
			// deleted since listing
			continue
		}
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("patient key %q: %w", key, err)
		}
		out = append(out, PatientMeta{ID: id, StreamID: snap.StreamID, Version: snap.Version})
	}
	return out, nil
}

var _ ReadModel = (*KVReadModel)(nil)
