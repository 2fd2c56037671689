package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemStore struct {
	mu   sync.RWMutex
	rev  uint64
	data map[string]Entry
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]Entry{}}
}

func (m *MemStore) Put(ctx context.Context, key string, entry Entry, _ PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rev++
	entry.Revision = m.rev
	m.data[key] = entry
	return nil
}

func (m *MemStore) Get(ctx context.Context, key string) (entry Entry, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ok bool
	entry, ok = m.data[key]
	if !ok {
		return entry, ErrNotFound
	}
	return entry, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) Update(ctx context.Context, key string, entry Entry, rev uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[key]
	switch {
	case !ok && rev != 0, ok && cur.Revision != rev:
		return 0, ErrRevisionMismatch
	}
	m.rev++
	entry.Revision = m.rev
	m.data[key] = entry
	return entry.Revision, nil
}

func (m *MemStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ Store  = (*MemStore)(nil)
	_ Lister = (*MemStore)(nil)
)
