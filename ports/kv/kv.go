// Package kv is the key-value port used for document-style read models.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// Entry is a stored value. Revision is assigned by the store and changes on
// every write to the key.
type Entry struct {
	Data     []byte
	Meta     map[string]any
	Revision uint64
}

type PutOptions struct {
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
	// Update writes entry only if the current revision of key is rev, where
	// rev 0 means the key must not exist. It returns the new revision or
	// ErrRevisionMismatch.
	Update(ctx context.Context, key string, entry Entry, rev uint64) (uint64, error)
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	out, _, err = GetRev[T](ctx, store, key)
	return
}

// GetRev is Get that also returns the revision of the entry.
func GetRev[T any](ctx context.Context, store Store, key string) (out T, rev uint64, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	if err = json.Unmarshal(entry.Data, &out); err != nil {
		return
	}
	return out, entry.Revision, nil
}

// Update marshals v and writes it with Store.Update.
func Update[T any](ctx context.Context, store Store, key string, v T, rev uint64) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return store.Update(ctx, key, Entry{Data: data}, rev)
}
