package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/esk/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string
	// TTL expires every key of the bucket. Per-write TTLs are not supported.
	TTL time.Duration
}

// KvStore implements kv.Store on a JetStream key-value bucket. Entry
// revisions are the bucket revisions, so Update is a server side
// compare-and-set.
type KvStore struct {
	kv    jetstream.KeyValue
	close Release
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	nc, closeConn, err := orDefault(cfg.Connect)()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeConn()
		return nil, err
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		Storage: jetstream.FileStorage,
		TTL:     cfg.TTL,
	})
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}

	return &KvStore{kv: bucket, close: closeConn}, nil
}

func (k *KvStore) Close() { k.close() }

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, _ kv.PutOptions) error {
	if _, err := k.kv.Put(ctx, key, entry.Data); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return kv.Entry{}, kv.ErrNotFound
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return kv.Entry{Data: v.Value(), Revision: v.Revision()}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	err := k.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Update(ctx context.Context, key string, entry kv.Entry, rev uint64) (uint64, error) {
	var (
		newRev uint64
		err    error
	)
	if rev == 0 {
		newRev, err = k.kv.Create(ctx, key, entry.Data)
	} else {
		newRev, err = k.kv.Update(ctx, key, entry.Data, rev)
	}
	switch {
	case errors.Is(err, jetstream.ErrKeyExists), isWrongLastSequence(err):
		return 0, kv.ErrRevisionMismatch
	case err != nil:
		return 0, fmt.Errorf("failed to update %s: %w", key, err)
	}
	return newRev, nil
}

// Keys lists the keys of the bucket starting with prefix.
func (k *KvStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := k.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	var out []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

var _ kv.Store = (*KvStore)(nil)
