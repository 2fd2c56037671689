package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/codewandler/esk/ports/kv"
)

// KV returns the key-value view of the database. Values are stored with
// their revision as an 8-byte prefix; revisions come from the bucket
// sequence, so they grow across all keys.
func (d *DB) KV() *KvStore { return &KvStore{d: d} }

type KvStore struct {
	d *DB
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, _ kv.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.d.db.Update(func(tx *bbolt.Tx) error {
		_, err := put(tx.Bucket(kvBucket), key, entry.Data)
		return err
	})
}

func (k *KvStore) Get(ctx context.Context, key string) (entry kv.Entry, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	err = k.d.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(kvBucket).Get([]byte(key))
		if v == nil {
			return kv.ErrNotFound
		}
		if len(v) < 8 {
			return fmt.Errorf("value of %s is truncated", key)
		}
		entry.Revision = binary.BigEndian.Uint64(v[:8])
		// values are only valid for the life of the transaction
		entry.Data = bytes.Clone(v[8:])
		return nil
	})
	return
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(kvBucket).Delete([]byte(key))
	})
}

func (k *KvStore) Update(ctx context.Context, key string, entry kv.Entry, rev uint64) (newRev uint64, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	err = k.d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(kvBucket)
		var cur uint64
		if v := b.Get([]byte(key)); len(v) >= 8 {
			cur = binary.BigEndian.Uint64(v[:8])
		}
		if cur != rev {
			return kv.ErrRevisionMismatch
		}
		newRev, err = put(b, key, entry.Data)
		return err
	})
	if err != nil {
		newRev = 0
	}
	return
}

// Keys lists the keys starting with prefix in byte order.
func (k *KvStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := k.d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(kvBucket).Cursor()
		p := []byte(prefix)
		for key, _ := c.Seek(p); key != nil && bytes.HasPrefix(key, p); key, _ = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			out = append(out, string(key))
		}
		return nil
	})
	return out, err
}

func put(b *bbolt.Bucket, key string, data []byte) (uint64, error) {
	if b == nil {
		return 0, errors.New("kv bucket is missing")
	}
	rev, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return rev, b.Put([]byte(key), append(itob(rev), data...))
}

var _ kv.Store = (*KvStore)(nil)
