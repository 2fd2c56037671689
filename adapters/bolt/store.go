// Package bolt keeps the event log and key-value documents in a single
// bbolt file. bbolt allows one writer at a time, so every append is
// serialized and checked against the stream head inside its transaction.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/internal/codec"
)

var (
	streamsBucket = []byte("streams")
	// globalBucket maps the global sequence to "<stream>\x00<version>".
	globalBucket = []byte("global_event_order")
	kvBucket     = []byte("kv")
)

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

type Options struct {
	Log   *slog.Logger
	Codec codec.Codec
	// Timeout waits for the file lock held by another process.
	Timeout time.Duration
}

type DB struct {
	db    *bbolt.DB
	log   *slog.Logger
	codec codec.Codec
}

// Open opens or creates the database file at path.
func Open(path string, opts Options) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSON{}
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{streamsBucket, globalBucket, kvBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{
		db:    db,
		log:   opts.Log.With(slog.String("store", "bolt"), slog.String("path", cleanPath)),
		codec: opts.Codec,
	}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Events returns the event store view of the database.
func (d *DB) Events() *EventStore { return &EventStore{d: d} }

// EventStore stores each stream in a nested bucket keyed by version.
type EventStore struct {
	d *DB
}

func (s *EventStore) Append(
	ctx context.Context,
	stream es.StreamID,
	expected es.ExpectedVersion,
	envs []es.Envelope,
) ([]es.Envelope, error) {
	if len(envs) == 0 {
		return nil, es.ErrStoreNoEvents
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stream == "" {
		return nil, errors.New("stream id is empty")
	}

	var stored []es.Envelope
	err := s.d.db.Update(func(tx *bbolt.Tx) error {
		streams := tx.Bucket(streamsBucket)
		global := tx.Bucket(globalBucket)
		if streams == nil || global == nil {
			return errors.New("event buckets are missing")
		}

		var head es.Version
		if b := streams.Bucket([]byte(stream)); b != nil {
			if k, _ := b.Cursor().Last(); k != nil {
				head = es.Version(binary.BigEndian.Uint64(k))
			}
		}
		if err := expected.Check(stream, head); err != nil {
			return err
		}

		evBucket, err := streams.CreateBucketIfNotExists([]byte(stream))
		if err != nil {
			return fmt.Errorf("create stream bucket: %w", err)
		}

		stored = make([]es.Envelope, 0, len(envs))
		for i, env := range envs {
			env.StreamID = stream
			env.Version = head + es.Version(i+1)
			if err := env.Validate(); err != nil {
				return err
			}

			if env.Seq, err = global.NextSequence(); err != nil {
				return fmt.Errorf("next global sequence: %w", err)
			}
			value, err := s.d.codec.Marshal(env)
			if err != nil {
				return fmt.Errorf("encode event %d: %w", env.Version, err)
			}
			if err := evBucket.Put(itob(uint64(env.Version)), value); err != nil {
				return fmt.Errorf("put event %d: %w", env.Version, err)
			}
			if err := global.Put(itob(env.Seq), globalPointer(stream, env.Version)); err != nil {
				return fmt.Errorf("put global pointer %d: %w", env.Seq, err)
			}
			stored = append(stored, env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.d.log.Debug(
		"append",
		stream.SlogAttr(),
		slog.Uint64("last_seq", stored[len(stored)-1].Seq),
		slog.Int("num_events", len(stored)),
	)
	return stored, nil
}

func (s *EventStore) Read(ctx context.Context, stream es.StreamID, rng es.ReadRange) ([]es.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []es.Envelope{}
	err := s.d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(streamsBucket).Bucket([]byte(stream))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(itob(uint64(rng.From()))); k != nil; k, v = c.Next() {
			var env es.Envelope
			if err := s.d.codec.Unmarshal(v, &env); err != nil {
				return es.Corrupt(stream, "decode event at key %x: %v", k, err)
			}
			if uint64(env.Version) != binary.BigEndian.Uint64(k) {
				return es.Corrupt(stream, "event version %d stored under key %d", env.Version, binary.BigEndian.Uint64(k))
			}
			out = append(out, env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadAll calls fn for every event with a global sequence of at least from,
// in append order, until fn returns false.
func (s *EventStore) ReadAll(ctx context.Context, from uint64, fn func(es.Envelope) bool) error {
	return s.d.db.View(func(tx *bbolt.Tx) error {
		streams := tx.Bucket(streamsBucket)
		c := tx.Bucket(globalBucket).Cursor()
		for k, ptr := c.Seek(itob(from)); k != nil; k, ptr = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			stream, version, ok := parseGlobalPointer(ptr)
			if !ok {
				return es.Corrupt("", "invalid global pointer at %d", binary.BigEndian.Uint64(k))
			}
			b := streams.Bucket([]byte(stream))
			if b == nil {
				return es.Corrupt(stream, "stream bucket missing for seq %d", binary.BigEndian.Uint64(k))
			}
			var env es.Envelope
			if err := s.d.codec.Unmarshal(b.Get(itob(uint64(version))), &env); err != nil {
				return es.Corrupt(stream, "decode event %d: %v", version, err)
			}
			if !fn(env) {
				return nil
			}
		}
		return nil
	})
}

func globalPointer(stream es.StreamID, v es.Version) []byte {
	return append(append([]byte(stream), 0), itob(uint64(v))...)
}

func parseGlobalPointer(ptr []byte) (es.StreamID, es.Version, bool) {
	if len(ptr) < 10 || ptr[len(ptr)-9] != 0 {
		return "", 0, false
	}
	return es.StreamID(ptr[:len(ptr)-9]), es.Version(binary.BigEndian.Uint64(ptr[len(ptr)-8:])), true
}

var _ es.EnvelopeStore = (*EventStore)(nil)
