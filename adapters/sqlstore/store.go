// Package sqlstore keeps the event log in a single SQL table, on SQLite or
// Postgres. Appends run in one transaction; the (stream_id, version) unique
// key is the final arbiter between concurrent writers.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/internal/sqldb"
	"github.com/codewandler/esk/internal/sqlmigrate"
)

//go:embed migrations
var migrations embed.FS

const (
	selectHead = `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`

	insertEvent = `INSERT INTO events (
    stream_id, version, event_id, correlation_id, causation_id,
    name, type, occurred_at, data, metadata, checksum
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING seq`

	selectEvents = `SELECT seq, stream_id, version, event_id, correlation_id, causation_id,
    name, type, occurred_at, data, metadata, checksum
FROM events
WHERE stream_id = ? AND version >= ?
ORDER BY version ASC`
)

type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	log     *slog.Logger

	qHead, qInsert, qSelect string
}

// New returns a store on db. Call Migrate once before first use.
func New(db *sql.DB, dialect sqldb.Dialect, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log.With(slog.String("store", "sql"), slog.String("dialect", string(dialect))),
		qHead:   dialect.Rebind(selectHead),
		qInsert: dialect.Rebind(insertEvent),
		qSelect: dialect.Rebind(selectEvents),
	}
}

// Open opens dsn, applies the schema and returns a store owning the
// connection pool.
func Open(ctx context.Context, dialect sqldb.Dialect, dsn string, log *slog.Logger) (*Store, error) {
	db, err := sqldb.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	s := New(db, dialect, log)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := sqlmigrate.Apply(ctx, s.db, s.dialect, migrations, "migrations/"+string(s.dialect)); err != nil {
		return fmt.Errorf("migrate events schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append inserts envs under expected. With ExpectAny a unique violation
// caused by a concurrent writer is retried against the new head.
func (s *Store) Append(
	ctx context.Context,
	stream es.StreamID,
	expected es.ExpectedVersion,
	envs []es.Envelope,
) ([]es.Envelope, error) {
	if len(envs) == 0 {
		return nil, es.ErrStoreNoEvents
	}

	for attempt := 1; ; attempt++ {
		out, err := s.insert(ctx, stream, expected, envs)
		if !expected.IsAny() || !errors.Is(err, es.ErrConcurrencyConflict) {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.Debug("append raced, retrying", stream.SlogAttr(), slog.Int("attempt", attempt))
	}
}

func (s *Store) insert(
	ctx context.Context,
	stream es.StreamID,
	expected es.ExpectedVersion,
	envs []es.Envelope,
) (_ []es.Envelope, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var head es.Version
	if err = tx.QueryRowContext(ctx, s.qHead, string(stream)).Scan(&head); err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	if err = expected.Check(stream, head); err != nil {
		return nil, err
	}

	stored := make([]es.Envelope, 0, len(envs))
	for i, env := range envs {
		env.StreamID = stream
		env.Version = head + es.Version(i+1)
		if err = env.Validate(); err != nil {
			return nil, err
		}

		meta := []byte(env.Metadata)
		if meta == nil {
			meta = []byte{}
		}
		err = tx.QueryRowContext(ctx, s.qInsert,
			string(stream),
			int64(env.Version),
			env.ID,
			env.CorrelationID,
			env.CausationID,
			env.Name,
			env.Type,
			sqldb.ToMillis(env.OccurredAt),
			[]byte(env.Data),
			meta,
			env.Checksum,
		).Scan(&env.Seq)
		if sqldb.IsUniqueViolation(err) {
			// a concurrent writer took the version; report its head
			_ = tx.Rollback()
			return nil, s.conflict(ctx, stream, expected, head, err)
		}
		if err != nil {
			return nil, fmt.Errorf("insert event %d: %w", env.Version, err)
		}
		stored = append(stored, env)
	}

	if err = tx.Commit(); err != nil {
		if sqldb.IsUniqueViolation(err) {
			return nil, s.conflict(ctx, stream, expected, head, err)
		}
		return nil, fmt.Errorf("commit append: %w", err)
	}

	s.log.Debug(
		"append",
		stream.SlogAttr(),
		slog.Uint64("last_seq", stored[len(stored)-1].Seq),
		slog.Int("num_events", len(stored)),
	)
	return stored, nil
}

// conflict turns a unique violation into a ConflictError when the head has
// moved. A violation at an unchanged head is a duplicate event id.
func (s *Store) conflict(ctx context.Context, stream es.StreamID, expected es.ExpectedVersion, seen es.Version, cause error) error {
	var actual es.Version
	if err := s.db.QueryRowContext(ctx, s.qHead, string(stream)).Scan(&actual); err != nil {
		return &es.ConflictError{StreamID: stream, Expected: expected, Actual: seen}
	}
	if actual == seen {
		return fmt.Errorf("insert into %s: %w", stream, cause)
	}
	return &es.ConflictError{StreamID: stream, Expected: expected, Actual: actual}
}

func (s *Store) Read(ctx context.Context, stream es.StreamID, rng es.ReadRange) ([]es.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, s.qSelect, string(stream), int64(rng.From()))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []es.Envelope{}
	for rows.Next() {
		var (
			env         es.Envelope
			streamID    string
			occurredAt  int64
			data, meta  []byte
			version     int64
			correlation sql.NullString
			causation   sql.NullString
		)
		if err := rows.Scan(
			&env.Seq,
			&streamID,
			&version,
			&env.ID,
			&correlation,
			&causation,
			&env.Name,
			&env.Type,
			&occurredAt,
			&data,
			&meta,
			&env.Checksum,
		); err != nil {
			return nil, es.Corrupt(stream, "scan event: %v", err)
		}
		if version < 1 {
			return nil, es.Corrupt(stream, "invalid version %d", version)
		}
		env.StreamID = es.StreamID(streamID)
		env.Version = es.Version(version)
		env.CorrelationID = correlation.String
		env.CausationID = causation.String
		env.OccurredAt = sqldb.FromMillis(occurredAt)
		env.Data = data
		if len(meta) > 0 {
			env.Metadata = meta
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

var _ es.EnvelopeStore = (*Store)(nil)
