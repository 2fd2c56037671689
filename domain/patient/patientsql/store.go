// Package patientsql is the relational patient read model: a patient table
// and an address table owned by it, written together in one transaction.
package patientsql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/proj"
	"github.com/codewandler/esk/domain/patient"
	"github.com/codewandler/esk/internal/sqldb"
	"github.com/codewandler/esk/internal/sqlmigrate"
)

//go:embed migrations
var migrations embed.FS

const (
	upsertPatient = `INSERT INTO patient (id, stream_id, version, name, age, phone, email)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    stream_id = excluded.stream_id,
    version   = excluded.version,
    name      = excluded.name,
    age       = excluded.age,
    phone     = excluded.phone,
    email     = excluded.email
WHERE patient.version < excluded.version`

	upsertAddress = `INSERT INTO address (patient_id, street, city, state, zip)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (patient_id) DO UPDATE SET
    street = excluded.street,
    city   = excluded.city,
    state  = excluded.state,
    zip    = excluded.zip`

	selectPatient = `SELECT p.id, p.stream_id, p.version, p.name, p.age, p.phone, p.email,
    a.street, a.city, a.state, a.zip
FROM patient p
LEFT JOIN address a ON a.patient_id = p.id
WHERE p.id = ?`

	selectMeta = `SELECT id, stream_id, version FROM patient ORDER BY id`
)

type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	log     *slog.Logger

	qUpsertPatient, qUpsertAddress, qSelectPatient string
}

func New(db *sql.DB, dialect sqldb.Dialect, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:             db,
		dialect:        dialect,
		log:            log.With(slog.String("read_model", "patient_sql")),
		qUpsertPatient: dialect.Rebind(upsertPatient),
		qUpsertAddress: dialect.Rebind(upsertAddress),
		qSelectPatient: dialect.Rebind(selectPatient),
	}
}

// Open opens dsn, applies the schema and returns a store owning the pool.
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
		return fmt.Errorf("migrate patient schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save upserts the patient and its address. Nothing is written when the
// stored version is not lower than snap.Version.
func (s *Store) Save(ctx context.Context, snap proj.Snapshot[patient.Patient]) (_ bool, err error) {
	p := snap.State
	if snap.Key != p.ID.String() {
		return false, fmt.Errorf("snapshot key %q does not match patient %s", snap.Key, p.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.qUpsertPatient,
		snap.Key,
		string(snap.StreamID),
		int64(snap.Version),
		p.Name,
		p.Age,
		p.Phone,
		p.Email,
	)
	if err != nil {
		return false, fmt.Errorf("upsert patient %s: %w", snap.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert patient %s: %w", snap.Key, err)
	}
	if n == 0 {
		return false, tx.Rollback()
	}

	if _, err = tx.ExecContext(ctx, s.qUpsertAddress,
		snap.Key,
		p.Address.Street,
		p.Address.City,
		p.Address.State,
		p.Address.Zip,
	); err != nil {
		return false, fmt.Errorf("upsert address %s: %w", snap.Key, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit save: %w", err)
	}
	s.log.Debug("saved", slog.String("id", snap.Key), snap.Version.SlogAttr())
	return true, nil
}

func (s *Store) Load(ctx context.Context, key string) (es.Maybe[proj.Snapshot[patient.Patient]], error) {
	var (
		snap                     proj.Snapshot[patient.Patient]
		id, stream               string
		version                  int64
		street, city, state, zip sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.qSelectPatient, key).Scan(
		&id,
		&stream,
		&version,
		&snap.State.Name,
		&snap.State.Age,
		&snap.State.Phone,
		&snap.State.Email,
		&street,
		&city,
		&state,
		&zip,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return es.None[proj.Snapshot[patient.Patient]](), nil
	}
	if err != nil {
		return es.None[proj.Snapshot[patient.Patient]](), fmt.Errorf("load patient %s: %w", key, err)
	}

	if snap.State.ID, err = uuid.Parse(id); err != nil {
		return es.None[proj.Snapshot[patient.Patient]](), fmt.Errorf("load patient %s: %w", key, err)
	}
	snap.Key = id
	snap.StreamID = es.StreamID(stream)
	snap.Version = es.Version(version)
	snap.State.Address = patient.Address{
		Street: street.String,
		City:   city.String,
		State:  state.String,
		Zip:    zip.String,
	}
	return es.Some(snap), nil
}

func (s *Store) ListMeta(ctx context.Context) ([]patient.PatientMeta, error) {
	rows, err := s.db.QueryContext(ctx, selectMeta)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []patient.PatientMeta
	for rows.Next() {
		var (
			id, stream string
			version    int64
		)
		if err := rows.Scan(&id, &stream, &version); err != nil {
			return nil, fmt.Errorf("list patients: %w", err)
		}
		pid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("list patients: %w", err)
		}
		out = append(out, patient.PatientMeta{ID: pid, StreamID: es.StreamID(stream), Version: es.Version(version)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

var _ patient.ReadModel = (*Store)(nil)
