// Package bootstrap assembles the configured event store and read model.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codewandler/esk/adapters/bolt"
	"github.com/codewandler/esk/adapters/nats"
	"github.com/codewandler/esk/adapters/sqlstore"
	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/domain/patient"
	"github.com/codewandler/esk/domain/patient/patientsql"
	"github.com/codewandler/esk/internal/config"
	"github.com/codewandler/esk/internal/sqldb"
	"github.com/codewandler/esk/ports/kv"
)

const patientBucket = "esk_patients"

// Runtime owns the stores opened for one process.
type Runtime struct {
	Config    config.Config
	Log       *slog.Logger
	Metrics   es.ESMetrics
	Events    es.EnvelopeStore
	ReadModel patient.ReadModel

	bolt    *bolt.DB
	connect nats.Connector
	closers []func() error
}

// Open builds the event store selected by cfg, instrumented with m, and the
// patient read model. m may be nil.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger, m es.ESMetrics) (_ *Runtime, err error) {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = es.NopESMetrics()
	}
	r := &Runtime{Config: cfg, Log: log, Metrics: m}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	backend, err := r.openEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s event store: %w", cfg.EventBackend, err)
	}
	r.Events = es.InstrumentStore(backend, m)

	if r.ReadModel, err = r.openReadModel(ctx); err != nil {
		return nil, fmt.Errorf("open read model: %w", err)
	}

	log.Info("runtime ready",
		slog.String("event_backend", string(cfg.EventBackend)),
		slog.String("read_driver", cfg.ReadDriver),
	)
	return r, nil
}

func (r *Runtime) openEvents(ctx context.Context) (es.EnvelopeStore, error) {
	cfg := r.Config
	switch cfg.EventBackend {
	case config.BackendMemory:
		return es.NewInMemoryStore(), nil

	case config.BackendSQL:
		dialect, err := sqldb.ParseDialect(cfg.EventsDriver)
		if err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(ctx, dialect, cfg.EventsDSN, r.Log)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, s.Close)
		return s, nil

	case config.BackendBolt:
		db, err := bolt.Open(cfg.BoltPath, bolt.Options{Log: r.Log})
		if err != nil {
			return nil, err
		}
		r.bolt = db
		r.closers = append(r.closers, db.Close)
		return db.Events(), nil

	case config.BackendNATS:
		r.connect = nats.ReuseConnection(nats.ConnectURL(cfg.NATSURL, r.Log))
		s, err := nats.NewEventStore(nats.EventStoreConfig{Connect: r.connect, Log: r.Log})
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown event backend %q", cfg.EventBackend)
}

func (r *Runtime) openReadModel(ctx context.Context) (patient.ReadModel, error) {
	cfg := r.Config
	if cfg.ReadDriver != "kv" {
		dialect, err := sqldb.ParseDialect(cfg.ReadDriver)
		if err != nil {
			return nil, err
		}
		s, err := patientsql.Open(ctx, dialect, cfg.ReadDSN, r.Log)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, s.Close)
		return s, nil
	}

	var store kv.Store
	switch {
	case r.bolt != nil:
		store = r.bolt.KV()
	case r.connect != nil:
		s, err := nats.NewKvStore(ctx, nats.KvConfig{Connect: r.connect, Bucket: patientBucket})
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() error { s.Close(); return nil })
		store = s
	default:
		store = kv.NewMemStore()
	}
	return patient.NewKVReadModel(store)
}

// PatientService wires the patient service onto the runtime stores.
func (r *Runtime) PatientService() (*patient.Service, error) {
	return patient.NewService(r.Events, r.ReadModel,
		patient.WithLog(r.Log),
		patient.WithMetrics(r.Metrics),
		patient.WithStateCacheSize(r.Config.StateCacheSize),
	)
}

// Close releases everything Open acquired, newest first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
