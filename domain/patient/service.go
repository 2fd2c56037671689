package patient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/proj"
)

type (
	serviceOptions struct {
		log       *slog.Logger
		metrics   es.ESMetrics
		cacheSize int
	}

	Option func(*serviceOptions)
)

func WithLog(l *slog.Logger) Option { return func(o *serviceOptions) { o.log = l } }

func WithMetrics(m es.ESMetrics) Option { return func(o *serviceOptions) { o.metrics = m } }

// WithStateCacheSize keeps up to n folded patients between commands. 0
// disables the cache.
func WithStateCacheSize(n int) Option { return func(o *serviceOptions) { o.cacheSize = n } }

// Service runs patient commands and keeps the read model in step: every
// successful append is projected before the command returns.
type Service struct {
	log       *slog.Logger
	events    es.EventStore[Event, Meta]
	handler   *es.CommandHandler[State, Command, Event, Meta]
	projector *proj.Projector[Patient, Command, Event, Meta]
	readModel ReadModel
}

func NewService(backend es.EnvelopeStore, readModel ReadModel, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("event store is required")
	}
	if readModel == nil {
		return nil, errors.New("read model is required")
	}

	o := serviceOptions{cacheSize: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = es.NopESMetrics()
	}

	var (
		agg    = Aggregate{}
		events = es.NewEventStore[Event, Meta](backend, Registry())
	)

	handlerOpts := []es.CommandHandlerOption{es.WithLog(o.log), es.WithMetrics(o.metrics)}
	if o.cacheSize > 0 {
		handlerOpts = append(handlerOpts, es.WithStateCacheLRU(o.cacheSize))
	}
	handler := es.NewCommandHandler[State, Command, Event, Meta](agg, events, handlerOpts...)

	projector, err := proj.NewProjector[Patient, Command, Event, Meta](agg, events, readModel,
		proj.WithName("patient"),
		proj.WithLog(o.log),
		proj.WithKeyFunc(KeyFromStream),
		proj.WithMetrics(o.metrics),
	)
	if err != nil {
		handler.Close()
		return nil, err
	}

	handler.OnAppended(func(ctx context.Context, stream es.StreamID, _ State, appended []es.EventRead[Event, Meta]) error {
		return projector.Project(ctx, stream, appended)
	})

	return &Service{
		log:       o.log.With(slog.String("service", "patient")),
		events:    events,
		handler:   handler,
		projector: projector,
		readModel: readModel,
	}, nil
}

// AddPatient registers a new patient. A nil id is replaced by a random one.
func (s *Service) AddPatient(ctx context.Context, cmd AddPatient, opts ...es.HandleOption) (PatientMeta, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	return s.dispatch(ctx, cmd, opts)
}

func (s *Service) UpdatePatient(ctx context.Context, cmd UpdatePatient, opts ...es.HandleOption) (PatientMeta, error) {
	return s.dispatch(ctx, cmd, opts)
}

func (s *Service) UpdatePatientAddress(ctx context.Context, cmd UpdatePatientAddress, opts ...es.HandleOption) (PatientMeta, error) {
	return s.dispatch(ctx, cmd, opts)
}

// dispatch returns the new head of the patient. If only the projection
// failed the head is returned along with the error.
func (s *Service) dispatch(ctx context.Context, cmd Command, opts []es.HandleOption) (PatientMeta, error) {
	id, err := IDFromStream(cmd.StreamID())
	if err != nil {
		return PatientMeta{}, err
	}

	appended, err := s.handler.Dispatch(ctx, cmd, opts...)
	if len(appended) == 0 {
		return PatientMeta{}, err
	}
	meta := PatientMeta{ID: id, StreamID: cmd.StreamID(), Version: es.LastVersion(appended)}
	if err != nil {
		s.log.Warn("read model behind", meta.StreamID.SlogAttr(), slog.Any("error", err))
	}
	return meta, err
}

// Get returns the patient from the read model.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (es.Maybe[proj.Snapshot[Patient]], error) {
	return s.projector.Get(ctx, StreamFor(id))
}

// Meta returns where the read model of id stands in the log.
func (s *Service) Meta(ctx context.Context, id uuid.UUID) (es.Maybe[PatientMeta], error) {
	loaded, err := s.Get(ctx, id)
	if err != nil {
		return es.None[PatientMeta](), err
	}
	snap, ok := loaded.Get()
	if !ok {
		return es.None[PatientMeta](), nil
	}
	return es.Some(PatientMeta{ID: id, StreamID: snap.StreamID, Version: snap.Version}), nil
}

func (s *Service) ListMeta(ctx context.Context) ([]PatientMeta, error) {
	return s.readModel.ListMeta(ctx)
}

// Replay folds the patient straight from the event log, bypassing the read
// model, and returns it with the version of its last event.
func (s *Service) Replay(ctx context.Context, id uuid.UUID) (State, es.Version, error) {
	events, err := s.events.Read(ctx, StreamFor(id), es.ReadAll())
	if err != nil {
		return es.None[Patient](), 0, err
	}
	agg := Aggregate{}
	return es.Fold(agg, agg.Init(), events), es.LastVersion(events), nil
}

// Sync brings the read model of id up to the head of its stream.
func (s *Service) Sync(ctx context.Context, id uuid.UUID) error {
	if err := s.projector.Sync(ctx, StreamFor(id)); err != nil {
		return fmt.Errorf("sync patient %s: %w", id, err)
	}
	return nil
}

// Close stops the projector and the state cache. The stores are owned by the
// caller.
func (s *Service) Close() {
	s.projector.Close()
	s.handler.Close()
}
