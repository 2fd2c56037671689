package es

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// InMemoryStore is a simple, correct (optimistic) store for tests/dev.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     uint64
	streams map[StreamID][]Envelope
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[StreamID][]Envelope{},
	}
}

func (s *InMemoryStore) Read(ctx context.Context, stream StreamID, rng ReadRange) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[stream]
	out := make([]Envelope, 0, len(events))
	for _, e := range events {
		if !rng.Includes(e.Version) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) Append(
	ctx context.Context,
	stream StreamID,
	expected ExpectedVersion,
	events []Envelope,
) ([]Envelope, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		curStream = s.streams[stream]
		head      Version
	)
	if len(curStream) > 0 {
		head = curStream[len(curStream)-1].Version
	}
	if err := expected.Check(stream, head); err != nil {
		return nil, err
	}

	stored := make([]Envelope, 0, len(events))
	seq := s.seq
	for i, e := range events {
		e.StreamID = stream
		e.Version = head + Version(i+1)
		if err := e.Validate(); err != nil {
			return nil, err
		}
		seq++
		e.Seq = seq
		stored = append(stored, e)
	}
	s.seq = seq
	s.streams[stream] = append(curStream, stored...)

	s.log.Debug(
		"append",
		stream.SlogAttr(),
		slog.Uint64("last_seq", seq),
		slog.Int("num_events", len(stored)),
	)

	return slices.Clone(stored), nil
}

// Head returns the current head version of stream.
func (s *InMemoryStore) Head(stream StreamID) Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.streams[stream]
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Version
}

var _ EnvelopeStore = (*InMemoryStore)(nil)
