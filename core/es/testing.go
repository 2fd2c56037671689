package es

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

// TestingStore wraps an EnvelopeStore for tests. It records the ranges read
// and lets a test rewrite what the backend returns or fail appends.
type TestingStore struct {
	EnvelopeStore

	mu        sync.Mutex
	reads     []ReadRange
	OnRead    func(stream StreamID, envs []Envelope) []Envelope
	AppendErr error
}

// NewTestingStore wraps a fresh InMemoryStore.
func NewTestingStore() *TestingStore {
	return &TestingStore{EnvelopeStore: NewInMemoryStore()}
}

func (s *TestingStore) Read(ctx context.Context, stream StreamID, rng ReadRange) ([]Envelope, error) {
	s.mu.Lock()
	s.reads = append(s.reads, rng)
	onRead := s.OnRead
	s.mu.Unlock()

	envs, err := s.EnvelopeStore.Read(ctx, stream, rng)
	if err != nil || onRead == nil {
		return envs, err
	}
	return onRead(stream, envs), nil
}

func (s *TestingStore) Append(ctx context.Context, stream StreamID, expected ExpectedVersion, envs []Envelope) ([]Envelope, error) {
	s.mu.Lock()
	err := s.AppendErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.EnvelopeStore.Append(ctx, stream, expected, envs)
}

// Reads returns the ranges read so far and resets the record.
func (s *TestingStore) Reads() []ReadRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reads
	s.reads = nil
	return out
}

// RequireVersions asserts events carry exactly the versions want, in order.
func RequireVersions[E, M any](t *testing.T, events []EventRead[E, M], want ...Version) {
	t.Helper()
	got := make([]Version, len(events))
	for i, ev := range events {
		got[i] = ev.Version
	}
	if len(want) == 0 {
		want = []Version{}
	}
	require.Equal(t, want, got)
}
