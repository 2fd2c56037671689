package patient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/proj"
	"github.com/codewandler/esk/domain/patient"
	"github.com/codewandler/esk/ports/kv"
)

var home = patient.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"}

func newService(t *testing.T, backend es.EnvelopeStore, rm patient.ReadModel) *patient.Service {
	t.Helper()
	svc, err := patient.NewService(backend, rm)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func newKVReadModel(t *testing.T) *patient.KVReadModel {
	t.Helper()
	rm, err := patient.NewKVReadModel(kv.NewMemStore())
	require.NoError(t, err)
	return rm
}

func addAda(t *testing.T, svc *patient.Service) patient.PatientMeta {
	t.Helper()
	meta, err := svc.AddPatient(t.Context(), patient.AddPatient{
		Name: "Ada", Address: home, Age: 36, Phone: "555-0100", Email: "ada@example.com",
	})
	require.NoError(t, err)
	return meta
}

func TestService_roundTrip(t *testing.T) {
	svc := newService(t, es.NewInMemoryStore(), newKVReadModel(t))
	ctx := t.Context()

	meta := addAda(t, svc)
	require.NotEqual(t, uuid.Nil, meta.ID)
	require.Equal(t, patient.StreamFor(meta.ID), meta.StreamID)
	require.Equal(t, es.Version(1), meta.Version)

	meta, err := svc.UpdatePatient(ctx, patient.UpdatePatient{
		ID: meta.ID, Version: meta.Version, Name: "Ada L", Age: 37, Phone: "555-0199", Email: "ada@l.org",
	})
	require.NoError(t, err)
	require.Equal(t, es.Version(2), meta.Version)

	got, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	snap, ok := got.Get()
	require.True(t, ok)
	require.Equal(t, es.Version(2), snap.Version)
	require.Equal(t, "Ada L", snap.State.Name)
	require.Equal(t, int32(37), snap.State.Age)
	require.Equal(t, home, snap.State.Address)

	replayed, head, err := svc.Replay(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, es.Version(2), head)
	require.Equal(t, es.Some(snap.State), replayed)

	all, err := svc.ListMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, []patient.PatientMeta{meta}, all)
}

func TestService_rejections(t *testing.T) {
	svc := newService(t, es.NewInMemoryStore(), newKVReadModel(t))
	ctx := t.Context()
	meta := addAda(t, svc)

	_, err := svc.UpdatePatientAddress(ctx, patient.UpdatePatientAddress{ID: meta.ID, Version: 1, Address: home})
	require.ErrorIs(t, err, es.ErrValidation)

	_, err = svc.UpdatePatient(ctx, patient.UpdatePatient{ID: uuid.New(), Version: 0, Name: "Ghost"})
	require.ErrorIs(t, err, es.ErrValidation)

	_, err = svc.AddPatient(ctx, patient.AddPatient{ID: meta.ID, Name: "Twin"})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	_, err = svc.UpdatePatientAddress(ctx, patient.UpdatePatientAddress{
		ID: meta.ID, Version: 0, Address: patient.Address{City: "Elsewhere"},
	})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	m, err := svc.Meta(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, es.Some(meta), m)
}

// flakyReadModel fails the next n saves.
type flakyReadModel struct {
	patient.ReadModel
	fail int
}

func (f *flakyReadModel) Save(ctx context.Context, snap proj.Snapshot[patient.Patient]) (bool, error) {
	if f.fail > 0 {
		f.fail--
		return false, errors.New("read db down")
	}
	return f.ReadModel.Save(ctx, snap)
}

func TestService_projectionFailureIsRepaired(t *testing.T) {
	rm := &flakyReadModel{ReadModel: newKVReadModel(t)}
	svc := newService(t, es.NewInMemoryStore(), rm)
	ctx := t.Context()

	meta := addAda(t, svc)

	rm.fail = 1
	updated, err := svc.UpdatePatientAddress(ctx, patient.UpdatePatientAddress{
		ID: meta.ID, Version: 1, Address: patient.Address{City: "Shelbyville"},
	})
	require.ErrorIs(t, err, es.ErrProjectionFailed)
	require.Equal(t, es.Version(2), updated.Version, "events are durable")

	m, err := svc.Meta(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, es.Some(meta), m, "read model is behind")

	require.NoError(t, svc.Sync(ctx, meta.ID))
	got, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	snap, _ := got.Get()
	require.Equal(t, es.Version(2), snap.Version)
	require.Equal(t, "Shelbyville", snap.State.Address.City)
}

func TestService_syncUnknownPatient(t *testing.T) {
	svc := newService(t, es.NewInMemoryStore(), newKVReadModel(t))
	id := uuid.New()

	require.ErrorIs(t, svc.Sync(t.Context(), id), es.ErrEntityNotFound)

	got, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.True(t, got.IsNone())
}

func TestService_nextProjectionRepairsGap(t *testing.T) {
	rm := &flakyReadModel{ReadModel: newKVReadModel(t)}
	svc := newService(t, es.NewInMemoryStore(), rm)
	ctx := t.Context()

	meta := addAda(t, svc)
	rm.fail = 1
	_, err := svc.UpdatePatient(ctx, patient.UpdatePatient{ID: meta.ID, Version: 1, Name: "Ada", Age: 40})
	require.ErrorIs(t, err, es.ErrProjectionFailed)

	_, err = svc.UpdatePatientAddress(ctx, patient.UpdatePatientAddress{
		ID: meta.ID, Version: 2, Address: patient.Address{City: "Capital City"},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	snap, _ := got.Get()
	require.Equal(t, es.Version(3), snap.Version)
	require.Equal(t, int32(40), snap.State.Age)
	require.Equal(t, "Capital City", snap.State.Address.City)
}

func TestService_requiresDependencies(t *testing.T) {
	_, err := patient.NewService(nil, newKVReadModel(t))
	require.Error(t, err)
	_, err = patient.NewService(es.NewInMemoryStore(), nil)
	require.Error(t, err)
}

func TestKeyFromStream(t *testing.T) {
	id := uuid.New()
	key, err := patient.KeyFromStream(patient.StreamFor(id))
	require.NoError(t, err)
	require.Equal(t, id.String(), key)

	_, err = patient.KeyFromStream("counter-1")
	require.Error(t, err)
	_, err = patient.KeyFromStream("patient-not-a-uuid")
	require.Error(t, err)
}
