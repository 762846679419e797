package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/app"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
)

type fakeSagaStore struct {
	instances    map[string]saga.Instance
	casConflicts int
}

func (f *fakeSagaStore) Get(_ context.Context, jobID string) (saga.Instance, error) {
	inst, ok := f.instances[jobID]
	if !ok {
		return saga.Instance{}, domain.ErrNotFound
	}
	return inst, nil
}

func (f *fakeSagaStore) Create(_ context.Context, inst saga.Instance) error {
	if _, ok := f.instances[inst.JobID]; ok {
		return domain.ErrConflict
	}
	f.instances[inst.JobID] = inst
	return nil
}

func (f *fakeSagaStore) CAS(_ context.Context, inst saga.Instance) error {
	if f.casConflicts > 0 {
		f.casConflicts--
		return sagastore.ErrVersionConflict
	}
	f.instances[inst.JobID] = inst
	return nil
}

func (f *fakeSagaStore) ListStuckProcessing(_ context.Context, _ time.Time, _ int) ([]saga.Instance, error) {
	return nil, nil
}

type fakeBus struct {
	commands []domain.Command
}

func (b *fakeBus) PublishJobSubmitted(context.Context, domain.JobSubmitted) error { return nil }
func (b *fakeBus) PublishTaskCompleted(context.Context, domain.TaskCompleted) error { return nil }
func (b *fakeBus) PublishCommand(_ context.Context, c domain.Command) error {
	b.commands = append(b.commands, c)
	return nil
}

func TestSagaCoordinator_HandleJobSubmitted_FansOutOneCommandPerService(t *testing.T) {
	t.Parallel()
	store := &fakeSagaStore{instances: map[string]saga.Instance{}}
	bus := &fakeBus{}
	coord := app.NewSagaCoordinator(store, bus)

	e := domain.JobSubmitted{
		JobID:             "job1",
		Target:            "8.8.8.8",
		TargetKind:        domain.TargetIP,
		RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP, domain.ServicePing},
		CreatedAt:         time.Now(),
	}
	require.NoError(t, coord.HandleJobSubmitted(context.Background(), e))

	assert.Len(t, bus.commands, 2)
	assert.Contains(t, store.instances, "job1")
}

func TestSagaCoordinator_HandleJobSubmitted_IdempotentOnExistingSaga(t *testing.T) {
	t.Parallel()
	e := domain.JobSubmitted{JobID: "job1", RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP}, CreatedAt: time.Now()}
	store := &fakeSagaStore{instances: map[string]saga.Instance{"job1": saga.NewInstance(e)}}
	bus := &fakeBus{}
	coord := app.NewSagaCoordinator(store, bus)

	err := coord.HandleJobSubmitted(context.Background(), e)
	require.NoError(t, err)
	assert.Len(t, bus.commands, 1)
}

func TestSagaCoordinator_HandleTaskCompleted_RetriesOnCASConflict(t *testing.T) {
	t.Parallel()
	e := domain.JobSubmitted{JobID: "job1", RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP}, CreatedAt: time.Now()}
	store := &fakeSagaStore{instances: map[string]saga.Instance{"job1": saga.NewInstance(e)}, casConflicts: 2}
	bus := &fakeBus{}
	coord := app.NewSagaCoordinator(store, bus)

	completed := domain.TaskCompleted{JobID: "job1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Now()}
	require.NoError(t, coord.HandleTaskCompleted(context.Background(), completed))

	assert.True(t, store.instances["job1"].Done())
}

func TestSagaCoordinator_HandleTaskCompleted_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	e := domain.JobSubmitted{JobID: "job1", RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP}, CreatedAt: time.Now()}
	store := &fakeSagaStore{instances: map[string]saga.Instance{"job1": saga.NewInstance(e)}, casConflicts: 100}
	bus := &fakeBus{}
	coord := app.NewSagaCoordinator(store, bus)
	coord.MaxCASRetry = 2

	completed := domain.TaskCompleted{JobID: "job1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Now()}
	err := coord.HandleTaskCompleted(context.Background(), completed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sagastore.ErrVersionConflict))
}
