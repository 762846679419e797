package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/app"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
)

type stuckStore struct {
	stuck []saga.Instance
}

func (s *stuckStore) Get(context.Context, string) (saga.Instance, error) { return saga.Instance{}, domain.ErrNotFound }
func (s *stuckStore) Create(context.Context, saga.Instance) error        { return nil }
func (s *stuckStore) CAS(context.Context, saga.Instance) error           { return nil }
func (s *stuckStore) ListStuckProcessing(context.Context, time.Time, int) ([]saga.Instance, error) {
	return s.stuck, nil
}

func TestFanoutSweeper_RepublishesPendingServices(t *testing.T) {
	t.Parallel()
	e := domain.JobSubmitted{
		JobID:             "job1",
		Target:            "8.8.8.8",
		TargetKind:        domain.TargetIP,
		RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP, domain.ServicePing},
		CreatedAt:         time.Now(),
	}
	inst := saga.NewInstance(e)
	inst, err := saga.ApplyTaskCompleted(inst, domain.TaskCompleted{JobID: "job1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Now()})
	require.NoError(t, err)

	store := &stuckStore{stuck: []saga.Instance{inst}}
	bus := &fakeBus{}
	sweeper := app.NewFanoutSweeper(store, bus, time.Minute, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	sweeper.Run(ctx)

	require.Len(t, bus.commands, 1)
	assert.Equal(t, domain.ServicePing, bus.commands[0].Kind)
}

func TestFanoutSweeper_NoPendingServicesRepublishesNothing(t *testing.T) {
	t.Parallel()
	e := domain.JobSubmitted{
		JobID:             "job1",
		RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP},
		CreatedAt:         time.Now(),
	}
	inst := saga.NewInstance(e)
	inst, err := saga.ApplyTaskCompleted(inst, domain.TaskCompleted{JobID: "job1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Now()})
	require.NoError(t, err)

	store := &stuckStore{stuck: []saga.Instance{inst}}
	bus := &fakeBus{}
	sweeper := app.NewFanoutSweeper(store, bus, time.Minute, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	sweeper.Run(ctx)

	assert.Empty(t, bus.commands)
}
