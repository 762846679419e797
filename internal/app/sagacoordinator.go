package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
)

// SagaCoordinator is the thin consumer-loop glue around the pure saga state
// machine: it loads an instance, applies an event, retries the store CAS on
// optimistic-concurrency conflicts, and publishes whatever side effect the
// transition requires. The decision logic itself lives entirely in package
// saga; this type only ever wires it to its collaborators.
type SagaCoordinator struct {
	Store       sagastore.Store
	Bus         domain.Bus
	MaxCASRetry int
}

// NewSagaCoordinator constructs a SagaCoordinator.
func NewSagaCoordinator(store sagastore.Store, bus domain.Bus) *SagaCoordinator {
	return &SagaCoordinator{Store: store, Bus: bus, MaxCASRetry: 5}
}

// HandleJobSubmitted creates the saga instance for e (idempotent: a saga
// already on record for e.JobID is left untouched) and fans out one command
// per requested service.
func (c *SagaCoordinator) HandleJobSubmitted(ctx domain.Context, e domain.JobSubmitted) error {
	inst := saga.NewInstance(e)
	if err := c.Store.Create(ctx, inst); err != nil {
		if isAlreadyExists(err) {
			slog.Info("saga already exists, skipping create", slog.String("job_id", e.JobID))
		} else {
			return fmt.Errorf("op=sagacoordinator.create: %w", err)
		}
	}

	for _, kind := range inst.RequestedServices {
		cmd := domain.Command{JobID: e.JobID, Target: e.Target, TargetKind: e.TargetKind, Kind: kind}
		if err := c.Bus.PublishCommand(ctx, cmd); err != nil {
			return fmt.Errorf("op=sagacoordinator.fanout: %w", err)
		}
	}
	return nil
}

// HandleTaskCompleted folds e into the saga instance for e.JobID, retrying
// the CAS write against concurrent completions up to MaxCASRetry times.
func (c *SagaCoordinator) HandleTaskCompleted(ctx domain.Context, e domain.TaskCompleted) error {
	retries := c.MaxCASRetry
	if retries <= 0 {
		retries = 5
	}

	for attempt := 0; attempt < retries; attempt++ {
		inst, err := c.Store.Get(ctx, e.JobID)
		if err != nil {
			return fmt.Errorf("op=sagacoordinator.load: %w", err)
		}

		next, err := saga.ApplyTaskCompleted(inst, e)
		if err != nil {
			return fmt.Errorf("op=sagacoordinator.apply: %w", err)
		}

		err = c.Store.CAS(ctx, next)
		if err == nil {
			return nil
		}
		if !isVersionConflict(err) {
			return fmt.Errorf("op=sagacoordinator.cas: %w", err)
		}
		slog.Warn("saga CAS conflict, retrying", slog.String("job_id", e.JobID), slog.Int("attempt", attempt))
	}
	return fmt.Errorf("op=sagacoordinator.cas: %w: exhausted retries for job %q", sagastore.ErrVersionConflict, e.JobID)
}

func isVersionConflict(err error) bool {
	return errors.Is(err, sagastore.ErrVersionConflict)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
