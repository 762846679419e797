// Package sagastore persists saga.Instance values under optimistic
// concurrency control (C6), so that the coordinator can survive restarts
// without losing in-flight fan-out/fan-in state.
package sagastore

import (
	"errors"
	"time"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
)

// ErrVersionConflict is returned by CAS when the stored instance's version
// no longer matches the version the caller read, meaning another writer
// (e.g. a concurrent completion from a different worker) updated it first.
// Callers must re-read and retry the fold.
var ErrVersionConflict = errors.New("saga instance version conflict")

// Store is the persistence port for saga instances.
type Store interface {
	// Get loads the current instance for jobID. Returns domain.ErrNotFound
	// if no saga has been created for that job.
	Get(ctx domain.Context, jobID string) (saga.Instance, error)

	// Create inserts a brand new instance at version 1. Returns
	// domain.ErrConflict if an instance for that job id already exists.
	Create(ctx domain.Context, inst saga.Instance) error

	// CAS persists inst using inst.Version as the expected prior version,
	// and advances the stored version by one on success. Returns
	// ErrVersionConflict if the stored version has since moved on.
	CAS(ctx domain.Context, inst saga.Instance) error

	// ListStuckProcessing returns instances still Processing whose
	// CreatedAt is older than olderThan, for the fan-out sweeper to re-drive.
	ListStuckProcessing(ctx domain.Context, olderThan time.Time, limit int) ([]saga.Instance, error)
}

//go:generate mockery --name=Store --with-expecter --filename=store_mock.go
