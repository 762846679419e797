// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a collaborator capable of a liveness
// Ping: the Postgres pool, the Redis client, or the bus client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns one readiness check per collaborator lookupd
// depends on: the saga/result-store Postgres pool, the state store (Redis),
// and the message bus. A nil Pinger is treated as "not configured" rather
// than panicking, since not every deployment wires every backend (e.g. a
// Redis-only saga store has no Postgres pool to check).
func BuildReadinessChecks(db, stateStore, bus Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("db not configured")
		}
		return db.Ping(ctx)
	}
	stateStoreCheck := func(ctx context.Context) error {
		if stateStore == nil {
			return fmt.Errorf("state store not configured")
		}
		return stateStore.Ping(ctx)
	}
	busCheck := func(ctx context.Context) error {
		if bus == nil {
			return fmt.Errorf("bus not configured")
		}
		return bus.Ping(ctx)
	}
	return dbCheck, stateStoreCheck, busCheck
}
