// Package resultstore implements the result-store indirection (C3): pluggable
// write/read backends selected per job via a discriminated ResultLocation,
// with a resolver that the query assembler uses to dereference a location
// without any side channel.
package resultstore

import (
	"fmt"
	"time"

	"github.com/netreach/lookupd/internal/domain"
)

// Backend is a concrete result-store implementation for one StorageKind.
// Every backend implements both the write half (SaveSuccess/SaveFailure) and
// the read half (Fetch); workers only ever call the write half, the query
// assembler only ever calls the read half.
type Backend interface {
	Kind() domain.StorageKind
	SaveSuccess(ctx domain.Context, jobID string, kind domain.ServiceKind, data []byte, duration time.Duration) (domain.ResultLocation, error)
	SaveFailure(ctx domain.Context, jobID string, kind domain.ServiceKind, errMsg string, duration time.Duration) (domain.ResultLocation, error)
	Fetch(ctx domain.Context, loc domain.ResultLocation) (*domain.Result, error)
}

// Resolver maps a StorageKind to its backend. Adding a backend is a matter of
// registering a new StorageKind variant here; neither the saga nor the
// workers change.
type Resolver struct {
	backends map[domain.StorageKind]Backend
	byDefault domain.StorageKind
}

// NewResolver constructs a Resolver with the given backends. Every write goes
// through defaultBackend; reads go to whichever backend a location names.
func NewResolver(defaultBackend domain.StorageKind, backends ...Backend) (*Resolver, error) {
	m := make(map[domain.StorageKind]Backend, len(backends))
	for _, b := range backends {
		m[b.Kind()] = b
	}
	if _, ok := m[defaultBackend]; !ok {
		return nil, fmt.Errorf("%w: no backend registered for default storage kind %q", domain.ErrInternal, defaultBackend)
	}
	return &Resolver{backends: m, byDefault: defaultBackend}, nil
}

// SaveSuccess writes a successful lookup result through the default backend.
func (r *Resolver) SaveSuccess(ctx domain.Context, jobID string, kind domain.ServiceKind, data []byte, duration time.Duration) (domain.ResultLocation, error) {
	return r.backends[r.byDefault].SaveSuccess(ctx, jobID, kind, data, duration)
}

// SaveFailure writes a failed lookup result through the default backend.
func (r *Resolver) SaveFailure(ctx domain.Context, jobID string, kind domain.ServiceKind, errMsg string, duration time.Duration) (domain.ResultLocation, error) {
	return r.backends[r.byDefault].SaveFailure(ctx, jobID, kind, errMsg, duration)
}

// Fetch dereferences loc through whichever backend its discriminant names.
// It returns (nil, nil) when the backend reports the record missing or
// corrupt, per the "tolerates missing result records" contract in §4.6.
func (r *Resolver) Fetch(ctx domain.Context, loc domain.ResultLocation) (*domain.Result, error) {
	b, ok := r.backends[loc.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for storage kind %q", domain.ErrInternal, loc.Backend)
	}
	return b.Fetch(ctx, loc)
}
