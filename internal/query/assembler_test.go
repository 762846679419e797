package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/query"
	"github.com/netreach/lookupd/internal/saga"
)

type fakeStore struct {
	instances map[string]saga.Instance
}

func (f *fakeStore) Get(_ context.Context, jobID string) (saga.Instance, error) {
	inst, ok := f.instances[jobID]
	if !ok {
		return saga.Instance{}, domain.ErrNotFound
	}
	return inst, nil
}
func (f *fakeStore) Create(_ context.Context, inst saga.Instance) error {
	f.instances[inst.JobID] = inst
	return nil
}
func (f *fakeStore) CAS(_ context.Context, inst saga.Instance) error {
	f.instances[inst.JobID] = inst
	return nil
}
func (f *fakeStore) ListStuckProcessing(_ context.Context, _ time.Time, _ int) ([]saga.Instance, error) {
	return nil, nil
}

type fakeFetcher struct {
	results map[string]*domain.Result
	errKey  string
}

func (f *fakeFetcher) Fetch(_ context.Context, loc domain.ResultLocation) (*domain.Result, error) {
	if loc.Key == f.errKey {
		return nil, errors.New("boom")
	}
	return f.results[loc.Key], nil
}

func TestAssemble_MixesPendingSucceededFailedUnavailable(t *testing.T) {
	t.Parallel()
	now := time.Now()
	loc := domain.ResultLocation{Backend: domain.StorageKeyValue, Key: "job1/GeoIP"}
	inst := saga.Instance{
		JobID:             "job1",
		Target:            "8.8.8.8",
		TargetKind:        domain.TargetIP,
		RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP, domain.ServicePing, domain.ServiceRDAP, domain.ServiceReverseDNS},
		Status:            domain.JobProcessing,
		CreatedAt:         now,
		Completions: map[domain.ServiceKind]saga.Outcome{
			domain.ServiceGeoIP: {Success: true, Location: &loc},
			domain.ServicePing:  {Success: false, ErrorMessage: "unreachable"},
			domain.ServiceRDAP:  {Success: true, Location: &domain.ResultLocation{Backend: domain.StorageKeyValue, Key: "missing"}},
		},
	}
	store := &fakeStore{instances: map[string]saga.Instance{"job1": inst}}
	fetcher := &fakeFetcher{results: map[string]*domain.Result{
		"job1/GeoIP": {JobID: "job1", Kind: domain.ServiceGeoIP, Success: true, Data: []byte(`{"found":true}`)},
	}, errKey: "missing"}

	asm := query.NewAssembler(store, fetcher)
	view, err := asm.Assemble(context.Background(), "job1")
	require.NoError(t, err)

	byKind := make(map[domain.ServiceKind]query.ServiceView, len(view.Services))
	for _, sv := range view.Services {
		byKind[sv.Kind] = sv
	}

	assert.Equal(t, query.ServiceSucceeded, byKind[domain.ServiceGeoIP].Status)
	assert.NotNil(t, byKind[domain.ServiceGeoIP].Result)
	assert.Equal(t, query.ServiceFailed, byKind[domain.ServicePing].Status)
	assert.Equal(t, "unreachable", byKind[domain.ServicePing].ErrorMessage)
	assert.Equal(t, query.ServiceUnavailable, byKind[domain.ServiceRDAP].Status)
	assert.Equal(t, query.ServicePending, byKind[domain.ServiceReverseDNS].Status)
}

func TestAssemble_UnknownJobReturnsError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{instances: map[string]saga.Instance{}}
	asm := query.NewAssembler(store, &fakeFetcher{})
	_, err := asm.Assemble(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
