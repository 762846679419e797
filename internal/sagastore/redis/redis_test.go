package redis_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
	sagaredis "github.com/netreach/lookupd/internal/sagastore/redis"
)

func newTestStore(t *testing.T) (*sagaredis.Store, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := sagaredis.New(rdb)
	return store, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func newInstance() saga.Instance {
	return saga.NewInstance(domain.JobSubmitted{
		JobID:             "job-1",
		Target:            "example.com",
		TargetKind:        domain.TargetDNS,
		RequestedServices: []domain.ServiceKind{domain.ServiceGeoIP, domain.ServicePing},
		CreatedAt:         time.Unix(1000, 0),
	})
}

func TestStore_CreateAndGet(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	inst := newInstance()
	require.NoError(t, store.Create(context.Background(), inst))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Equal(t, domain.JobProcessing, got.Status)
}

func TestStore_CreateTwiceConflicts(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	inst := newInstance()
	require.NoError(t, store.Create(context.Background(), inst))
	err := store.Create(context.Background(), inst)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_GetMissing(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CASSucceedsThenBumpsVersion(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	inst := newInstance()
	require.NoError(t, store.Create(context.Background(), inst))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)

	updated, err := saga.ApplyTaskCompleted(got, domain.TaskCompleted{
		JobID: "job-1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Unix(1001, 0),
	})
	require.NoError(t, err)
	require.NoError(t, store.CAS(context.Background(), updated))

	got2, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 2, got2.Version)
	require.Len(t, got2.Completions, 1)
}

func TestStore_CASConflictOnStaleVersion(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	inst := newInstance()
	require.NoError(t, store.Create(context.Background(), inst))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)

	updated, err := saga.ApplyTaskCompleted(got, domain.TaskCompleted{
		JobID: "job-1", Kind: domain.ServiceGeoIP, Success: true, Timestamp: time.Unix(1001, 0),
	})
	require.NoError(t, err)
	require.NoError(t, store.CAS(context.Background(), updated))

	// Re-applying the CAS with the now-stale version must conflict.
	err = store.CAS(context.Background(), updated)
	require.ErrorIs(t, err, sagastore.ErrVersionConflict)
}

func TestStore_ListStuckProcessing(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	old := newInstance()
	old.JobID = "old-job"
	old.CreatedAt = time.Unix(500, 0)
	require.NoError(t, store.Create(context.Background(), old))

	fresh := newInstance()
	fresh.JobID = "fresh-job"
	fresh.CreatedAt = time.Unix(2000, 0)
	require.NoError(t, store.Create(context.Background(), fresh))

	stuck, err := store.ListStuckProcessing(context.Background(), time.Unix(1000, 0), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, "old-job", stuck[0].JobID)
}
