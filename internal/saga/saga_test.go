package saga_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
)

func newSubmitted(services ...domain.ServiceKind) domain.JobSubmitted {
	return domain.JobSubmitted{
		JobID:             "job-1",
		Target:            "example.com",
		TargetKind:        domain.TargetDNS,
		RequestedServices: services,
		CreatedAt:         time.Unix(1000, 0),
	}
}

func completed(kind domain.ServiceKind, success bool, at time.Time) domain.TaskCompleted {
	return domain.TaskCompleted{
		JobID:       "job-1",
		Kind:        kind,
		Success:     success,
		Duration:    10 * time.Millisecond,
		Timestamp:   at,
	}
}

// Completion monotonicity: once a job reaches a terminal state, further
// completions never move it out of that state.
func TestApplyTaskCompleted_CompletionMonotonicity(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing))
	inst, err := saga.ApplyTaskCompleted(inst, completed(domain.ServiceGeoIP, true, time.Unix(1001, 0)))
	require.NoError(t, err)
	inst, err = saga.ApplyTaskCompleted(inst, completed(domain.ServicePing, true, time.Unix(1002, 0)))
	require.NoError(t, err)
	require.True(t, inst.Done())
	assert.Equal(t, domain.JobCompleted, inst.Status)

	// A late duplicate for an already-recorded service must not move the
	// job back out of its terminal state.
	inst2, err := saga.ApplyTaskCompleted(inst, completed(domain.ServiceGeoIP, false, time.Unix(1003, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, inst2.Status)
}

// Service partition invariant: a completion for a service outside the job's
// fan-out is rejected as an orphan, never silently folded in.
func TestApplyTaskCompleted_ServicePartitionInvariant(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP))
	_, err := saga.ApplyTaskCompleted(inst, completed(domain.ServiceRDAP, true, time.Unix(1001, 0)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrphanCompletion)
}

// Idempotence: applying the same completion twice is a no-op on the second
// application.
func TestApplyTaskCompleted_Idempotent(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing))
	ev := completed(domain.ServiceGeoIP, true, time.Unix(1001, 0))
	once, err := saga.ApplyTaskCompleted(inst, ev)
	require.NoError(t, err)
	twice, err := saga.ApplyTaskCompleted(once, ev)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

// Commutativity: applying two completions in either order converges to the
// same terminal state.
func TestApplyTaskCompleted_Commutative(t *testing.T) {
	t.Parallel()
	geo := completed(domain.ServiceGeoIP, true, time.Unix(1001, 0))
	ping := completed(domain.ServicePing, false, time.Unix(1002, 0))

	a := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing))
	a, err := saga.ApplyTaskCompleted(a, geo)
	require.NoError(t, err)
	a, err = saga.ApplyTaskCompleted(a, ping)
	require.NoError(t, err)

	b := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing))
	b, err = saga.ApplyTaskCompleted(b, ping)
	require.NoError(t, err)
	b, err = saga.ApplyTaskCompleted(b, geo)
	require.NoError(t, err)

	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.Completions, b.Completions)
}

// Result-location round trip: a completion's ResultLocation survives the
// fold unchanged, since the saga never interprets it.
func TestApplyTaskCompleted_ResultLocationRoundTrip(t *testing.T) {
	t.Parallel()
	loc := domain.ResultLocation{Backend: domain.StorageKeyValue, Key: "job-1:GeoIP"}
	ev := completed(domain.ServiceGeoIP, true, time.Unix(1001, 0))
	ev.ResultLocation = &loc

	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP))
	inst, err := saga.ApplyTaskCompleted(inst, ev)
	require.NoError(t, err)
	require.NotNil(t, inst.Completions[domain.ServiceGeoIP].Location)
	assert.True(t, loc.Equal(*inst.Completions[domain.ServiceGeoIP].Location))
}

// Terminal condition: the job only becomes terminal once every requested
// service has a recorded completion, not before.
func TestApplyTaskCompleted_TerminalCondition(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing, domain.ServiceRDAP))
	inst, err := saga.ApplyTaskCompleted(inst, completed(domain.ServiceGeoIP, true, time.Unix(1001, 0)))
	require.NoError(t, err)
	assert.False(t, inst.Done())
	assert.Equal(t, domain.JobProcessing, inst.Status)
	assert.Equal(t, []domain.ServiceKind{domain.ServicePing, domain.ServiceRDAP}, inst.Pending())

	inst, err = saga.ApplyTaskCompleted(inst, completed(domain.ServicePing, false, time.Unix(1002, 0)))
	require.NoError(t, err)
	assert.False(t, inst.Done())

	inst, err = saga.ApplyTaskCompleted(inst, completed(domain.ServiceRDAP, false, time.Unix(1003, 0)))
	require.NoError(t, err)
	assert.True(t, inst.Done())
	assert.Equal(t, domain.JobCompleted, inst.Status)
}

func TestApplyTaskCompleted_AllFailedIsStillCompleted(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP, domain.ServicePing))
	inst, err := saga.ApplyTaskCompleted(inst, completed(domain.ServiceGeoIP, false, time.Unix(1001, 0)))
	require.NoError(t, err)
	inst, err = saga.ApplyTaskCompleted(inst, completed(domain.ServicePing, false, time.Unix(1002, 0)))
	require.NoError(t, err)
	assert.True(t, inst.Done())
	assert.Equal(t, domain.JobCompleted, inst.Status)
}

func TestApplyTaskCompleted_WrongJobIDRejected(t *testing.T) {
	t.Parallel()
	inst := saga.NewInstance(newSubmitted(domain.ServiceGeoIP))
	ev := completed(domain.ServiceGeoIP, true, time.Unix(1001, 0))
	ev.JobID = "other-job"
	_, err := saga.ApplyTaskCompleted(inst, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
