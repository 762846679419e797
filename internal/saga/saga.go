// Package saga holds the pure state machine for a single lookup job: the
// fan-out of per-service commands and the fan-in of their completions into
// the terminal Completed state (reached even when every service failed).
//
// Everything here is pure value-in/value-out logic with no I/O. The glue that
// loads an Instance from a store, applies an event, and persists the result
// under optimistic concurrency lives in internal/app (SagaCoordinator, on top
// of the internal/sagastore port); this package only ever answers "given this
// state and this event, what's the next state".
package saga

import (
	"fmt"
	"time"

	"github.com/netreach/lookupd/internal/domain"
)

// Outcome records what a single service's lookup produced, independent of
// where the payload actually lives.
type Outcome struct {
	Success      bool
	ErrorMessage string
	Duration     time.Duration
	CompletedAt  time.Time
	Location     *domain.ResultLocation
}

// Instance is the full state of one job's saga: which services were asked
// for, which of them have reported back, and whether the job is done.
//
// Completions is keyed by ServiceKind so that a duplicate TaskCompleted for a
// service already recorded is a no-op (idempotence) rather than a second
// entry.
type Instance struct {
	JobID             string
	Target            string
	TargetKind        domain.TargetKind
	RequestedServices []domain.ServiceKind
	Status            domain.JobStatus
	CreatedAt         time.Time
	CompletedAt       *time.Time
	Completions       map[domain.ServiceKind]Outcome
	Version           int
}

// NewInstance builds the initial saga state for a freshly submitted job: it
// is Processing from the moment it exists, since the coordinator commits a
// job as Processing before the fan-out commands are even published (see the
// fan-out durability decision in SPEC_FULL.md §4.4).
func NewInstance(e domain.JobSubmitted) Instance {
	return Instance{
		JobID:             e.JobID,
		Target:            e.Target,
		TargetKind:        e.TargetKind,
		RequestedServices: append([]domain.ServiceKind(nil), e.RequestedServices...),
		Status:            domain.JobProcessing,
		CreatedAt:         e.CreatedAt,
		Completions:       make(map[domain.ServiceKind]Outcome, len(e.RequestedServices)),
	}
}

// requested reports whether kind is one of the services this job fanned out
// to. ApplyTaskCompleted uses it to reject a completion for a service never
// requested as an orphan (domain.ErrOrphanCompletion).
func (inst Instance) requested(kind domain.ServiceKind) bool {
	for _, k := range inst.RequestedServices {
		if k == kind {
			return true
		}
	}
	return false
}

// ApplyTaskCompleted folds a single service's completion into inst and
// returns the resulting Instance. It is a pure function: the same (inst,
// event) pair always produces the same result, which is what makes it safe
// to replay from a store without re-deriving side effects.
//
// Idempotence: if kind already has a recorded outcome, the event is dropped
// and inst is returned unchanged except that its Version is still bumped by
// the caller's compare-and-set — ApplyTaskCompleted itself does not touch
// Version, that belongs to the store layer.
//
// Commutativity: completions are folded into a map keyed by ServiceKind, so
// applying the same set of TaskCompleted events in any order converges to
// the same Completions map and the same terminal Status.
func ApplyTaskCompleted(inst Instance, e domain.TaskCompleted) (Instance, error) {
	if e.JobID != inst.JobID {
		return inst, fmt.Errorf("%w: completion job id %q does not match instance %q", domain.ErrInvalidArgument, e.JobID, inst.JobID)
	}
	if !inst.requested(e.Kind) {
		return inst, fmt.Errorf("%w: service %q was not part of job %q's fan-out", domain.ErrOrphanCompletion, e.Kind, inst.JobID)
	}
	if inst.Status == domain.JobCompleted {
		// A completion arriving after the saga already reached a terminal
		// state (e.g. a duplicate delivery from an at-least-once bus) is
		// accepted and folded but cannot change Status again.
		return foldCompletion(inst, e), nil
	}

	out := foldCompletion(inst, e)
	if isDone(out) {
		out.Status, out.CompletedAt = terminalStatus(out)
	}
	return out, nil
}

func foldCompletion(inst Instance, e domain.TaskCompleted) Instance {
	if _, already := inst.Completions[e.Kind]; already {
		return inst
	}
	completions := make(map[domain.ServiceKind]Outcome, len(inst.Completions)+1)
	for k, v := range inst.Completions {
		completions[k] = v
	}
	completions[e.Kind] = Outcome{
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		Duration:     e.Duration,
		CompletedAt:  e.Timestamp,
		Location:     e.ResultLocation,
	}
	inst.Completions = completions
	return inst
}

// isDone reports whether every requested service has a recorded completion.
func isDone(inst Instance) bool {
	if len(inst.Completions) < len(inst.RequestedServices) {
		return false
	}
	for _, kind := range inst.RequestedServices {
		if _, ok := inst.Completions[kind]; !ok {
			return false
		}
	}
	return true
}

// terminalStatus decides the job's terminal timestamp once every service
// has reported. There is no explicit failure transition at the saga level:
// the job reaches Completed as soon as every requested service has produced
// exactly one completion, regardless of how many of them failed. Per-service
// failure is carried in each Completion's Outcome, not in the job status.
func terminalStatus(inst Instance) (domain.JobStatus, *time.Time) {
	latest := inst.CreatedAt
	for _, out := range inst.Completions {
		if out.CompletedAt.After(latest) {
			latest = out.CompletedAt
		}
	}
	return domain.JobCompleted, &latest
}

// Done reports whether inst has reached a terminal state.
func (inst Instance) Done() bool {
	return inst.Status == domain.JobCompleted
}

// Pending returns the requested services that have not yet reported a
// completion, in fan-out order. The fan-out sweeper uses this to re-publish
// commands for services that never came back.
func (inst Instance) Pending() []domain.ServiceKind {
	var pending []domain.ServiceKind
	for _, kind := range inst.RequestedServices {
		if _, ok := inst.Completions[kind]; !ok {
			pending = append(pending, kind)
		}
	}
	return pending
}

// ToJob projects inst into the public domain.Job shape returned by queries.
func (inst Instance) ToJob() domain.Job {
	return domain.Job{
		ID:                inst.JobID,
		Target:            inst.Target,
		TargetKind:        inst.TargetKind,
		RequestedServices: append([]domain.ServiceKind(nil), inst.RequestedServices...),
		Status:            inst.Status,
		CreatedAt:         inst.CreatedAt,
		CompletedAt:       inst.CompletedAt,
	}
}
