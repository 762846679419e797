package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/netreach/lookupd/internal/domain"
)

// ResultWriter is the write half of resultstore.Resolver, narrowed so the
// runtime does not need the read half.
type ResultWriter interface {
	SaveSuccess(ctx domain.Context, jobID string, kind domain.ServiceKind, data []byte, duration time.Duration) (domain.ResultLocation, error)
	SaveFailure(ctx domain.Context, jobID string, kind domain.ServiceKind, errMsg string, duration time.Duration) (domain.ResultLocation, error)
}

// Runtime drives one Envelope: validate, look up, persist, emit completion.
type Runtime struct {
	Envelope Envelope
	Results  ResultWriter
	Bus      domain.Bus
}

// NewRuntime constructs a Runtime for a single ServiceKind's Envelope.
func NewRuntime(envelope Envelope, results ResultWriter, bus domain.Bus) *Runtime {
	return &Runtime{Envelope: envelope, Results: results, Bus: bus}
}

// HandleCommand runs cmd through validation and the lookup, persists the
// outcome, and publishes the resulting TaskCompleted event. It never returns
// a "the lookup failed" or "the store write failed" error to its caller —
// both are themselves a successfully handled command, recorded as
// Success=false. A failed validation or lookup is saved through SaveFailure
// and carries its error message and the returned result location; a failed
// store write carries a synthesized error message and no result location.
// Only a command for the wrong kind or a failure to publish the completion
// is returned as an error.
func (r *Runtime) HandleCommand(ctx domain.Context, cmd domain.Command) error {
	start := time.Now()

	if cmd.Kind != r.Envelope.Kind {
		slog.Error("worker received command for wrong kind",
			slog.String("job_id", cmd.JobID), slog.String("expected", string(r.Envelope.Kind)), slog.String("got", string(cmd.Kind)))
		return fmt.Errorf("op=worker.HandleCommand: command kind %q does not match worker kind %q", cmd.Kind, r.Envelope.Kind)
	}

	if err := r.Envelope.Validate(cmd); err != nil {
		return r.complete(ctx, cmd, start, false, err.Error(), nil)
	}

	payload, err := r.Envelope.PerformLookup(ctx, cmd)
	if err != nil {
		return r.complete(ctx, cmd, start, false, err.Error(), nil)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return r.complete(ctx, cmd, start, false, fmt.Sprintf("marshal result: %v", err), nil)
	}
	return r.complete(ctx, cmd, start, true, "", data)
}

func (r *Runtime) complete(ctx domain.Context, cmd domain.Command, start time.Time, success bool, errMsg string, data []byte) error {
	duration := time.Since(start)

	var loc *domain.ResultLocation
	var err error
	if success {
		var l domain.ResultLocation
		l, err = r.Results.SaveSuccess(ctx, cmd.JobID, cmd.Kind, data, duration)
		loc = &l
	} else {
		var l domain.ResultLocation
		l, err = r.Results.SaveFailure(ctx, cmd.JobID, cmd.Kind, errMsg, duration)
		loc = &l
	}
	if err != nil {
		slog.Error("result store write failed, completing task as failed",
			slog.String("job_id", cmd.JobID), slog.String("kind", string(cmd.Kind)), slog.Any("err", err))
		success = false
		errMsg = fmt.Sprintf("result store write failed: %v", err)
		loc = nil
	}

	event := domain.TaskCompleted{
		JobID:          cmd.JobID,
		Kind:           cmd.Kind,
		Success:        success,
		ErrorMessage:   errMsg,
		Duration:       duration,
		Timestamp:      time.Now().UTC(),
		ResultLocation: loc,
	}
	if err := r.Bus.PublishTaskCompleted(ctx, event); err != nil {
		return fmt.Errorf("op=worker.complete.publish: %w", err)
	}

	slog.Info("lookup completed",
		slog.String("job_id", cmd.JobID), slog.String("kind", string(cmd.Kind)),
		slog.Bool("success", success), slog.Duration("duration", duration))
	return nil
}
