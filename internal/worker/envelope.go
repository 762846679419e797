// Package worker is the generic per-service lookup runtime (C4): one
// process runs a single WorkerEnvelope for one ServiceKind, consuming that
// kind's commands off the bus, running its lookup, and emitting a
// TaskCompleted event with the result stashed behind a ResultLocation.
//
// The four concrete lookups (geoip, ping, rdap, reversedns) are sum-type
// members of the same shape rather than four unrelated implementations:
// each is just a Validate/PerformLookup pair plugged into an Envelope.
package worker

import (
	"context"

	"github.com/netreach/lookupd/internal/domain"
)

// PerformLookupFunc runs one service's lookup against a command's target
// and returns a JSON-serializable payload on success.
type PerformLookupFunc func(ctx context.Context, cmd domain.Command) (any, error)

// ValidateFunc rejects a command this lookup cannot service, e.g. ping
// against a target kind it doesn't support. Returning nil means the command
// is acceptable.
type ValidateFunc func(cmd domain.Command) error

// Envelope bundles one ServiceKind's validation and lookup behavior so the
// runtime loop can treat every kind identically.
type Envelope struct {
	Kind          domain.ServiceKind
	Validate      ValidateFunc
	PerformLookup PerformLookupFunc
}

// acceptAnyTarget is the default Validate for lookups that operate the same
// way regardless of whether the target is an IP address or a DNS name.
func acceptAnyTarget(cmd domain.Command) error {
	if cmd.Kind == "" || cmd.JobID == "" || cmd.Target == "" {
		return domainInvalidCommand(cmd)
	}
	return nil
}

func domainInvalidCommand(cmd domain.Command) error {
	return &CommandError{Command: cmd, Reason: "command missing required fields"}
}

// CommandError reports why a command was rejected before its lookup ran.
type CommandError struct {
	Command domain.Command
	Reason  string
}

func (e *CommandError) Error() string { return e.Reason }
