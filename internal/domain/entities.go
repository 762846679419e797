// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrInternal         = errors.New("internal error")
	ErrOrphanCompletion = errors.New("orphan task completion")
)

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

// TargetKind classifies a validated lookup target.
type TargetKind string

// Target kind values.
const (
	TargetIP  TargetKind = "ip"
	TargetDNS TargetKind = "dns"
)

// ServiceKind enumerates the lookup services a job can request.
// ServiceKind is a string constant so it serializes directly to the wire protocol.
type ServiceKind string

// Service kind values. The wire protocol treats any other value as an error.
const (
	ServiceGeoIP      ServiceKind = "GeoIP"
	ServicePing       ServiceKind = "Ping"
	ServiceRDAP       ServiceKind = "RDAP"
	ServiceReverseDNS ServiceKind = "ReverseDNS"
)

// AllServiceKinds lists every recognized service kind.
var AllServiceKinds = []ServiceKind{ServiceGeoIP, ServicePing, ServiceRDAP, ServiceReverseDNS}

// Valid reports whether k is one of the closed set of recognized service kinds.
func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceGeoIP, ServicePing, ServiceRDAP, ServiceReverseDNS:
		return true
	default:
		return false
	}
}

// JobStatus captures the lifecycle state of a lookup job.
type JobStatus string

// Job status values.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is the submission-side record: created once by the submission path and
// read-only afterwards. It is distinct from the saga instance, which tracks
// the fan-out/fan-in protocol.
type Job struct {
	ID                string
	Target            string
	TargetKind        TargetKind
	RequestedServices []ServiceKind
	Status            JobStatus
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// Command is the envelope dispatched to exactly one worker kind.
type Command struct {
	JobID      string
	Target     string
	TargetKind TargetKind
	Kind       ServiceKind
}

// TaskCompleted is the authoritative completion event: it carries a result
// *location*, never inline result data, so event size never tracks result size.
type TaskCompleted struct {
	JobID          string
	Kind           ServiceKind
	Success        bool
	ErrorMessage   string
	Duration       time.Duration
	Timestamp      time.Time
	ResultLocation *ResultLocation
}

// JobSubmitted is the triggering event published by the submission path.
type JobSubmitted struct {
	JobID             string
	Target            string
	TargetKind        TargetKind
	RequestedServices []ServiceKind
	CreatedAt         time.Time
}

// StorageKind discriminates a ResultLocation's backend.
type StorageKind string

// Storage kind values. Only KeyValue and DocumentDB have a backend wired in
// this repository; the others are reserved wire discriminants (see DESIGN.md).
const (
	StorageKeyValue    StorageKind = "key_value"
	StorageObjectStore StorageKind = "object_store"
	StorageDocumentDB  StorageKind = "document_db"
	StorageFilesystem  StorageKind = "filesystem"
	StorageBlobStore   StorageKind = "blob_store"
)

// Result is the opaque-to-the-saga record a worker writes for (jobID, kind).
type Result struct {
	JobID        string
	Kind         ServiceKind
	Success      bool
	ErrorMessage string
	Duration     time.Duration
	CompletedAt  time.Time
	Data         []byte // canonical JSON, nil when Success is false
}

// JobRepository is the port used by the submission path to persist the
// submission-side Job record (distinct from the saga instance and from the
// per-service Result record).
type JobRepository interface {
	// Create persists a newly submitted job.
	Create(ctx Context, j Job) error
	// Get retrieves a job by id.
	Get(ctx Context, id string) (Job, error)
}
