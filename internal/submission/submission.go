// Package submission implements the submission path (C8): it validates a
// requested target, creates the job's audit record and saga instance, and
// publishes JobSubmitted to fan the work out to the worker pools.
package submission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
	"github.com/netreach/lookupd/internal/validator"
)

// Request is the caller-supplied submission input.
type Request struct {
	Target   string
	Services []domain.ServiceKind
}

// Service validates and submits lookup jobs.
type Service struct {
	Jobs              domain.JobRepository
	Sagas             sagastore.Store
	Bus               domain.Bus
	AllowSingleLabel  bool
	MaxServicesPerJob int
}

// NewService constructs a Service.
func NewService(jobs domain.JobRepository, sagas sagastore.Store, bus domain.Bus, allowSingleLabel bool, maxServicesPerJob int) *Service {
	return &Service{
		Jobs:              jobs,
		Sagas:             sagas,
		Bus:               bus,
		AllowSingleLabel:  allowSingleLabel,
		MaxServicesPerJob: maxServicesPerJob,
	}
}

// Submit validates req, persists the job and its saga instance, and
// publishes JobSubmitted. The returned Job reflects the state as of
// creation; the saga then progresses asynchronously as workers report back.
func (s *Service) Submit(ctx domain.Context, req Request) (domain.Job, error) {
	services, err := s.normalizeServices(req.Services)
	if err != nil {
		return domain.Job{}, err
	}

	v, err := validator.Validate(req.Target, s.AllowSingleLabel)
	if err != nil {
		return domain.Job{}, err
	}

	now := time.Now()
	submitted := domain.JobSubmitted{
		JobID:             uuid.New().String(),
		Target:            v.Normalized,
		TargetKind:        v.Kind,
		RequestedServices: services,
		CreatedAt:         now,
	}

	job := saga.NewInstance(submitted).ToJob()
	if err := s.Jobs.Create(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("op=submission.createJob: %w", err)
	}
	if err := s.Sagas.Create(ctx, saga.NewInstance(submitted)); err != nil {
		return domain.Job{}, fmt.Errorf("op=submission.createSaga: %w", err)
	}
	if err := s.Bus.PublishJobSubmitted(ctx, submitted); err != nil {
		return domain.Job{}, fmt.Errorf("op=submission.publish: %w", err)
	}

	return job, nil
}

func (s *Service) normalizeServices(requested []domain.ServiceKind) ([]domain.ServiceKind, error) {
	services := requested
	if len(services) == 0 {
		services = append([]domain.ServiceKind(nil), domain.AllServiceKinds...)
	}
	if len(services) > s.MaxServicesPerJob {
		return nil, fmt.Errorf("%w: requested %d services, max is %d", domain.ErrInvalidArgument, len(services), s.MaxServicesPerJob)
	}
	seen := make(map[domain.ServiceKind]bool, len(services))
	out := make([]domain.ServiceKind, 0, len(services))
	for _, kind := range services {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unrecognized service %q", domain.ErrInvalidArgument, kind)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
	}
	return out, nil
}
