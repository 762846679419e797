// Package query implements the query assembler (C7): it loads a saga
// instance and dereferences the ResultLocations of its successfully completed
// services through the result-store resolver, producing the full job view
// returned by GET /jobs/{id}. Failed services are reported from the saga's
// recorded outcome; their result records are not read.
package query

import (
	"fmt"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
)

// ServiceStatus is a per-service entry in an assembled View.
type ServiceStatus string

// Service status values.
const (
	ServicePending     ServiceStatus = "pending"
	ServiceSucceeded   ServiceStatus = "succeeded"
	ServiceFailed      ServiceStatus = "failed"
	ServiceUnavailable ServiceStatus = "unavailable"
)

// ServiceView is one requested service's status and, when available, its
// dereferenced result.
type ServiceView struct {
	Kind         domain.ServiceKind
	Status       ServiceStatus
	ErrorMessage string
	Result       *domain.Result
}

// View is the full assembled job: the submission-side Job fields plus one
// ServiceView per requested service, in fan-out order.
type View struct {
	Job      domain.Job
	Services []ServiceView
}

// ResultFetcher is the read half of resultstore.Resolver that the assembler
// depends on.
type ResultFetcher interface {
	Fetch(ctx domain.Context, loc domain.ResultLocation) (*domain.Result, error)
}

// Assembler assembles a query View for a job from its saga instance.
type Assembler struct {
	Store   sagastore.Store
	Results ResultFetcher
}

// NewAssembler constructs an Assembler.
func NewAssembler(store sagastore.Store, results ResultFetcher) *Assembler {
	return &Assembler{Store: store, Results: results}
}

// Assemble loads jobID's saga instance and dereferences each successfully
// completed service's result. A service with no recorded completion is
// "pending"; a failed one is "failed" with the error message from the saga's
// outcome, without a result-store read; a successful one whose
// ResultLocation is missing or fails to dereference is "unavailable" rather
// than failing the whole assembly.
func (a *Assembler) Assemble(ctx domain.Context, jobID string) (View, error) {
	inst, err := a.Store.Get(ctx, jobID)
	if err != nil {
		return View{}, fmt.Errorf("op=query.assemble: %w", err)
	}
	return a.assembleFrom(ctx, inst), nil
}

func (a *Assembler) assembleFrom(ctx domain.Context, inst saga.Instance) View {
	services := make([]ServiceView, 0, len(inst.RequestedServices))
	for _, kind := range inst.RequestedServices {
		out, has := inst.Completions[kind]
		services = append(services, a.serviceView(ctx, kind, out, has))
	}
	return View{Job: inst.ToJob(), Services: services}
}

func (a *Assembler) serviceView(ctx domain.Context, kind domain.ServiceKind, out saga.Outcome, has bool) ServiceView {
	if !has {
		return ServiceView{Kind: kind, Status: ServicePending}
	}
	if !out.Success {
		return ServiceView{Kind: kind, Status: ServiceFailed, ErrorMessage: out.ErrorMessage}
	}
	if out.Location == nil {
		return ServiceView{Kind: kind, Status: ServiceUnavailable}
	}
	result, err := a.Results.Fetch(ctx, *out.Location)
	if err != nil || result == nil {
		return ServiceView{Kind: kind, Status: ServiceUnavailable}
	}
	return ServiceView{Kind: kind, Status: ServiceSucceeded, Result: result}
}
