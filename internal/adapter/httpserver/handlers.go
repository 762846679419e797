// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST API for submitting lookup jobs and polling their
// status: POST /jobs, GET /jobs/{id}, and the health/readiness endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netreach/lookupd/internal/config"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/query"
	"github.com/netreach/lookupd/internal/submission"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Submission  *submission.Service
	Assembler   *query.Assembler
	DBCheck     func(ctx context.Context) error
	StateCheck  func(ctx context.Context) error
	BusCheck    func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and readiness checks wired.
func NewServer(cfg config.Config, sub *submission.Service, assembler *query.Assembler,
	dbCheck, stateCheck, busCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submission: sub, Assembler: assembler, DBCheck: dbCheck, StateCheck: stateCheck, BusCheck: busCheck}
}

type submitRequest struct {
	Target   string   `json:"target"`
	Services []string `json:"services,omitempty"`
}

type submitResponse struct {
	ID                string   `json:"id"`
	Target            string   `json:"target"`
	Status            string   `json:"status"`
	RequestedServices []string `json:"requested_services"`
	CreatedAt         string   `json:"created_at"`
}

// SubmitHandler handles POST /jobs: submits the target for validation and
// JobSubmitted publication, and returns the freshly created job record. The
// per-service fan-out happens later, in the saga coordinator.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}

		services := make([]domain.ServiceKind, 0, len(body.Services))
		for _, svc := range body.Services {
			services = append(services, domain.ServiceKind(svc))
		}

		job, err := s.Submission.Submit(r.Context(), submission.Request{Target: body.Target, Services: services})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, toSubmitResponse(job))
	}
}

func toSubmitResponse(job domain.Job) submitResponse {
	services := make([]string, 0, len(job.RequestedServices))
	for _, kind := range job.RequestedServices {
		services = append(services, string(kind))
	}
	return submitResponse{
		ID:                job.ID,
		Target:            job.Target,
		Status:            string(job.Status),
		RequestedServices: services,
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
	}
}

type serviceResultResponse struct {
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Result       any    `json:"result,omitempty"`
}

type jobResponse struct {
	ID          string                   `json:"id"`
	Target      string                   `json:"target"`
	Status      string                   `json:"status"`
	CreatedAt   string                   `json:"created_at"`
	CompletedAt *string                  `json:"completed_at,omitempty"`
	Services    []serviceResultResponse  `json:"services"`
}

// ResultHandler handles GET /jobs/{id}: assembles the job's current view,
// dereferencing each completed service's result.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if v := ValidateJobID(id); !v.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), v.Errors)
			return
		}

		view, err := s.Assembler.Assemble(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(view))
	}
}

func toJobResponse(view query.View) jobResponse {
	var completedAt *string
	if view.Job.CompletedAt != nil {
		s := view.Job.CompletedAt.Format(time.RFC3339)
		completedAt = &s
	}
	services := make([]serviceResultResponse, 0, len(view.Services))
	for _, sv := range view.Services {
		entry := serviceResultResponse{Kind: string(sv.Kind), Status: string(sv.Status), ErrorMessage: sv.ErrorMessage}
		if sv.Result != nil && sv.Result.Data != nil {
			var decoded any
			if err := json.Unmarshal(sv.Result.Data, &decoded); err == nil {
				entry.Result = decoded
			}
		}
		services = append(services, entry)
	}
	return jobResponse{
		ID:          view.Job.ID,
		Target:      view.Job.Target,
		Status:      string(view.Job.Status),
		CreatedAt:   view.Job.CreatedAt.Format(time.RFC3339),
		CompletedAt: completedAt,
		Services:    services,
	}
}

// HealthzHandler reports liveness unconditionally: the process is up.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes every wired collaborator (db, state store, bus).
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make([]check, 0, 3)
		run := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: name, OK: true})
			}
		}
		run("db", s.DBCheck)
		run("state_store", s.StateCheck)
		run("bus", s.BusCheck)

		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
