package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/adapter/httpserver"
	"github.com/netreach/lookupd/internal/config"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/query"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
	"github.com/netreach/lookupd/internal/submission"
)

type fakeJobs struct {
	jobs map[string]domain.Job
}

func (f *fakeJobs) Create(_ context.Context, j domain.Job) error { f.jobs[j.ID] = j; return nil }
func (f *fakeJobs) Get(_ context.Context, id string) (domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

type fakeSagas struct {
	instances map[string]saga.Instance
}

func (f *fakeSagas) Get(_ context.Context, jobID string) (saga.Instance, error) {
	inst, ok := f.instances[jobID]
	if !ok {
		return saga.Instance{}, domain.ErrNotFound
	}
	return inst, nil
}
func (f *fakeSagas) Create(_ context.Context, inst saga.Instance) error {
	f.instances[inst.JobID] = inst
	return nil
}
func (f *fakeSagas) CAS(_ context.Context, inst saga.Instance) error {
	f.instances[inst.JobID] = inst
	return nil
}
func (f *fakeSagas) ListStuckProcessing(_ context.Context, _ time.Time, _ int) ([]saga.Instance, error) {
	return nil, nil
}

type fakeBus struct{}

func (fakeBus) PublishJobSubmitted(context.Context, domain.JobSubmitted) error  { return nil }
func (fakeBus) PublishTaskCompleted(context.Context, domain.TaskCompleted) error { return nil }
func (fakeBus) PublishCommand(context.Context, domain.Command) error             { return nil }

type fakeFetcher struct{}

func (fakeFetcher) Fetch(context.Context, domain.ResultLocation) (*domain.Result, error) {
	return nil, nil
}

func newTestServer() (*httpserver.Server, *fakeSagas) {
	jobs := &fakeJobs{jobs: map[string]domain.Job{}}
	sagas := &fakeSagas{instances: map[string]saga.Instance{}}
	sub := submission.NewService(jobs, sagas, fakeBus{}, false, 10)
	asm := query.NewAssembler(sagas, fakeFetcher{})
	srv := httpserver.NewServer(config.Config{}, sub, asm, nil, nil, nil)
	return srv, sagas
}

func TestSubmitHandler_ValidTargetAccepted(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()

	body := `{"target":"8.8.8.8"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "8.8.8.8", resp["target"])
	assert.Equal(t, "processing", resp["status"])
}

func TestSubmitHandler_InvalidTargetRejected(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()

	body := `{"target":""}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultHandler_UnknownJobReturns404(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()

	r := chi.NewRouter()
	r.Get("/jobs/{id}", srv.ResultHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs/doesnotexist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzHandler_AlwaysOK(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.HealthzHandler()(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzHandler_NoChecksConfiguredIsOK(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
