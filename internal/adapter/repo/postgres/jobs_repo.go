// Package postgres provides PostgreSQL adapters for the submission-side
// job record, the saga retention sweep, and pool construction.
package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/netreach/lookupd/internal/domain"
)

// JobPool is the subset of *pgxpool.Pool used by JobRepo, kept narrow so
// unit tests can fake it.
type JobPool interface {
	Exec(ctx domain.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx domain.Context, sql string, args ...any) pgx.Row
}

// JobRepo persists and loads the submission-side Job record. It shares the
// Postgres pool with the saga store but owns its own table, since a Job
// outlives the saga record it was created from.
type JobRepo struct{ Pool JobPool }

// NewJobRepo constructs a JobRepo backed by pool.
func NewJobRepo(pool JobPool) *JobRepo { return &JobRepo{Pool: pool} }

// Create persists a newly submitted job.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "jobs"),
	)

	services := make([]string, 0, len(j.RequestedServices))
	for _, kind := range j.RequestedServices {
		services = append(services, string(kind))
	}

	q := `INSERT INTO jobs (id, target, target_kind, requested_services, status, created_at, completed_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, j.ID, j.Target, j.TargetKind, services, j.Status, j.CreatedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)

	q := `SELECT id, target, target_kind, requested_services, status, created_at, completed_at FROM jobs WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)

	var j domain.Job
	var services []string
	if err := row.Scan(&j.ID, &j.Target, &j.TargetKind, &services, &j.Status, &j.CreatedAt, &j.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	j.RequestedServices = make([]domain.ServiceKind, 0, len(services))
	for _, s := range services {
		j.RequestedServices = append(j.RequestedServices, domain.ServiceKind(s))
	}
	return j, nil
}
