// Package postgres implements the sagastore.Store port on top of a pgx pool,
// using an explicit integer version column for optimistic concurrency.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
)

// Pool is a minimal subset of pgxpool.Pool used by Store, kept narrow so
// unit tests can fake it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists saga instances in the saga_instances table.
type Store struct{ Pool Pool }

// New constructs a Store backed by pool.
func New(pool Pool) *Store { return &Store{Pool: pool} }

type row struct {
	JobID             string
	Target            string
	TargetKind        string
	RequestedServices []string
	Status            string
	CreatedAt         time.Time
	CompletedAt       *time.Time
	Completions       []byte
	Version           int
}

func toRow(inst saga.Instance) (row, error) {
	completions, err := json.Marshal(inst.Completions)
	if err != nil {
		return row{}, fmt.Errorf("op=sagastore.postgres.marshal: %w", err)
	}
	services := make([]string, len(inst.RequestedServices))
	for i, s := range inst.RequestedServices {
		services[i] = string(s)
	}
	return row{
		JobID:             inst.JobID,
		Target:            inst.Target,
		TargetKind:        string(inst.TargetKind),
		RequestedServices: services,
		Status:            string(inst.Status),
		CreatedAt:         inst.CreatedAt,
		CompletedAt:       inst.CompletedAt,
		Completions:       completions,
		Version:           inst.Version,
	}, nil
}

func fromRow(r row) (saga.Instance, error) {
	completions := make(map[domain.ServiceKind]saga.Outcome)
	if len(r.Completions) > 0 {
		if err := json.Unmarshal(r.Completions, &completions); err != nil {
			return saga.Instance{}, fmt.Errorf("op=sagastore.postgres.unmarshal: %w", err)
		}
	}
	services := make([]domain.ServiceKind, len(r.RequestedServices))
	for i, s := range r.RequestedServices {
		services[i] = domain.ServiceKind(s)
	}
	return saga.Instance{
		JobID:             r.JobID,
		Target:            r.Target,
		TargetKind:        domain.TargetKind(r.TargetKind),
		RequestedServices: services,
		Status:            domain.JobStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
		Completions:       completions,
		Version:           r.Version,
	}, nil
}

// Get loads the current instance for jobID.
func (s *Store) Get(ctx domain.Context, jobID string) (saga.Instance, error) {
	tracer := otel.Tracer("sagastore.postgres")
	ctx, span := tracer.Start(ctx, "sagastore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("job.id", jobID))

	q := `SELECT job_id, target, target_kind, requested_services, status, created_at, completed_at, completions, version
	      FROM saga_instances WHERE job_id=$1`
	var r row
	err := s.Pool.QueryRow(ctx, q, jobID).Scan(
		&r.JobID, &r.Target, &r.TargetKind, &r.RequestedServices, &r.Status,
		&r.CreatedAt, &r.CompletedAt, &r.Completions, &r.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return saga.Instance{}, fmt.Errorf("op=sagastore.postgres.get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return saga.Instance{}, fmt.Errorf("op=sagastore.postgres.get: %w", err)
	}
	return fromRow(r)
}

// Create inserts a new saga instance at version 1.
func (s *Store) Create(ctx domain.Context, inst saga.Instance) error {
	tracer := otel.Tracer("sagastore.postgres")
	ctx, span := tracer.Start(ctx, "sagastore.Create")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("job.id", inst.JobID))

	inst.Version = 1
	r, err := toRow(inst)
	if err != nil {
		return err
	}
	q := `INSERT INTO saga_instances (job_id, target, target_kind, requested_services, status, created_at, completed_at, completions, version)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = s.Pool.Exec(ctx, q, r.JobID, r.Target, r.TargetKind, r.RequestedServices, r.Status, r.CreatedAt, r.CompletedAt, r.Completions, r.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("op=sagastore.postgres.create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=sagastore.postgres.create: %w", err)
	}
	return nil
}

// CAS persists inst guarded by its Version, bumping the stored version by
// one on success.
func (s *Store) CAS(ctx domain.Context, inst saga.Instance) error {
	tracer := otel.Tracer("sagastore.postgres")
	ctx, span := tracer.Start(ctx, "sagastore.CAS")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("job.id", inst.JobID),
		attribute.Int("saga.version", inst.Version),
	)

	r, err := toRow(inst)
	if err != nil {
		return err
	}
	q := `UPDATE saga_instances SET status=$1, completed_at=$2, completions=$3, version=version+1
	      WHERE job_id=$4 AND version=$5`
	tag, err := s.Pool.Exec(ctx, q, r.Status, r.CompletedAt, r.Completions, r.JobID, r.Version)
	if err != nil {
		return fmt.Errorf("op=sagastore.postgres.cas: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=sagastore.postgres.cas: %w", sagastore.ErrVersionConflict)
	}
	return nil
}

// ListStuckProcessing returns instances still Processing created before
// olderThan, oldest first, capped at limit rows.
func (s *Store) ListStuckProcessing(ctx domain.Context, olderThan time.Time, limit int) ([]saga.Instance, error) {
	tracer := otel.Tracer("sagastore.postgres")
	ctx, span := tracer.Start(ctx, "sagastore.ListStuckProcessing")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.Int("limit", limit))

	q := `SELECT job_id, target, target_kind, requested_services, status, created_at, completed_at, completions, version
	      FROM saga_instances WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`
	rows, err := s.Pool.Query(ctx, q, string(domain.JobProcessing), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("op=sagastore.postgres.list_stuck: %w", err)
	}
	defer rows.Close()

	var out []saga.Instance
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.JobID, &r.Target, &r.TargetKind, &r.RequestedServices, &r.Status, &r.CreatedAt, &r.CompletedAt, &r.Completions, &r.Version); err != nil {
			return nil, fmt.Errorf("op=sagastore.postgres.list_stuck_scan: %w", err)
		}
		inst, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=sagastore.postgres.list_stuck_rows: %w", err)
	}
	return out, nil
}
