// Package postgres implements the document_db resultstore.Backend: each
// lookup result is a row in result_documents, addressed by a generated
// document id rather than the job/kind pair so that the ResultLocation
// stored in the saga never needs to know the table's key shape.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/netreach/lookupd/internal/domain"
)

// Pool is a minimal subset of pgxpool.Pool used by Backend.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const collection = "results"

// Backend stores result records in the result_documents table.
type Backend struct{ Pool Pool }

// New constructs a Backend backed by pool.
func New(pool Pool) *Backend { return &Backend{Pool: pool} }

// Kind reports the StorageKind this backend implements.
func (b *Backend) Kind() domain.StorageKind { return domain.StorageDocumentDB }

func (b *Backend) save(ctx domain.Context, jobID string, kind domain.ServiceKind, success bool, errMsg string, duration time.Duration, data []byte) (domain.ResultLocation, error) {
	tracer := otel.Tracer("resultstore.postgres")
	ctx, span := tracer.Start(ctx, "resultstore.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "result_documents"),
	)

	docID := uuid.New().String()
	q := `INSERT INTO result_documents (document_id, job_id, kind, success, error_message, duration_ms, completed_at, data)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := b.Pool.Exec(ctx, q, docID, jobID, string(kind), success, errMsg, duration.Milliseconds(), time.Now().UTC(), data)
	if err != nil {
		return domain.ResultLocation{}, fmt.Errorf("op=resultstore.postgres.save: %w", err)
	}
	return domain.ResultLocation{Backend: domain.StorageDocumentDB, Collection: collection, DocumentID: docID}, nil
}

// SaveSuccess persists a successful lookup result.
func (b *Backend) SaveSuccess(ctx domain.Context, jobID string, kind domain.ServiceKind, data []byte, duration time.Duration) (domain.ResultLocation, error) {
	return b.save(ctx, jobID, kind, true, "", duration, data)
}

// SaveFailure persists a failed lookup result.
func (b *Backend) SaveFailure(ctx domain.Context, jobID string, kind domain.ServiceKind, errMsg string, duration time.Duration) (domain.ResultLocation, error) {
	return b.save(ctx, jobID, kind, false, errMsg, duration, nil)
}

// Fetch dereferences loc. A missing document is tolerated and reported as
// (nil, nil).
func (b *Backend) Fetch(ctx domain.Context, loc domain.ResultLocation) (*domain.Result, error) {
	tracer := otel.Tracer("resultstore.postgres")
	ctx, span := tracer.Start(ctx, "resultstore.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "result_documents"),
	)

	q := `SELECT job_id, kind, success, COALESCE(error_message,''), duration_ms, completed_at, data
	      FROM result_documents WHERE document_id=$1`
	row := b.Pool.QueryRow(ctx, q, loc.DocumentID)
	var res domain.Result
	var kind string
	var durationMS int64
	if err := row.Scan(&res.JobID, &kind, &res.Success, &res.ErrorMessage, &durationMS, &res.CompletedAt, &res.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=resultstore.postgres.fetch: %w", err)
	}
	res.Kind = domain.ServiceKind(kind)
	res.Duration = time.Duration(durationMS) * time.Millisecond
	return &res, nil
}
