package postgres_test

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/adapter/repo/postgres"
)

func expectCleanupRound(m pgxmock.PgxPoolIface) {
	m.ExpectBegin()
	m.ExpectQuery("DELETE FROM result_documents").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	m.ExpectQuery("DELETE FROM saga_instances").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	m.ExpectCommit()
	m.ExpectRollback()
}

func TestCleanupService_CleanupOldData_OK(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, time.Hour)
	expectCleanupRound(m)

	require.NoError(t, svc.CleanupOldData(context.Background()))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCleanupService_BeginError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, time.Hour)
	m.ExpectBegin().WillReturnError(assert.AnError)

	err = svc.CleanupOldData(context.Background())
	assert.Error(t, err)
}

func TestCleanupService_CommitError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, time.Hour)
	m.ExpectBegin()
	m.ExpectQuery("DELETE FROM result_documents").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	m.ExpectQuery("DELETE FROM saga_instances").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	m.ExpectCommit().WillReturnError(assert.AnError)
	m.ExpectRollback()

	err = svc.CleanupOldData(context.Background())
	assert.Error(t, err)
}

func TestNewCleanupService_ZeroRetentionDefaultsTo24h(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, 0)
	assert.Equal(t, 24*time.Hour, svc.Retention)
}

func TestNewCleanupService_NegativeRetentionDefaultsTo24h(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, -time.Hour)
	assert.Equal(t, 24*time.Hour, svc.Retention)
}

func TestCleanupService_RunPeriodic_ImmediateCancel(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, time.Hour)
	expectCleanupRound(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunPeriodic(ctx, time.Hour)
}

func TestCleanupService_RunPeriodic_WithError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	svc := postgres.NewCleanupService(m, time.Hour)
	m.ExpectBegin().WillReturnError(assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunPeriodic(ctx, time.Hour)
}
