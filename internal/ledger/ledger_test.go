package ledger_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/paveg/ecomlake/internal/ledger"
	"github.com/paveg/ecomlake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "state", "ledger.db"), testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate(t *testing.T) {
	s := openLedger(t)
	ctx := context.Background()

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, s.Migrate(ctx), "migrating twice is a no-op")
}

func TestRunLifecycle(t *testing.T) {
	s := openLedger(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "native", "local", "/ecommerce")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, ledger.RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "/ecommerce", got.StorageRoot)

	require.NoError(t, s.CompleteRun(ctx, run.ID, ledger.Outcome{
		Status:            ledger.RunStatusSucceeded,
		OrdersRows:        3,
		OrderItemsRows:    4,
		IntegratedRows:    2,
		TotalRevenue:      sql.NullFloat64{Float64: 100, Valid: true},
		AverageOrderValue: sql.NullFloat64{},
	}))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.GreaterOrEqual(t, got.Duration().Nanoseconds(), int64(0))
	assert.Equal(t, 2, got.IntegratedRows)
	assert.Equal(t, sql.NullFloat64{Float64: 100, Valid: true}, got.TotalRevenue)
	assert.False(t, got.AverageOrderValue.Valid)
	assert.Empty(t, got.Error)
}

func TestFailedRunAndListing(t *testing.T) {
	s := openLedger(t)
	ctx := context.Background()

	first, err := s.StartRun(ctx, "native", "local", "/a")
	require.NoError(t, err)
	second, err := s.StartRun(ctx, "duckdb", "hdfs", "/b")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, second.ID, ledger.Outcome{
		Status:      ledger.RunStatusFailed,
		FailedStage: "ingest",
		Error:       "exit status 1",
	}))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, "ingest", runs[0].FailedStage)
	assert.Equal(t, first.ID, runs[1].ID)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.GetRun(ctx, "missing")
	require.Error(t, err)
	require.Error(t, s.CompleteRun(ctx, "missing", ledger.Outcome{Status: ledger.RunStatusFailed}))
}
