package monitoring_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paveg/ecomlake/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStage(t *testing.T) {
	m := monitoring.NewMetrics()

	require.NoError(t, m.RecordStage("load", func() error { return nil }))
	boom := errors.New("boom")
	err := m.RecordStage("persist", func() error { return boom })
	require.ErrorIs(t, err, boom)

	stages := m.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "load", stages[0].Stage)
	assert.False(t, stages[0].Failed)
	assert.True(t, stages[1].Failed)

	assert.InDelta(t, 1, testutil.ToFloat64(m.StageFailures.WithLabelValues("persist")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.StageFailures.WithLabelValues("load")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))

	summary := m.Summary()
	assert.Equal(t, 2, summary.TotalStages)
	assert.Equal(t, 1, summary.Failures)
}

func TestGauges(t *testing.T) {
	m := monitoring.NewMetrics()
	m.ObserveRows("orders", 3)
	m.SetScalars(sql.NullFloat64{Float64: 100, Valid: true}, sql.NullFloat64{})
	m.RecordRun("succeeded", time.Unix(1700000000, 0))

	assert.InDelta(t, 3, testutil.ToFloat64(m.TableRows.WithLabelValues("orders")), 0)
	assert.InDelta(t, 100, testutil.ToFloat64(m.TotalRevenue), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.AverageOrderValue), 0, "null scalar leaves the gauge alone")
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("succeeded")), 0)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(m.LastRunTimestamp), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *monitoring.Metrics
	called := false
	require.NoError(t, m.RecordStage("load", func() error { called = true; return nil }))
	assert.True(t, called)
	m.ObserveRows("orders", 1)
	m.SetScalars(sql.NullFloat64{Valid: true}, sql.NullFloat64{Valid: true})
	m.RecordRun("failed", time.Now())
	assert.Nil(t, m.Stages())
	assert.Equal(t, monitoring.Summary{}, m.Summary())
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := monitoring.NewMetrics()
	m.ObserveRows("total_orders", 42)

	path := filepath.Join(t.TempDir(), "ecomlake.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `ecomlake_table_rows{table="total_orders"} 42`))
}
