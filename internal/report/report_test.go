package report_test

import (
	"bytes"
	"database/sql"
	"testing"
	"time"

	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/engine"
	"github.com/paveg/ecomlake/internal/ledger"
	"github.com/paveg/ecomlake/internal/report"
	"github.com/stretchr/testify/assert"
)

func TestSchemaAndCounts(t *testing.T) {
	var buf bytes.Buffer
	r := report.New(&buf)

	r.Schema("Orders", &engine.TableInfo{
		Name:   "orders",
		Fields: []dataframe.Field{{Name: "order_id", Type: "string", Nullable: true}},
	})
	r.RowCount("Orders", 3)

	out := buf.String()
	assert.Contains(t, out, "Orders schema :\nroot\n |-- order_id: string (nullable = true)\n")
	assert.Contains(t, out, "Orders dataframe 3 records")
}

func TestScalar(t *testing.T) {
	var buf bytes.Buffer
	r := report.New(&buf)

	r.Scalar("Total Revenue", sql.NullFloat64{Float64: 299.5, Valid: true})
	r.Scalar("Average order value", sql.NullFloat64{})

	assert.Contains(t, buf.String(), "Total Revenue is : 299.5")
	assert.Contains(t, buf.String(), "Average order value is : null")
}

func TestTableLimit(t *testing.T) {
	rows := &engine.Rows{
		Columns: []string{"product_id", "Total_orders"},
		Values: [][]any{
			{"P1", int64(3)},
			{"P2", int64(2)},
			{nil, int64(1)},
		},
	}

	t.Run("all rows", func(t *testing.T) {
		var buf bytes.Buffer
		report.New(&buf).Table("Top products", rows, -1)
		out := buf.String()
		assert.Contains(t, out, "Top products :")
		assert.Contains(t, out, "PRODUCT_ID")
		assert.Contains(t, out, "null")
		assert.NotContains(t, out, "only showing")
	})

	t.Run("limited", func(t *testing.T) {
		var buf bytes.Buffer
		report.New(&buf).Table("Top products", rows, 2)
		out := buf.String()
		assert.Contains(t, out, "P2")
		assert.NotContains(t, out, "null")
		assert.Contains(t, out, "only showing top 2 rows")
	})
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{100.0, "100"},
		{0.25, "0.25"},
		{int64(7), "7"},
		{"x", "x"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02 03:04:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, report.FormatValue(tt.in))
	}
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		report.Discard().Uploaded("/ecommerce", time.Second)
	})
}

func TestRuns(t *testing.T) {
	var buf bytes.Buffer
	r := report.New(&buf)

	r.Runs(nil)
	assert.Equal(t, "(0 runs)\n", buf.String())

	buf.Reset()
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	r.Runs([]*ledger.Run{
		{
			ID: "run-1", Status: ledger.RunStatusFailed, FailedStage: "ingest",
			Engine: "native", StorageBackend: "hdfs", StorageRoot: "/ecommerce",
			StartedAt: started, CompletedAt: &completed, Error: "exit status 1",
		},
		{
			ID: "run-2", Status: ledger.RunStatusRunning, Engine: "duckdb",
			StorageBackend: "local", StorageRoot: "/tmp/x", StartedAt: started,
			TotalRevenue: sql.NullFloat64{Float64: 12.5, Valid: true},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "failed (ingest)")
	assert.Contains(t, out, "hdfs:/ecommerce")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "(2 runs)")
}
