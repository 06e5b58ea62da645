package report

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/paveg/ecomlake/internal/ledger"
)

// Runs prints ledger runs, newest first as given.
func (r *Reporter) Runs(runs []*ledger.Run) {
	if len(runs) == 0 {
		r.printf("(0 runs)\n")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(r.style)
	t.AppendHeader(table.Row{"id", "status", "engine", "storage", "started", "duration", "rows", "total revenue", "aov", "error"})

	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		status := string(run.Status)
		if run.FailedStage != "" {
			status += " (" + run.FailedStage + ")"
		}
		t.AppendRow(table.Row{
			run.ID,
			status,
			run.Engine,
			run.StorageBackend + ":" + run.StorageRoot,
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			run.IntegratedRows,
			FormatValue(nullable(run.TotalRevenue)),
			FormatValue(nullable(run.AverageOrderValue)),
			run.Error,
		})
	}
	t.Render()
	r.printf("(%d runs)\n", len(runs))
}
