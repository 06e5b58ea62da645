// Package report prints pipeline progress for humans.
//
// Output is for inspection only and is not meant to be parsed.
package report

import (
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/engine"
)

// Reporter writes console sections to w.
type Reporter struct {
	w     io.Writer
	style table.Style
}

// New returns a Reporter writing to w; nil discards everything.
func New(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w, style: table.StyleLight}
}

// Discard returns a Reporter that prints nothing.
func Discard() *Reporter {
	return New(nil)
}

func (r *Reporter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format, args...)
}

// Staged reports a file copied into the raw area.
func (r *Reporter) Staged(local, dst string) {
	r.printf("Staged %s -> %s\n", local, dst)
}

// Schema prints the schema of a loaded table.
func (r *Reporter) Schema(title string, info *engine.TableInfo) {
	r.printf("\n%s schema :\n", title)
	r.printf("%s", dataframe.FormatSchema(info.Fields))
}

// RowCount prints the number of records of a table.
func (r *Reporter) RowCount(title string, n int) {
	r.printf("\n%s dataframe %d records\n", title, n)
}

// Scalar prints a single metric. An invalid value prints as null.
func (r *Reporter) Scalar(label string, v sql.NullFloat64) {
	r.printf("\n%s is : %s\n", label, FormatValue(nullable(v)))
}

// Table prints rows as a box table under title. limit < 0 prints every row;
// otherwise at most limit rows are shown and the rest summarized.
func (r *Reporter) Table(title string, rows *engine.Rows, limit int) {
	r.printf("\n%s :\n", title)

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(r.style)

	header := make(table.Row, len(rows.Columns))
	for i, c := range rows.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	shown := rows.Values
	if limit >= 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, values := range shown {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = FormatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()

	if hidden := len(rows.Values) - len(shown); hidden > 0 {
		r.printf("only showing top %d rows\n", len(shown))
	}
}

// Uploaded prints the closing line of a successful run.
func (r *Reporter) Uploaded(root string, elapsed time.Duration) {
	r.printf("\nUploaded result dataframes to %s (%s)\n", root, elapsed.Round(time.Millisecond))
}

// Skipped reports an output left untouched in ignore mode.
func (r *Reporter) Skipped(path string) {
	r.printf("Skipped %s: output exists\n", path)
}

func nullable(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

// FormatValue renders a normalized engine value.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.DateTime)
	default:
		return fmt.Sprintf("%v", val)
	}
}
