package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/errors"
	dfio "github.com/paveg/ecomlake/internal/io"
	"github.com/paveg/ecomlake/internal/validation"
)

// DuckDB runs every operation as SQL against an embedded DuckDB database.
// CSV input and Parquet output are spooled through files in a private
// temporary directory, since DuckDB reads and writes paths.
type DuckDB struct {
	db       *sql.DB
	spool    string
	strftime string
	opts     Options
	logger   *slog.Logger
}

type dbColumn struct {
	name   string
	dbType string
}

// NewDuckDB opens the database at opts.DuckDBPath, in memory when empty.
func NewDuckDB(ctx context.Context, opts Options) (*DuckDB, error) {
	opts = opts.withDefaults()
	strftime, err := opts.TimestampPattern.Strftime()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", opts.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	spool, err := os.MkdirTemp(opts.TempDir, "ecomlake-duckdb-")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	path := opts.DuckDBPath
	if path == "" {
		path = ":memory:"
	}
	opts.Logger.Debug("duckdb engine ready", "path", path, "spool", spool)
	return &DuckDB{db: db, spool: spool, strftime: strftime, opts: opts, logger: opts.Logger}, nil
}

// Name implements Engine.
func (d *DuckDB) Name() string { return NameDuckDB }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d *DuckDB) exec(ctx context.Context, query string, args ...any) error {
	d.logger.Debug("duckdb exec", "sql", query)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// columns returns the columns of table in order.
func (d *DuckDB) columns(ctx context.Context, op, table string) ([]dbColumn, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []dbColumn
	for rows.Next() {
		var c dbColumn
		if err := rows.Scan(&c.name, &c.dbType); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(cols) == 0 {
		return nil, errors.NewTableNotFoundError(op, table)
	}
	return cols, nil
}

// requireColumns checks that table has every named column and returns its
// columns.
func (d *DuckDB) requireColumns(ctx context.Context, op, table string, names ...string) ([]dbColumn, error) {
	cols, err := d.columns(ctx, op, table)
	if err != nil {
		return nil, err
	}
	present := make(validation.ColumnSet, len(cols))
	for i, c := range cols {
		present[i] = c.name
	}
	if err := validation.ValidateColumns(present, op, names...); err != nil {
		return nil, err
	}
	return cols, nil
}

func findColumn(cols []dbColumn, name string) *dbColumn {
	for i := range cols {
		if cols[i].name == name {
			return &cols[i]
		}
	}
	return nil
}

// replace materializes query as dst. The result is built under a scratch
// name first so that query may read dst itself.
func (d *DuckDB) replace(ctx context.Context, dst, query string) error {
	scratch := "__ecomlake_" + dst
	if err := d.exec(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", quoteIdent(scratch), query)); err != nil {
		return err
	}
	if err := d.exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(dst)); err != nil {
		return err
	}
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(scratch), quoteIdent(dst)))
}

// spoolFile copies r into a new file under the spool directory.
func (d *DuckDB) spoolFile(r io.Reader, pattern string) (string, error) {
	f, err := os.CreateTemp(d.spool, pattern)
	if err != nil {
		return "", fmt.Errorf("creating spool file: %w", err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	return f.Name(), nil
}

// ReadCSV implements Engine.
func (d *DuckDB) ReadCSV(ctx context.Context, table string, r io.Reader) error {
	path, err := d.spoolFile(r, "*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(path)

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true, delim=%s, timestampformat=%s)",
		quoteIdent(table),
		quoteLiteral(path),
		quoteLiteral(string(d.opts.Delimiter)),
		quoteLiteral(d.strftime),
	)
	if err := d.exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

// typeName maps DuckDB type names onto the names dataframe.TypeName uses.
func typeName(dbType string) string {
	switch t := strings.ToUpper(dbType); {
	case t == "VARCHAR":
		return "string"
	case t == "BIGINT":
		return "long"
	case t == "INTEGER":
		return "integer"
	case t == "DOUBLE":
		return "double"
	case t == "BOOLEAN":
		return "boolean"
	case strings.HasPrefix(t, "TIMESTAMP"):
		return "timestamp"
	default:
		return strings.ToLower(t)
	}
}

// Describe implements Engine.
func (d *DuckDB) Describe(ctx context.Context, table string) (*TableInfo, error) {
	cols, err := d.columns(ctx, "Describe", table)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(table)).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting rows of %s: %w", table, err)
	}

	info := &TableInfo{Name: table, Rows: int(count), Fields: make([]dataframe.Field, len(cols))}
	for i, c := range cols {
		info.Fields[i] = dataframe.Field{Name: c.name, Type: typeName(c.dbType), Nullable: true}
	}
	return info, nil
}

// Join implements Engine.
func (d *DuckDB) Join(ctx context.Context, dst, left, right, key string) error {
	leftCols, err := d.requireColumns(ctx, "Join", left, key)
	if err != nil {
		return err
	}
	rightCols, err := d.requireColumns(ctx, "Join", right, key)
	if err != nil {
		return err
	}

	sel := []string{"l." + quoteIdent(key)}
	for _, c := range leftCols {
		if c.name != key {
			sel = append(sel, "l."+quoteIdent(c.name))
		}
	}
	for _, c := range rightCols {
		if c.name == key {
			continue
		}
		out := c.name
		if findColumn(leftCols, c.name) != nil {
			out += "_right"
		}
		sel = append(sel, fmt.Sprintf("r.%s AS %s", quoteIdent(c.name), quoteIdent(out)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s l JOIN %s r ON l.%s = r.%s",
		strings.Join(sel, ", "), quoteIdent(left), quoteIdent(right), quoteIdent(key), quoteIdent(key))
	return d.replace(ctx, dst, query)
}

// DropNulls implements Engine.
func (d *DuckDB) DropNulls(ctx context.Context, dst, src string, columns []string) error {
	cols, err := d.requireColumns(ctx, "DropNulls", src, columns...)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		for _, c := range cols {
			columns = append(columns, c.name)
		}
	}
	conds := make([]string, len(columns))
	for i, name := range columns {
		conds[i] = quoteIdent(name) + " IS NOT NULL"
	}
	return d.replace(ctx, dst, fmt.Sprintf("SELECT * FROM %s WHERE %s", quoteIdent(src), strings.Join(conds, " AND ")))
}

// FillNulls implements Engine. Only VARCHAR columns are filled.
func (d *DuckDB) FillNulls(ctx context.Context, dst, src, value string, columns []string) error {
	cols, err := d.requireColumns(ctx, "FillNulls", src, columns...)
	if err != nil {
		return err
	}
	var repl []string
	for _, name := range columns {
		if typeName(findColumn(cols, name).dbType) != "string" {
			continue
		}
		repl = append(repl, fmt.Sprintf("coalesce(%s, %s) AS %s", quoteIdent(name), quoteLiteral(value), quoteIdent(name)))
	}
	return d.replace(ctx, dst, selectReplace(src, repl))
}

// ToTimestamp implements Engine.
func (d *DuckDB) ToTimestamp(ctx context.Context, dst, src string, columns []string, pattern common.DateTimePattern) error {
	format, err := pattern.Strftime()
	if err != nil {
		return err
	}
	cols, err := d.requireColumns(ctx, "ToTimestamp", src, columns...)
	if err != nil {
		return err
	}
	var repl []string
	for _, name := range columns {
		if typeName(findColumn(cols, name).dbType) == "timestamp" {
			continue
		}
		repl = append(repl, fmt.Sprintf("try_strptime(CAST(%s AS VARCHAR), %s) AS %s",
			quoteIdent(name), quoteLiteral(format), quoteIdent(name)))
	}
	return d.replace(ctx, dst, selectReplace(src, repl))
}

func selectReplace(table string, repl []string) string {
	if len(repl) == 0 {
		return "SELECT * FROM " + quoteIdent(table)
	}
	return fmt.Sprintf("SELECT * REPLACE (%s) FROM %s", strings.Join(repl, ", "), quoteIdent(table))
}

// whereClause renders where with its bind arguments.
func whereClause(where *Predicate) (string, []any) {
	if where == nil {
		return "", nil
	}
	return fmt.Sprintf(" WHERE CAST(%s AS VARCHAR) = ?", quoteIdent(where.Column)), []any{where.Equals}
}

func (d *DuckDB) scalar(ctx context.Context, op, fn, table, column string, where *Predicate) (sql.NullFloat64, error) {
	need := []string{column}
	if where != nil {
		need = append(need, where.Column)
	}
	if _, err := d.requireColumns(ctx, op, table, need...); err != nil {
		return sql.NullFloat64{}, err
	}
	cond, args := whereClause(where)
	query := fmt.Sprintf("SELECT %s(TRY_CAST(%s AS DOUBLE)) FROM %s%s", fn, quoteIdent(column), quoteIdent(table), cond)

	var v sql.NullFloat64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return sql.NullFloat64{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return v, nil
}

// Sum implements Engine.
func (d *DuckDB) Sum(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error) {
	return d.scalar(ctx, "Sum", "sum", table, column, where)
}

// Mean implements Engine.
func (d *DuckDB) Mean(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error) {
	return d.scalar(ctx, "Mean", "avg", table, column, where)
}

// inlineWhere renders where with the value inlined, for statements that
// materialize a table.
func inlineWhere(where *Predicate) string {
	if where == nil {
		return ""
	}
	return fmt.Sprintf(" WHERE CAST(%s AS VARCHAR) = %s", quoteIdent(where.Column), quoteLiteral(where.Equals))
}

func predicateColumns(where *Predicate, names ...string) []string {
	if where != nil {
		names = append(names, where.Column)
	}
	return names
}

// MonthlySum implements Engine.
func (d *DuckDB) MonthlySum(ctx context.Context, dst, src, tsColumn, valueColumn, alias string, where *Predicate) error {
	if _, err := d.requireColumns(ctx, "MonthlySum", src, predicateColumns(where, tsColumn, valueColumn)...); err != nil {
		return err
	}
	ts := quoteIdent(tsColumn)
	query := fmt.Sprintf(`SELECT CAST(year(%s) AS INTEGER) AS "year", CAST(month(%s) AS INTEGER) AS "month", `+
		`sum(TRY_CAST(%s AS DOUBLE)) AS %s FROM %s%s GROUP BY 1, 2 ORDER BY 1 ASC NULLS LAST, 2 ASC NULLS LAST`,
		ts, ts, quoteIdent(valueColumn), quoteIdent(alias), quoteIdent(src), inlineWhere(where))
	return d.replace(ctx, dst, query)
}

// CountBy implements Engine.
func (d *DuckDB) CountBy(ctx context.Context, dst, src, key, countColumn, alias string, where *Predicate) error {
	if _, err := d.requireColumns(ctx, "CountBy", src, predicateColumns(where, key, countColumn)...); err != nil {
		return err
	}
	query := fmt.Sprintf(`SELECT %s, count(%s) AS %s FROM %s%s GROUP BY 1 ORDER BY 2 DESC, 1 ASC NULLS LAST`,
		quoteIdent(key), quoteIdent(countColumn), quoteIdent(alias), quoteIdent(src), inlineWhere(where))
	return d.replace(ctx, dst, query)
}

// Rows implements Engine.
func (d *DuckDB) Rows(ctx context.Context, table string, limit int) (*Rows, error) {
	if _, err := d.columns(ctx, "Rows", table); err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + quoteIdent(table)
	if limit >= 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	//nolint:rowserrcheck // rows.Err is checked after the loop
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: names}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out.Values = append(out.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// duckCompression maps a codec name onto DuckDB's COPY option.
func duckCompression(name string) (string, error) {
	if _, err := dfio.ParseCompression(name); err != nil {
		return "", err
	}
	switch name {
	case "":
		return "snappy", nil
	case "none":
		return "uncompressed", nil
	default:
		return name, nil
	}
}

// WriteParquet implements Engine.
func (d *DuckDB) WriteParquet(ctx context.Context, table string, w io.Writer, compression string) error {
	codec, err := duckCompression(compression)
	if err != nil {
		return err
	}
	if _, err := d.columns(ctx, "WriteParquet", table); err != nil {
		return err
	}

	f, err := os.CreateTemp(d.spool, "*.parquet")
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	query := fmt.Sprintf("COPY (SELECT * FROM %s) TO %s (FORMAT PARQUET, COMPRESSION %s)",
		quoteIdent(table), quoteLiteral(path), quoteLiteral(codec))
	if err := d.exec(ctx, query); err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading spool file: %w", err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copying parquet output: %w", err)
	}
	return nil
}

// Drop implements Engine.
func (d *DuckDB) Drop(ctx context.Context, table string) error {
	return d.exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table))
}

// Close implements Engine.
func (d *DuckDB) Close() error {
	err := d.db.Close()
	if rerr := os.RemoveAll(d.spool); err == nil {
		err = rerr
	}
	return err
}

// SpoolDir returns the directory holding temporary files.
func (d *DuckDB) SpoolDir() string {
	return filepath.Clean(d.spool)
}
