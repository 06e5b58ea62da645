// Package ledger keeps a SQLite history of pipeline runs.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID                string
	Engine            string
	StorageBackend    string
	StorageRoot       string
	Status            RunStatus
	StartedAt         time.Time
	CompletedAt       *time.Time
	FailedStage       string
	Error             string
	OrdersRows        int
	OrderItemsRows    int
	IntegratedRows    int
	TotalRevenue      sql.NullFloat64
	AverageOrderValue sql.NullFloat64
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Outcome is what a finished run reports.
type Outcome struct {
	Status            RunStatus
	FailedStage       string
	Error             string
	OrdersRows        int
	OrderItemsRows    int
	IntegratedRows    int
	TotalRevenue      sql.NullFloat64
	AverageOrderValue sql.NullFloat64
}

// Store records runs in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger at path and applies pending
// migrations. Use ":memory:" for a throwaway ledger.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// An in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the current migration version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so that timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// StartRun records a new running run.
func (s *Store) StartRun(ctx context.Context, engine, backend, root string) (*Run, error) {
	run := &Run{
		ID:             uuid.New().String(),
		Engine:         engine,
		StorageBackend: backend,
		StorageRoot:    root,
		Status:         RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("engine", engine))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, engine, storage_backend, storage_root, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Engine, run.StorageBackend, run.StorageRoot, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CompleteRun records the outcome of run id.
func (s *Store) CompleteRun(ctx context.Context, id string, out Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, completed_at = ?, failed_stage = ?, error = ?,
			orders_rows = ?, order_items_rows = ?, integrated_rows = ?,
			total_revenue = ?, average_order_value = ?
		WHERE id = ?`,
		string(out.Status), formatTime(time.Now()), nullString(out.FailedStage), nullString(out.Error),
		out.OrdersRows, out.OrderItemsRows, out.IntegratedRows,
		out.TotalRevenue, out.AverageOrderValue,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, engine, storage_backend, storage_root, status, started_at, completed_at,
	failed_stage, error, orders_rows, order_items_rows, integrated_rows, total_revenue, average_order_value`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                     Run
		status, started         string
		completed, stage, errMs sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Engine, &run.StorageBackend, &run.StorageRoot, &status, &started, &completed,
		&stage, &errMs, &run.OrdersRows, &run.OrderItemsRows, &run.IntegratedRows,
		&run.TotalRevenue, &run.AverageOrderValue); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.FailedStage = stage.String
	run.Error = errMs.String

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	run.StartedAt = t
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
