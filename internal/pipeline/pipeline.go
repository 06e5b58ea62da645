// Package pipeline runs the Olist ETL: ingest, load, integrate, aggregate and
// persist, strictly in that order.
package pipeline

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/paveg/ecomlake/internal/config"
	"github.com/paveg/ecomlake/internal/engine"
	"github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/ledger"
	"github.com/paveg/ecomlake/internal/logging"
	"github.com/paveg/ecomlake/internal/monitoring"
	"github.com/paveg/ecomlake/internal/report"
	"github.com/paveg/ecomlake/internal/storage"
)

// Stage names, as used in errors, metrics and the ledger.
const (
	StageIngest    = "ingest"
	StageLoad      = "load"
	StageIntegrate = "integrate"
	StageAggregate = "aggregate"
	StagePersist   = "persist"
)

// Catalog tables.
const (
	TableOrders      = "orders"
	TableOrderItems  = "order_items"
	TableIntegrated  = "integrated_orders"
	TableMonthly     = "monthly_revenue"
	TableTopProducts = "top_selling_products"
)

// Output directory names under <root>/analytics.
const (
	OutputTotalOrders    = "total_orders"
	OutputMonthlyRevenue = "monthly_revenue"
	OutputTopProducts    = "top_selling_products"
)

// Result is what a run produced.
type Result struct {
	RunID string

	Staged []string

	OrdersRows     int
	OrderItemsRows int
	IntegratedRows int

	TotalRevenue      sql.NullFloat64
	AverageOrderValue sql.NullFloat64
	MonthlyRevenue    *engine.Rows
	TopProducts       *engine.Rows

	Outputs []string
	Skipped []string

	Duration time.Duration
}

// Pipeline wires the collaborators of a run.
type Pipeline struct {
	cfg      config.Config
	engine   engine.Engine
	store    storage.Store
	reporter *report.Reporter
	metrics  *monitoring.Metrics
	ledger   *ledger.Store
	logger   *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithReporter prints progress through r.
func WithReporter(r *report.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithMetrics records stage timings and results in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLedger records every run in l.
func WithLedger(l *ledger.Store) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline over eng and store. Zero-valued config fields take
// their defaults.
func New(cfg config.Config, eng engine.Engine, store storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg.WithDefaults(),
		engine: eng,
		store:  store,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reporter == nil {
		p.reporter = report.Discard()
	}
	p.logger = logging.OrDiscard(p.logger)
	return p
}

type stage struct {
	name string
	fn   func(context.Context, *Result) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StageIngest, p.Ingest},
		{StageLoad, p.Load},
		{StageIntegrate, p.Integrate},
		{StageAggregate, p.Aggregate},
		{StagePersist, p.Persist},
	}
}

// Run executes every stage in order. The first failure aborts the run and is
// returned as an *errors.StageError; the partial Result is returned with it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	p.startRun(ctx, res)

	for _, s := range p.stages() {
		if err := p.runStage(ctx, s, res); err != nil {
			res.Duration = time.Since(start)
			p.finishRun(ctx, res, s.name, err)
			return res, err
		}
	}

	res.Duration = time.Since(start)
	p.reporter.Uploaded(p.store.URI(p.analyticsDir()), res.Duration)
	p.finishRun(ctx, res, "", nil)
	return res, nil
}

// Stage copies the input files into the raw area and nothing else.
func (p *Pipeline) Stage(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	err := p.runStage(ctx, stage{StageIngest, p.Ingest}, res)
	res.Duration = time.Since(start)
	return res, err
}

func (p *Pipeline) runStage(ctx context.Context, s stage, res *Result) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStageError(s.name, err)
	}

	logger := p.logger.With(slog.String("stage", s.name))
	logger.Debug("stage started")
	start := time.Now()

	err := p.metrics.RecordStage(s.name, func() error {
		return s.fn(ctx, res)
	})
	if err != nil {
		logger.Debug("stage failed", slog.Duration("duration", time.Since(start)), slog.Any("error", err))
		return errors.NewStageError(s.name, err)
	}
	logger.Info("stage completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (p *Pipeline) startRun(ctx context.Context, res *Result) {
	if p.ledger == nil {
		return
	}
	run, err := p.ledger.StartRun(ctx, p.engine.Name(), p.store.Backend(), p.cfg.Storage.Root)
	if err != nil {
		p.logger.Warn("recording run start failed", slog.Any("error", err))
		return
	}
	res.RunID = run.ID
	p.logger = p.logger.With(slog.String("run_id", run.ID))
}

func (p *Pipeline) finishRun(ctx context.Context, res *Result, failedStage string, runErr error) {
	status := ledger.RunStatusSucceeded
	if runErr != nil {
		status = ledger.RunStatusFailed
	}
	p.metrics.RecordRun(string(status), time.Now())

	if p.ledger == nil || res.RunID == "" {
		return
	}
	out := ledger.Outcome{
		Status:            status,
		FailedStage:       failedStage,
		OrdersRows:        res.OrdersRows,
		OrderItemsRows:    res.OrderItemsRows,
		IntegratedRows:    res.IntegratedRows,
		TotalRevenue:      res.TotalRevenue,
		AverageOrderValue: res.AverageOrderValue,
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	// The run context may already be canceled.
	if err := p.ledger.CompleteRun(context.WithoutCancel(ctx), res.RunID, out); err != nil {
		p.logger.Warn("recording run completion failed", slog.Any("error", err))
	}
}
