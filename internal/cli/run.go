package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/paveg/ecomlake/internal/config"
	"github.com/paveg/ecomlake/internal/engine"
	"github.com/paveg/ecomlake/internal/ledger"
	"github.com/paveg/ecomlake/internal/logging"
	"github.com/paveg/ecomlake/internal/monitoring"
	"github.com/paveg/ecomlake/internal/pipeline"
	"github.com/paveg/ecomlake/internal/report"
	"github.com/paveg/ecomlake/internal/storage"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		Long: `Stage the input files, load, integrate and aggregate them, and write the
analytics tables. Stages run in order; the first failure stops the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			logger := logging.FromContext(ctx)

			rt, err := newRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			stopServer := rt.serveMetrics(cfg.Metrics.Listen)
			defer stopServer()

			p := pipeline.New(*cfg, rt.engine, rt.store,
				pipeline.WithReporter(report.New(cmd.OutOrStdout())),
				pipeline.WithMetrics(rt.metrics),
				pipeline.WithLedger(rt.ledger),
				pipeline.WithLogger(logger),
			)
			res, runErr := p.Run(ctx)
			rt.exportMetrics(ctx, cfg.Metrics)
			if runErr != nil {
				return runErr
			}

			logger.Info("run completed",
				slog.String("run_id", res.RunID),
				slog.Int("integrated_rows", res.IntegratedRows),
				slog.Duration("duration", res.Duration))
			return nil
		},
	}
}

// NewStageCommand creates the stage command.
func NewStageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Copy the input files into <root>/raw only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			logger := logging.FromContext(ctx)

			store, err := newStore(cfg, logger)
			if err != nil {
				return err
			}
			e, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			p := pipeline.New(*cfg, e, store,
				pipeline.WithReporter(report.New(cmd.OutOrStdout())),
				pipeline.WithLogger(logger),
			)
			_, err = p.Stage(ctx)
			return err
		},
	}
}

// runtime holds the collaborators of a pipeline run.
type runtime struct {
	engine  engine.Engine
	store   storage.Store
	metrics *monitoring.Metrics
	ledger  *ledger.Store
	logger  *slog.Logger
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	return storage.New(storage.Options{
		Backend: cfg.Storage.Backend,
		HDFSBin: cfg.Storage.HDFSBin,
		S3: storage.S3Options{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
		},
		Logger: logger,
	})
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	return engine.New(ctx, cfg.Engine.Name, engine.Options{
		Workers:          cfg.Engine.Workers,
		DuckDBPath:       cfg.Engine.DuckDBPath,
		TimestampPattern: cfg.TimestampPattern(),
		Delimiter:        cfg.Delimiter(),
		Logger:           logger,
	})
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{store: store, metrics: monitoring.NewMetrics(), logger: logger}
	if cfg.Ledger.Path != "" {
		rt.ledger, err = ledger.Open(ctx, cfg.Ledger.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
	}

	rt.engine, err = newEngine(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.engine != nil {
		if err := rt.engine.Close(); err != nil {
			rt.logger.Warn("closing engine failed", slog.Any("error", err))
		}
	}
	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			rt.logger.Warn("closing ledger failed", slog.Any("error", err))
		}
	}
}

// serveMetrics starts the metrics server when addr is set and returns its
// stop function.
func (rt *runtime) serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	server := monitoring.NewServer(rt.metrics, addr)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Warn("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	rt.logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			rt.logger.Warn("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

// exportMetrics writes the configured metric sinks. Failures are logged and
// never fail the run.
func (rt *runtime) exportMetrics(ctx context.Context, cfg config.MetricsConfig) {
	if cfg.Textfile != "" {
		if err := rt.metrics.WriteTextfile(cfg.Textfile); err != nil {
			rt.logger.Warn("writing metrics textfile failed", slog.String("path", cfg.Textfile), slog.Any("error", err))
		}
	}
	if cfg.Pushgateway != "" {
		if err := rt.metrics.Push(context.WithoutCancel(ctx), cfg.Pushgateway); err != nil {
			rt.logger.Warn("pushing metrics failed", slog.String("url", cfg.Pushgateway), slog.Any("error", err))
		}
	}
}
