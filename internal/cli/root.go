// Package cli provides the command-line interface for ecomlake.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paveg/ecomlake/internal/config"
	"github.com/paveg/ecomlake/internal/logging"
	"github.com/paveg/ecomlake/internal/version"
	"github.com/spf13/cobra"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "ecomlake",
		Short: "ecomlake - Olist e-commerce batch ETL",
		Long: `ecomlake stages the Olist orders and order items CSV files into a storage
namespace, joins and cleanses them, computes revenue metrics and writes the
results as Parquet under <root>/analytics.`,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = logging.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
	flags.String("engine", "", "execution engine (native|duckdb)")
	flags.String("storage", "", "storage backend (local|hdfs|s3)")
	flags.String("root", "", "storage namespace root")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.String("ledger", "", "path of the SQLite run ledger (empty disables it)")
	flags.Int("workers", 0, "native engine worker count (0 uses every CPU)")
	flags.String("output", "", "output mode when results exist (overwrite|error|ignore)")

	_ = rootCmd.RegisterFlagCompletionFunc("engine", fixedCompletion("native", "duckdb"))
	_ = rootCmd.RegisterFlagCompletionFunc("storage", fixedCompletion("local", "hdfs", "s3"))
	_ = rootCmd.RegisterFlagCompletionFunc("output", fixedCompletion(config.ModeOverwrite, config.ModeError, config.ModeIgnore))

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewStageCommand())
	rootCmd.AddCommand(NewRunsCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// Execute runs the root command with args, stopping on SIGINT or SIGTERM.
func Execute(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return nil
	}
	// Before the configuration is loaded there is no logger yet.
	if cmd != nil && cmd.Context() != nil && cmd.Context().Value(configKey{}) != nil {
		logging.FromContext(cmd.Context()).Error("command failed", slog.String("command", cmd.Name()), slog.Any("error", err))
	} else {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return err
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg := config.NewConfig()
	return &cfg
}
