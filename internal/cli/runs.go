package cli

import (
	"errors"

	"github.com/paveg/ecomlake/internal/ledger"
	"github.com/paveg/ecomlake/internal/logging"
	"github.com/paveg/ecomlake/internal/report"
	"github.com/spf13/cobra"
)

const defaultRunsLimit = 20

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			if cfg.Ledger.Path == "" {
				return errors.New("no ledger configured: set ledger.path or --ledger")
			}

			store, err := ledger.Open(ctx, cfg.Ledger.Path, logging.FromContext(ctx))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			report.New(cmd.OutOrStdout()).Runs(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultRunsLimit, "maximum number of runs to show")
	return cmd
}
