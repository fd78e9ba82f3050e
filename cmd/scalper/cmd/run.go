package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/scalper/internal/app"
	"github.com/rustyeddy/scalper/internal/logger"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision cycle on a schedule",
	Long: `Run the engine until interrupted. Each cycle loads the state, fetches
bars, closes or opens a position and persists the result.

With schedule.align set, cycles start a few seconds after each minute
boundary so the bar that just closed has been published.

Examples:
  scalper run
  scalper run -c qqq.yaml --runs 10`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runMaxRuns   int
	runImmediate bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runMaxRuns, "runs", "n", 0, "stop after this many cycles (0 runs forever)")
	runCmd.Flags().BoolVar(&runImmediate, "now", true, "run one cycle before waiting for the first slot")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "engine starting",
		"instrument", cfg.Instrument,
		"source", cfg.Market.Source,
		"state", cfg.State.Type,
		"journal", cfg.Journal.Type,
	)

	err = a.Scheduler(runMaxRuns, runImmediate).Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info(context.Background(), "engine stopped")
		return nil
	}
	return err
}
