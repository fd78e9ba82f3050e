package cmd

import (
	"fmt"

	"github.com/rustyeddy/scalper/internal/app"
	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single decision cycle and exit",
	Long: `Run exactly one cycle and print the decision. Useful from cron or to
check a new config against live data.`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.Close()

	res, err := a.Runner.RunCycle(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s %s (%s)\n", cfg.Instrument, res.Outcome, res.Duration)
	if !res.Bar.Time.IsZero() {
		fmt.Printf("  Bar:   %s close %.4f\n", res.Bar.Time.Format("2006-01-02 15:04"), res.Bar.Close)
	}
	if res.Signal.Ready {
		fmt.Printf("  Vol:   %.4f  Trend: %.4f\n", res.Signal.Volatility, res.Signal.Trend)
	}
	if res.Opened != nil {
		p := res.Opened
		fmt.Printf("  Opened %s %.4f @ %.4f  TP %.4f  SL %.4f\n", p.Direction, p.Quantity, p.EntryPrice, p.TakeProfit, p.StopLoss)
		fmt.Printf("  Planned risk %.2f  R:R %.2f\n", res.PlannedRisk, res.PlannedRR)
	}
	if res.Closed != nil {
		t := res.Closed
		fmt.Printf("  Closed %s @ %.4f  P/L %.2f  Balance %.2f\n", t.Reason, t.ExitPrice, t.RealizedPL, t.BalanceAfter)
	}
	if res.CooldownLeft > 0 {
		fmt.Printf("  Cooldown: %s left\n", res.CooldownLeft)
	}
	return nil
}
