package cmd

import (
	"fmt"

	"github.com/rustyeddy/scalper/internal/app"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted engine state",
	Long: `Inspect or reset the persisted engine state.

Subcommands:
  show  - Print the balance, open position and last exit
  reset - Discard the state; the next cycle starts flat at the initial balance

Examples:
  scalper state show
  scalper state reset --yes`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the persisted state",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

var stateResetYes bool

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateResetCmd.Flags().BoolVar(&stateResetYes, "yes", false, "confirm the reset")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	a, err := app.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer a.Close()

	st, err := a.Store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	fmt.Printf("Instrument: %s\n", cfg.Instrument)
	fmt.Printf("Balance:    %.2f\n", st.Balance)
	if st.LastExitTime != nil {
		fmt.Printf("Last exit:  %s\n", st.LastExitTime.Format("2006-01-02 15:04:05 MST"))
	}
	if p := st.Position; p != nil {
		fmt.Printf("Position:   %s %s\n", p.Direction, p.ID)
		fmt.Printf("  Entry:    %.4f at %s\n", p.EntryPrice, p.EntryTime.Format("2006-01-02 15:04"))
		fmt.Printf("  Qty:      %.4f\n", p.Quantity)
		fmt.Printf("  TP / SL:  %.4f / %.4f\n", p.TakeProfit, p.StopLoss)
	} else {
		fmt.Println("Position:   flat")
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	if !stateResetYes {
		return fmt.Errorf("refusing to reset without --yes")
	}

	a, err := app.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer a.Close()

	if err := a.ResetState(); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Printf("✓ State reset; next cycle starts flat at %.2f\n", cfg.Account.InitialBalance)
	return nil
}
