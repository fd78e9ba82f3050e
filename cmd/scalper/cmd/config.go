package cmd

import (
	"fmt"

	"github.com/rustyeddy/scalper/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage engine configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  scalper config init -o qqq.yaml
  scalper config validate -f qqq.yaml`,
	// Config commands work on files directly and must not fail on a
	// broken --config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "scalper.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	c := config.Default()
	if err := c.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nSet POLYGON_API_KEY (or add it to .env) and run with:")
	fmt.Printf("  scalper run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Instrument: %s (%.0fx on %.2f)\n", c.Instrument, c.Account.Leverage, c.Account.InitialBalance)
	fmt.Printf("  Exits: TP %.3f%%  SL %.3f%%  cooldown %s\n", c.Strategy.TakeProfitPct*100, c.Strategy.StopLossPct*100, c.Strategy.Cooldown)
	fmt.Printf("  Volatility band: [%.2f, %.2f]\n", c.Strategy.VolatilityMin, c.Strategy.VolatilityMax)
	fmt.Printf("  Market: %s  State: %s  Journal: %s\n", c.Market.Source, c.State.Type, c.Journal.Type)
	return nil
}
