package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/internal/app"
	"github.com/rustyeddy/scalper/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scalper",
	Short: "An intraday volatility and trend scalping engine",
	Long: `Scalper wakes up once a minute, pulls recent bars for one instrument,
and decides whether to close the open position at its take-profit or
stop-loss, or to open a new one.

Closed trades are appended to a journal and the engine state is persisted
between cycles, so the process can be restarted at any time.

Market data comes from Polygon, Alpaca, OANDA or a local candle CSV.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Shutdown(context.Background())
	},
}

var (
	cfgFile string
	envFile string

	cfg *config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "scalper.yaml", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with API keys")
}

// setup loads the environment and the config, then starts the logger.
// A missing default config file falls back to the built-in defaults.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = c

	return logger.Init(app.LoggerConfig(cfg))
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		c := config.Default()
		return c, c.Validate()
	}
	c, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}
