package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/scalper/internal/app"
	"github.com/rustyeddy/scalper/market/csvsource"
	"github.com/spf13/cobra"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download market data",
	Long: `Download bars from the configured market source.

The output is a candle CSV that the csv market source can replay, which
makes it possible to dry-run a config against a recorded session.

Examples:
  scalper data fetch --lookback 6h -o qqq.csv
  scalper data fetch --symbol SPY --lookback 24h -o spy.csv`,
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bars and write candle CSV",
	Args:  cobra.NoArgs,
	RunE:  runDataFetch,
}

var (
	dataSymbol   string
	dataLookback time.Duration
	dataOut      string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	dataFetchCmd.Flags().StringVarP(&dataSymbol, "symbol", "s", "", "symbol to fetch (default: config instrument)")
	dataFetchCmd.Flags().DurationVarP(&dataLookback, "lookback", "l", 6*time.Hour, "how far back to fetch")
	dataFetchCmd.Flags().StringVarP(&dataOut, "out", "o", "", "output CSV path (required)")
	dataFetchCmd.MarkFlagRequired("out")
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	sym := dataSymbol
	if sym == "" {
		sym = cfg.Instrument
	}

	src, err := app.NewSource(cfg)
	if err != nil {
		return err
	}

	bars, err := src.Bars(cmd.Context(), sym, dataLookback)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", sym, err)
	}

	f, err := os.Create(dataOut)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := csvsource.Write(f, sym, cfg.BarInterval(), bars); err != nil {
		return fmt.Errorf("write %s: %w", dataOut, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("✓ Wrote %d %s bars to %s\n", len(bars), sym, dataOut)
	return nil
}
