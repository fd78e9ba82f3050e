package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/internal/app"
	"github.com/rustyeddy/scalper/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and display closed trades from the configured journal.

Subcommands:
  list    - List every closed trade
  trade   - Get details of a specific trade by ID
  today   - List trades closed today
  day     - List trades closed on a specific day
  summary - Win rate, P/L and return since the initial balance

Examples:
  scalper journal trade <trade-id>
  scalper journal day 2024-01-15
  scalper journal summary`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every closed trade",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize closed trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalSummaryCmd)
}

func openJournal() (journal.Journal, func(), error) {
	a, err := app.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	return a.Journal, func() { a.Close() }, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, done, err := openJournal()
	if err != nil {
		return err
	}
	defer done()

	recs, err := j.ListTrades(cmd.Context())
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	fmt.Println(journal.FormatTradesOrg(recs))
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, done, err := openJournal()
	if err != nil {
		return err
	}
	defer done()

	rec, err := j.GetTrade(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Println(journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return printDay(cmd.Context(), time.Now().In(time.Local).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return printDay(cmd.Context(), args[0])
}

func printDay(ctx context.Context, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, done, err := openJournal()
	if err != nil {
		return err
	}
	defer done()

	recs, err := closedBetween(ctx, j, start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Println(journal.FormatTradesOrg(recs))
	return nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	j, done, err := openJournal()
	if err != nil {
		return err
	}
	defer done()

	recs, err := j.ListTrades(cmd.Context())
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}

	s := journal.Summarize(recs)
	out, err := journal.FormatSummaryOrg(s)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// closedBetween uses the journal's own range query when it has one.
func closedBetween(ctx context.Context, j journal.Journal, start, end time.Time) ([]journal.TradeRecord, error) {
	type ranger interface {
		ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]journal.TradeRecord, error)
	}
	if r, ok := j.(ranger); ok {
		return r.ListTradesClosedBetween(ctx, start, end)
	}

	all, err := j.ListTrades(ctx)
	if err != nil {
		return nil, err
	}
	var out []journal.TradeRecord
	for _, t := range all {
		if !t.ExitTime.Before(start) && t.ExitTime.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
