package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/whisper/internal/app"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/scanner"
)

const dateLayout = "2006-01-02"

var scanCmd = &cobra.Command{
	Use:   "scan [START_DATE]",
	Short: "Scan the earnings window for volatility premium",
	Long: `Scan refreshes the earnings calendar for the configured window and
runs the full pipeline on every announcement in it. START_DATE
(YYYY-MM-DD) defaults to today in the exchange zone.

Exits 0 when at least one tradeable opportunity was found, 1 otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	start, err := resolveStart(a, args)
	if err != nil {
		return err
	}
	end := start.AddDate(0, 0, a.Cfg.Scan.WindowDays)

	result, err := a.Scanner.Scan(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(result)
	} else {
		renderScan(os.Stdout, result, a.Cfg.Scan.TopN)
	}

	if !hasTrade(result.Opportunities) {
		exitCode = 1
	}
	return nil
}

// resolveStart parses an optional YYYY-MM-DD argument in the exchange
// zone, defaulting to today.
func resolveStart(a *app.App, args []string) (time.Time, error) {
	if len(args) == 0 {
		now := time.Now().In(a.Clock.Location())
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.Clock.Location()), nil
	}
	start, err := time.ParseInLocation(dateLayout, args[0], a.Clock.Location())
	if err != nil {
		return time.Time{}, domain.Errorf(domain.ErrInvalid, "cli",
			"invalid start date %q, want YYYY-MM-DD", args[0])
	}
	return start, nil
}

func hasTrade(opps []domain.Opportunity) bool {
	for _, opp := range opps {
		if opp.FinalAction == domain.ActionTrade {
			return true
		}
	}
	return false
}

func renderScan(w io.Writer, result *scanner.Result, topN int) {
	fmt.Fprintf(w, "Scan %s to %s: %d scanned, %d opportunities, %d failed\n\n",
		result.Start.Format(dateLayout), result.End.Format(dateLayout),
		result.Scanned, len(result.Opportunities), len(result.Failures))

	shown := result.Opportunities
	if topN > 0 && len(shown) > topN {
		shown = shown[:topN]
	}

	if len(shown) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TICKER\tEARNINGS\tIMPLIED\tHIST\tRATIO\tTIER\tLIQUIDITY\tSCORE\tACTION")
		for _, opp := range shown {
			fmt.Fprintf(tw, "%s\t%s %s\t%.1f%%\t%.1f%%\t%.2fx\t%s\t%s\t%.1f\t%s\n",
				opp.Ticker,
				opp.EarningsDate.Format(dateLayout), opp.Timing,
				opp.VRP.ImpliedMovePct,
				opp.VRP.HistoricalMeanPct,
				opp.VRP.VRPRatio,
				opp.VRP.Recommendation,
				opp.LiquidityTier,
				opp.CompositeScore,
				opp.FinalAction)
		}
		tw.Flush()
		if len(shown) < len(result.Opportunities) {
			fmt.Fprintf(w, "\nShowing top %d of %d\n", len(shown), len(result.Opportunities))
		}
	}

	renderFailures(w, result.Failures)
}

func renderFailures(w io.Writer, failures map[string]string) {
	if len(failures) == 0 {
		return
	}
	if !verbose {
		fmt.Fprintf(w, "\n%d tickers failed (rerun with --verbose for details)\n", len(failures))
		return
	}
	tickers := make([]string, 0, len(failures))
	for ticker := range failures {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	fmt.Fprintln(w, "\nFailures:")
	for _, ticker := range tickers {
		fmt.Fprintf(w, "  %s: %s\n", ticker, failures[ticker])
	}
}

func printJSON(payload any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
