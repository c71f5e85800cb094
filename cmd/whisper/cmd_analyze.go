package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/whisper/internal/domain"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze TICKER [EARNINGS_DATE]",
	Short: "Run the full pipeline on one ticker",
	Long: `Analyze runs every pipeline stage for a single ticker and prints the
full breakdown. EARNINGS_DATE (YYYY-MM-DD) defaults to the ticker's
next announcement on the stored calendar.

Exits 0 when the final verdict is TRADE, 1 otherwise.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var earningsDate time.Time
	if len(args) == 2 {
		earningsDate, err = time.ParseInLocation(dateLayout, args[1], a.Clock.Location())
		if err != nil {
			return domain.Errorf(domain.ErrInvalid, "cli",
				"invalid earnings date %q, want YYYY-MM-DD", args[1])
		}
	}

	opp, err := a.Scanner.Analyze(cmd.Context(), args[0], earningsDate)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(opp)
	} else {
		renderOpportunity(os.Stdout, opp)
	}

	if opp.FinalAction != domain.ActionTrade {
		exitCode = 1
	}
	return nil
}

func renderOpportunity(w io.Writer, opp *domain.Opportunity) {
	fmt.Fprintf(w, "%s  earnings %s (%s)  expiration %s\n\n",
		opp.Ticker,
		opp.EarningsDate.Format(dateLayout), opp.Timing,
		opp.Expiration.Format(dateLayout))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Stock price\t$%.2f\n", opp.ImpliedMove.StockPrice)
	fmt.Fprintf(tw, "ATM straddle\t%s @ $%.2f\n", opp.ImpliedMove.ATMStrike, opp.ImpliedMove.StraddleCost)
	fmt.Fprintf(tw, "Implied move\t%.1f%% ($%.2f to $%.2f)\n",
		opp.ImpliedMove.ImpliedMovePct, opp.ImpliedMove.LowerBound, opp.ImpliedMove.UpperBound)
	fmt.Fprintf(tw, "Historical move\t%.1f%% mean / %.1f%% median over %d quarters\n",
		opp.VRP.HistoricalMeanPct, opp.VRP.HistoricalMedPct, opp.VRP.QuartersOfData)
	fmt.Fprintf(tw, "VRP ratio\t%.2fx (%s)\n", opp.VRP.VRPRatio, opp.VRP.Recommendation)
	if opp.Skew != nil {
		fmt.Fprintf(tw, "Skew\t%s (confidence %.0f%%, %d strikes)\n",
			opp.Skew.DirectionalBias, opp.Skew.BiasConfidence*100, opp.Skew.NumPoints)
	} else {
		fmt.Fprintf(tw, "Skew\tunavailable\n")
	}
	fmt.Fprintf(tw, "Liquidity\t%s\n", opp.LiquidityTier)
	if opp.Limits != nil {
		fmt.Fprintf(tw, "Tail risk\t%s (max move %.1f%% vs avg %.1f%%)\n",
			opp.Limits.TailRiskLevel, opp.Limits.MaxMove, opp.Limits.AvgMove)
		fmt.Fprintf(tw, "Position cap\t%d contracts / %s notional\n",
			opp.Limits.MaxContracts, opp.Limits.MaxNotional)
	}
	if opp.Sentiment != nil {
		fmt.Fprintf(tw, "Sentiment\t%s (%.2f)\n", opp.Sentiment.Direction, opp.Sentiment.Score)
	}
	fmt.Fprintf(tw, "Composite score\t%.1f\n", opp.CompositeScore)
	fmt.Fprintf(tw, "Verdict\t%s\n", opp.FinalAction)
	tw.Flush()

	if len(opp.Anomalies) > 0 {
		fmt.Fprintln(w, "\nAnomalies:")
		for _, anomaly := range opp.Anomalies {
			fmt.Fprintf(w, "  [%s] %s: %s\n", anomaly.Severity, anomaly.Type, anomaly.Message)
		}
	}

	if len(opp.Strategies) > 0 {
		fmt.Fprintln(w, "\nStrategies:")
		for _, strat := range opp.Strategies {
			fmt.Fprintf(w, "  %s  profit %s / risk %s  pop %.0f%%\n",
				strat.Type, strat.MaxProfit, strat.MaxRisk, strat.POP*100)
			fmt.Fprintf(w, "    %s\n", strat.Description)
			if verbose {
				fmt.Fprintf(w, "    legs: %s\n", renderLegs(strat.Legs))
			}
		}
	}
}

func renderLegs(legs []domain.StrategyLeg) string {
	parts := make([]string, 0, len(legs))
	for _, leg := range legs {
		parts = append(parts, fmt.Sprintf("%s %dx %s %s", leg.Side, leg.Quantity, leg.Strike, leg.OptionType))
	}
	return strings.Join(parts, ", ")
}
