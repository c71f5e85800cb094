package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var primeCmd = &cobra.Command{
	Use:   "prime [START_DATE]",
	Short: "Warm the sentiment cache for the scan window",
	Long: `Prime fetches sentiment for every announcement in the window so the
next scan serves it from cache instead of spending budget mid-scan.
START_DATE (YYYY-MM-DD) defaults to today in the exchange zone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrime,
}

func init() {
	rootCmd.AddCommand(primeCmd)
}

func runPrime(cmd *cobra.Command, args []string) error {
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

	primed, err := a.Scanner.Prime(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(map[string]any{
			"start":  start.Format(dateLayout),
			"end":    end.Format(dateLayout),
			"primed": primed,
		})
		return nil
	}
	fmt.Printf("Primed sentiment for %d tickers (%s to %s)\n",
		primed, start.Format(dateLayout), end.Format(dateLayout))
	return nil
}
