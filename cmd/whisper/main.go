// Command whisper scans upcoming earnings announcements for overpriced
// implied moves and prints defined-risk premium-selling candidates.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/whisper/internal/app"
	"github.com/aristath/whisper/internal/config"
	"github.com/aristath/whisper/pkg/logger"
)

var (
	configPath string
	jsonOut    bool
	verbose    bool

	// exitCode carries signal-derived exit statuses (scan found no
	// trade, a health check failed) past cobra's error handling.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "whisper",
	Short: "Earnings volatility premium scanner",
	Long: `Whisper scans the upcoming earnings calendar, prices each ticker's
implied move against its own history, and surfaces announcements where
the options market is paying too much for the move.

Running whisper with no subcommand scans the default window.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (also WHISPER_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show per-ticker failure details")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// buildApp loads configuration and wires the full application.
func buildApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	return app.New(cfg, log)
}
