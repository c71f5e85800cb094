package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/whisper/internal/scheduler"
)

var forceJob string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the scheduler tick once",
	Long: `Dispatch resolves the current time slot against the job table, runs
the slotted job if it has not run today, and prints the outcome as
JSON. With --force the named job runs regardless of the slot table,
dependency state, or an earlier run today.`,
	Args: cobra.NoArgs,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().StringVar(&forceJob, "force", "", "job name to run unconditionally")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.Dispatcher.Dispatch(cmd.Context(), forceJob)
	if err != nil {
		return err
	}

	printJSON(outcome)
	if outcome.Status == scheduler.OutcomeFailed {
		exitCode = 1
	}
	return nil
}
