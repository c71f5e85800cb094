package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
)

// Host resources above this usage fraction fail the health check.
const hostUsageLimitPct = 90.0

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Operational checks and upkeep",
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check databases, host resources, and API budgets",
	Long: `Health pings every database, checks host memory and data-directory
disk usage, and reports API budget consumption.

Exits 0 when every check passes, 1 otherwise.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.AddCommand(healthCmd)
}

type healthCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	var checks []healthCheck

	for _, db := range a.Databases() {
		check := healthCheck{Name: "db:" + db.Name(), Healthy: true, Detail: db.Path()}
		if err := db.Conn().PingContext(ctx); err != nil {
			check.Healthy = false
			check.Detail = err.Error()
		}
		checks = append(checks, check)
	}

	if stat, err := mem.VirtualMemory(); err != nil {
		checks = append(checks, healthCheck{Name: "host:memory", Detail: err.Error()})
	} else {
		checks = append(checks, healthCheck{
			Name:    "host:memory",
			Healthy: stat.UsedPercent < hostUsageLimitPct,
			Detail:  fmt.Sprintf("%.1f%% used", stat.UsedPercent),
		})
	}

	if stat, err := disk.Usage(a.Cfg.DataDir); err != nil {
		checks = append(checks, healthCheck{Name: "host:disk", Detail: err.Error()})
	} else {
		checks = append(checks, healthCheck{
			Name:    "host:disk",
			Healthy: stat.UsedPercent < hostUsageLimitPct,
			Detail:  fmt.Sprintf("%.1f%% used at %s", stat.UsedPercent, a.Cfg.DataDir),
		})
	}

	for _, service := range a.Budget.Services() {
		summary, err := a.Budget.Summary(ctx, service)
		check := healthCheck{Name: "budget:" + service}
		if err != nil {
			check.Detail = err.Error()
		} else {
			check.Healthy = summary.CanCall
			check.Detail = fmt.Sprintf("%d/%d calls today, %s of %s this month",
				summary.TodayCalls, summary.DailyLimit, summary.MonthCost, summary.MonthlyBudget)
		}
		checks = append(checks, check)
	}

	healthy := true
	for _, check := range checks {
		if !check.Healthy {
			healthy = false
		}
	}

	if jsonOut {
		printJSON(map[string]any{"healthy": healthy, "checks": checks})
	} else {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, check := range checks {
			state := "ok"
			if !check.Healthy {
				state = "FAIL"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", check.Name, state, check.Detail)
		}
		tw.Flush()
	}

	if !healthy {
		exitCode = 1
	}
	return nil
}
