package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Resolves and prints the backfill date range without fetching or writing anything",
	Run:   doPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func doPlan(command *cobra.Command, args []string) {
	ctx := context.Background()
	a, done := mustSetupFromFlags(ctx)
	defer done()

	meters, plan := mustPlanFromFlags(ctx, a)
	if plan.Empty() {
		log.Infof("Empty plan: %s -> %s resolves to nothing to do", fromDate, toDate)
		return
	}
	log.Infof("Would backfill %s -> %s (exclusive) for %d meters", plan.Start.Format(time.DateOnly), plan.End.Format(time.DateOnly), len(meters))
	for _, m := range meters {
		log.Infof("  %s meter %s (%s)", m.Kind, m.SerialNumber, m.PointRef)
	}
}
