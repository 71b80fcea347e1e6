package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"octograph/internal/config"
	"octograph/internal/octograph"
	"octograph/internal/octopus"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetches consumption for the planned date range, prices it, and writes it to InfluxDB",
	Run:   doRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func doRun(command *cobra.Command, args []string) {
	ctx := context.Background()
	a, done := mustSetupFromFlags(ctx)
	defer done()

	meters, plan := mustPlanFromFlags(ctx, a)
	if plan.Empty() {
		log.Infof("Nothing to do: resolved range %s -> %s is empty", fromDate, toDate)
		return
	}
	log.Infof("Backfilling %s -> %s for %d meters", plan.Start.Format(time.DateOnly), plan.End.Format(time.DateOnly), len(meters))

	// Validated by config.Load.
	groupBy, _ := octopus.GroupBy(a.cfg.Octopus.ResolutionMinutes)

	resolver := &octograph.Resolver{
		Location:      a.cfg.Location(),
		PaymentMethod: a.cfg.Octopus.PaymentMethod,
		Logger:        log.Default(),
	}

	written, skipped := 0, 0
	for _, m := range meters {
		if err := a.loader.LoadSchedules(ctx, m, plan.Start, plan.End); err != nil {
			log.Fatalf("Schedules for %s: %v", m.SerialNumber, err)
		}
		readings, err := a.loader.Client.Consumption(ctx, string(m.Kind), m.PointRef, m.SerialNumber, plan.Start, plan.End, groupBy)
		if err != nil {
			log.Fatalf("Consumption for %s: %v", m.SerialNumber, err)
		}

		enricher := &octograph.Enricher{
			Resolver:               resolver,
			VolumeCorrectionFactor: a.cfg.Gas.VolumeCorrectionFactor,
			CalorificValue:         a.cfg.Gas.CalorificValue,
			ResolutionMinutes:      a.cfg.Octopus.ResolutionMinutes,
			Tags:                   meterTags(a.cfg, m),
			Logger:                 log.Default(),
		}
		res, err := enricher.Enrich(m, octopus.Intervals(readings))
		if err != nil {
			log.Fatalf("Enrich %s: %v", m.SerialNumber, err)
		}
		if err := a.store.WriteRecords(ctx, res.Records); err != nil {
			log.Fatalf("Write %s: %v", m.SerialNumber, err)
		}

		log.Infof("Meter %s (%s): wrote %d points, skipped %d intervals", m.SerialNumber, m.Kind, len(res.Records), res.Skipped)
		written += len(res.Records)
		skipped += res.Skipped
	}

	if skipped > 0 {
		log.Warnf("Skipped %d intervals with no applicable agreement or rate", skipped)
	}
	log.Infof("Done: %d points written", written)
}

// mustPlanFromFlags fetches the account's meters and resolves the date range
// from the --from-date/--to-date selectors. Planner failures are fatal.
func mustPlanFromFlags(ctx context.Context, a *app) ([]*octograph.Meter, octograph.Plan) {
	ms, err := a.loader.Meters(ctx, a.cfg.Octopus.AccountNumber)
	if err != nil {
		log.Fatalf("Meters: %v", err)
	}
	if len(ms) == 0 {
		log.Fatalf("Account %s has no meters to process", a.cfg.Octopus.AccountNumber)
	}
	meters := make([]*octograph.Meter, 0, len(ms))
	for i := range ms {
		meters = append(meters, &ms[i])
	}

	plan, err := octograph.PlanBackfill(ctx, fromDate, toDate, time.Now(), a.cfg.Location(), meters, a.store, log.Default())
	if err != nil {
		log.Fatalf("Plan: %v", err)
	}
	return meters, plan
}

// meterTags resolves the descriptive tags attached to every record of a
// meter: the configured additional tags plus optional identity tags.
func meterTags(cfg *config.Config, m *octograph.Meter) map[string]string {
	tags := make(map[string]string, len(cfg.Tags.Additional)+2)
	for k, v := range cfg.Tags.Additional {
		tags[k] = v
	}
	if cfg.Tags.IncludeMPAN {
		tags["mpan"] = m.PointRef
	}
	if cfg.Tags.IncludeSerialNumber {
		tags["serial_number"] = m.SerialNumber
	}
	return tags
}
