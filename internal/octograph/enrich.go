package octograph

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const minutesPerDay = 24 * 60

// Enricher turns raw consumption intervals for one meter into cost records:
// normalize units, resolve the tariff at the interval's start instant, and
// price the energy. One record per interval, in input order. Intervals with
// no resolvable tariff are skipped and counted rather than aborting the run,
// so a gap in the contract history can't sink a whole historical backfill.
type Enricher struct {
	Resolver *Resolver

	// Gas unit conversion constants, used for SMETS2 meters.
	VolumeCorrectionFactor float64
	CalorificValue         float64

	// ResolutionMinutes apportions the daily standing charge across the
	// intervals of a day.
	ResolutionMinutes int

	// Tags are attached verbatim to every record; callers resolve
	// account/meter identity tags once per meter, not per interval.
	Tags map[string]string

	Logger *log.Logger
}

// Result summarizes one enrichment pass.
type Result struct {
	Records []CostRecord
	Skipped int
}

// Enrich processes the intervals in order. Resolution failures
// (ErrNoApplicableAgreement, ErrNoApplicableRate) skip the interval and
// continue; conversion failures are configuration errors and abort.
func (e *Enricher) Enrich(m *Meter, intervals []ConsumptionInterval) (Result, error) {
	res := Result{Records: make([]CostRecord, 0, len(intervals))}
	for _, iv := range intervals {
		kWh, err := ToKWh(iv.Consumption, m.Kind, m.Generation, e.VolumeCorrectionFactor, e.CalorificValue)
		if err != nil {
			return res, fmt.Errorf("meter %s: %w", m.SerialNumber, err)
		}

		agreement, rate, err := e.Resolver.Resolve(m, iv.Start)
		if err != nil {
			if errors.Is(err, ErrNoApplicableAgreement) || errors.Is(err, ErrNoApplicableRate) {
				res.Skipped++
				if e.Logger != nil {
					e.Logger.Warnf("skipping interval %s -> %s: %v", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339), err)
				}
				continue
			}
			return res, err
		}

		cost := Cost(kWh, rate.Value)
		standing := e.Resolver.StandingCharge(agreement, iv.Start) * float64(e.ResolutionMinutes) / minutesPerDay

		res.Records = append(res.Records, CostRecord{
			Meter:      m,
			Start:      iv.Start,
			End:        iv.End,
			EnergyKWh:  kWh,
			UnitRate:   rate.Value,
			Band:       rate.Band,
			Cost:       cost,
			Standing:   standing,
			TotalCost:  cost + standing,
			TariffCode: agreement.TariffCode,
			Tags:       e.recordTags(iv),
		})
	}
	return res, nil
}

// recordTags combines the per-meter tags with the per-record time_of_day
// tag the dashboards group by (local wall clock of the interval end).
func (e *Enricher) recordTags(iv ConsumptionInterval) map[string]string {
	tags := make(map[string]string, len(e.Tags)+1)
	for k, v := range e.Tags {
		tags[k] = v
	}
	tags["time_of_day"] = iv.End.In(e.Resolver.Location).Format("15:04")
	return tags
}
