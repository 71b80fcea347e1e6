package octograph

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Resolver finds the agreement and unit rate in force at an instant.
//
// The day/night boundary of a split tariff is a civil-time concept, so
// membership is tested against the wall clock in Location rather than a
// fixed UTC offset; this is what keeps the boundary correct across DST
// transitions.
type Resolver struct {
	// Location is the local timezone the low-rate window is defined in.
	Location *time.Location

	// PaymentMethod filters rate registrations; empty accepts any.
	PaymentMethod string

	Logger *log.Logger
}

// ResolvedRate is the outcome of a successful resolution.
type ResolvedRate struct {
	Value float64
	Band  RateBand
}

// Resolve returns the agreement and unit rate in force on the meter at the
// given instant. It fails with ErrNoApplicableAgreement when the contract
// history has a gap at that instant, and with ErrNoApplicableRate when the
// covering agreement has no matching rate registration.
func (r *Resolver) Resolve(m *Meter, at time.Time) (*Agreement, ResolvedRate, error) {
	var agreement *Agreement
	for i := range m.Agreements {
		if m.Agreements[i].Covers(at) {
			agreement = &m.Agreements[i]
			break
		}
	}
	if agreement == nil {
		return nil, ResolvedRate{}, fmt.Errorf("%w: meter %s at %s", ErrNoApplicableAgreement, m.SerialNumber, at.Format(time.RFC3339))
	}

	band := BandStandard
	series := agreement.Schedule.Standard
	if agreement.Schedule.Split && inLowWindow(at.In(r.Location).Hour(), agreement.Schedule.LowStartHour, agreement.Schedule.LowEndHour) {
		band = BandLow
		series = agreement.Schedule.Low
	}

	reg, err := r.pickRegistration(series, at)
	if err != nil {
		return nil, ResolvedRate{}, fmt.Errorf("%w: tariff %s (%s) at %s", err, agreement.TariffCode, band, at.Format(time.RFC3339))
	}

	return agreement, ResolvedRate{Value: reg.Value, Band: band}, nil
}

// StandingCharge returns the daily standing charge in force at the instant,
// or 0 when the agreement doesn't carry one.
func (r *Resolver) StandingCharge(a *Agreement, at time.Time) float64 {
	reg, err := r.pickRegistration(a.Schedule.Standing, at)
	if err != nil {
		return 0
	}
	return reg.Value
}

// pickRegistration selects the registration covering the instant, after
// filtering to the configured payment method. Overlapping registrations are
// a data-quality condition: the most recently registered value wins and the
// overlap is logged.
func (r *Resolver) pickRegistration(series []RateRegistration, at time.Time) (RateRegistration, error) {
	var picked *RateRegistration
	for i := range series {
		reg := &series[i]
		if r.PaymentMethod != "" && reg.PaymentMethod != "" && reg.PaymentMethod != r.PaymentMethod {
			continue
		}
		if !reg.Covers(at) {
			continue
		}
		if picked == nil {
			picked = reg
			continue
		}
		if r.Logger != nil {
			r.Logger.Warnf("overlapping rate registrations at %s (%.4f registered %s vs %.4f registered %s), keeping most recent",
				at.Format(time.RFC3339), picked.Value, picked.RegisteredAt.Format(time.RFC3339), reg.Value, reg.RegisteredAt.Format(time.RFC3339))
		}
		if reg.RegisteredAt.After(picked.RegisteredAt) {
			picked = reg
		}
	}
	if picked == nil {
		return RateRegistration{}, ErrNoApplicableRate
	}
	return *picked, nil
}

// inLowWindow tests whether a local hour falls inside the half-open window
// [start, end), handling windows that wrap past midnight, e.g. 23 -> 7.
func inLowWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
