// Package octograph holds the tariff resolution and cost calculation engine:
// everything between raw consumption intervals coming back from the Octopus
// API and the cost-annotated points handed to the metrics writer.
package octograph

import (
	"errors"
	"time"
)

var (
	// ErrConfiguration marks fatal misconfiguration: unknown meter kinds,
	// missing required settings, or a "latest" backfill with nothing stored
	// to anchor it. Callers abort the run.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoApplicableAgreement is returned when no agreement covers an
	// instant (a gap in the contract history). Recoverable per interval.
	ErrNoApplicableAgreement = errors.New("no applicable agreement")

	// ErrNoApplicableRate is returned when an agreement covers the instant
	// but no rate registration matches it (e.g. after payment-method
	// filtering). Recoverable per interval.
	ErrNoApplicableRate = errors.New("no applicable rate")
)

type MeterKind string

const (
	Electricity MeterKind = "electricity"
	Gas         MeterKind = "gas"
)

// MeterGeneration identifies the gas smart-meter generation. SMETS1 meters
// report kWh directly; SMETS2 meters report m³ which needs converting.
type MeterGeneration string

const (
	SMETS1 MeterGeneration = "SMETS1"
	SMETS2 MeterGeneration = "SMETS2"
)

// Account is the normalized shape of an Octopus account: just the meters we
// can ingest, with their agreement history attached.
type Account struct {
	Number string
	Meters []Meter
}

// Meter is a single physical meter. PointRef is the MPAN for electricity
// meters and the MPRN for gas meters. Agreements are ordered by ValidFrom
// and never overlap.
type Meter struct {
	Kind         MeterKind
	SerialNumber string
	PointRef     string
	Generation   MeterGeneration
	Agreements   []Agreement
}

// Agreement is one contract on a meter, valid over [ValidFrom, ValidTo).
// A nil ValidTo means the agreement is still active.
type Agreement struct {
	TariffCode string
	ValidFrom  time.Time
	ValidTo    *time.Time
	Schedule   RateSchedule
}

// Covers reports whether the agreement was in force at the given instant.
func (a Agreement) Covers(at time.Time) bool {
	if at.Before(a.ValidFrom) {
		return false
	}
	return a.ValidTo == nil || at.Before(*a.ValidTo)
}

// RateSchedule holds the unit-rate series for one agreement. A flat tariff
// only populates Standard. A day/night split tariff also populates Low and
// the local wall-clock window [LowStartHour, LowEndHour) during which the
// low rate applies; the window may wrap past midnight (e.g. 23 -> 7).
// Standing holds the daily standing charge series when known.
type RateSchedule struct {
	Split        bool
	LowStartHour int
	LowEndHour   int

	Standard []RateRegistration
	Low      []RateRegistration
	Standing []RateRegistration
}

// RateRegistration is one published value within a rate series, valid over
// [ValidFrom, ValidTo). Agile tariffs publish a registration per half hour;
// fixed tariffs typically have a single open-ended one. PaymentMethod is
// empty when the value applies regardless of how the account pays.
type RateRegistration struct {
	Value         float64
	ValidFrom     time.Time
	ValidTo       *time.Time
	RegisteredAt  time.Time
	PaymentMethod string
}

// Covers reports whether the registration's validity window contains the
// given instant. Zero ValidFrom and nil ValidTo are open-ended.
func (r RateRegistration) Covers(at time.Time) bool {
	if !r.ValidFrom.IsZero() && at.Before(r.ValidFrom) {
		return false
	}
	return r.ValidTo == nil || at.Before(*r.ValidTo)
}

// ConsumptionInterval is one raw reading for a meter over [Start, End).
// Consumption is kWh for electricity, and m³ or kWh for gas depending on
// the meter generation.
type ConsumptionInterval struct {
	Start       time.Time
	End         time.Time
	Consumption float64
}

// RateBand names which side of a day/night split a rate came from. Flat
// tariffs always resolve to the standard band.
type RateBand string

const (
	BandStandard RateBand = "standard"
	BandLow      RateBand = "low"
)

// CostRecord is the engine's sole output: one cost-annotated record per
// consumption interval, never merged or split. Monetary values are in the
// rate's own unit (pence for Octopus tariffs), full precision.
type CostRecord struct {
	Meter      *Meter
	Start      time.Time
	End        time.Time
	EnergyKWh  float64
	UnitRate   float64
	Band       RateBand
	Cost       float64
	Standing   float64
	TotalCost  float64
	TariffCode string
	Tags       map[string]string
}
