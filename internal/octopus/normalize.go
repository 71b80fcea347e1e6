package octopus

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"octograph/internal/octograph"
)

// NormalizeOptions control how raw account payloads are shaped into the
// engine's model.
type NormalizeOptions struct {
	// IncludedMeters filters by serial number; empty includes every meter.
	IncludedMeters []string

	// GasGenerations maps gas meter serials to their smart-meter
	// generation. Serials not listed are assumed SMETS1.
	GasGenerations map[string]octograph.MeterGeneration

	// LowStartHour/LowEndHour define the local low-rate window stamped
	// onto day/night split schedules.
	LowStartHour int
	LowEndHour   int

	// PaymentMethod narrows which product tariff variant's rates are
	// fetched; empty fetches all of them and leaves filtering to the
	// resolver.
	PaymentMethod string
}

// Loader fetches reference data through the API client and normalizes it.
type Loader struct {
	Client *Client
	Opts   NormalizeOptions
	Logger *log.Logger
}

// Meters returns the normalized meters of an account, agreements attached
// but rate schedules not yet populated (see LoadSchedules). Export meter
// points are not consumption and are skipped.
func (l *Loader) Meters(ctx context.Context, accountNumber string) ([]octograph.Meter, error) {
	a, err := l.Client.Account(ctx, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountNumber, err)
	}

	var meters []octograph.Meter
	for _, p := range a.Properties {
		for _, mp := range p.ElectricityMeterPoints {
			if mp.IsExport {
				continue
			}
			meters = append(meters, l.meterPoint(octograph.Electricity, mp.MPAN, mp)...)
		}
		for _, mp := range p.GasMeterPoints {
			meters = append(meters, l.meterPoint(octograph.Gas, mp.MPRN, mp)...)
		}
	}
	return meters, nil
}

func (l *Loader) meterPoint(kind octograph.MeterKind, pointRef string, mp MeterPoint) []octograph.Meter {
	var meters []octograph.Meter
	for _, m := range mp.Meters {
		if m.SerialNumber == "" {
			continue
		}
		if len(l.Opts.IncludedMeters) > 0 && !slices.Contains(l.Opts.IncludedMeters, m.SerialNumber) {
			if l.Logger != nil {
				l.Logger.Infof("skipping %s meter %s: not in included_meters", kind, m.SerialNumber)
			}
			continue
		}
		meter := octograph.Meter{
			Kind:         kind,
			SerialNumber: m.SerialNumber,
			PointRef:     pointRef,
			Agreements:   agreements(mp.Agreements),
		}
		if kind == octograph.Gas {
			meter.Generation = octograph.SMETS1
			if g, ok := l.Opts.GasGenerations[m.SerialNumber]; ok {
				meter.Generation = g
			}
		}
		meters = append(meters, meter)
	}
	return meters
}

func agreements(in []Agreement) []octograph.Agreement {
	out := make([]octograph.Agreement, 0, len(in))
	for _, a := range in {
		out = append(out, octograph.Agreement{
			TariffCode: a.TariffCode,
			ValidFrom:  a.ValidFrom,
			ValidTo:    a.ValidTo,
		})
	}
	slices.SortFunc(out, func(a, b octograph.Agreement) int { return a.ValidFrom.Compare(b.ValidFrom) })
	return out
}

// LoadSchedules fetches and attaches the rate schedule of every agreement on
// the meter that overlaps [from, to).
func (l *Loader) LoadSchedules(ctx context.Context, m *octograph.Meter, from, to time.Time) error {
	for i := range m.Agreements {
		a := &m.Agreements[i]
		if !a.ValidFrom.Before(to) || (a.ValidTo != nil && !a.ValidTo.After(from)) {
			continue
		}
		fuel, err := FuelForTariffCode(a.TariffCode)
		if err != nil {
			return fmt.Errorf("agreement %s: %w", a.TariffCode, err)
		}
		if fuel != string(m.Kind) {
			return fmt.Errorf("agreement %s is a %s tariff on %s meter %s", a.TariffCode, fuel, m.Kind, m.SerialNumber)
		}
		s, err := l.schedule(ctx, a.TariffCode, from, to)
		if err != nil {
			return fmt.Errorf("schedule for %s: %w", a.TariffCode, err)
		}
		a.Schedule = s
	}
	return nil
}

type tariffMatch struct {
	payment string
	details TariffDetails
	split   bool
}

// findTariff locates a tariff code inside a product payload, across every
// region variant and payment method.
func findTariff(p Product, code string) []tariffMatch {
	var matches []tariffMatch
	scan := func(m map[string]map[string]TariffDetails, split bool) {
		for _, options := range m {
			for payment, details := range options {
				if details.Code == code {
					matches = append(matches, tariffMatch{payment: payment, details: details, split: split})
				}
			}
		}
	}
	scan(p.SingleRegisterElectricityTariffs, false)
	scan(p.DualRegisterElectricityTariffs, true)
	scan(p.SingleRegisterGasTariffs, false)
	return matches
}

func (l *Loader) schedule(ctx context.Context, tariffCode string, from, to time.Time) (octograph.RateSchedule, error) {
	_, _, productCode, _, err := ParseTariffCode(tariffCode)
	if err != nil {
		return octograph.RateSchedule{}, err
	}
	product, err := l.Client.Product(ctx, productCode)
	if err != nil {
		return octograph.RateSchedule{}, err
	}

	matches := findTariff(product, tariffCode)
	if len(matches) == 0 {
		return octograph.RateSchedule{}, fmt.Errorf("product %s has no tariff %s", productCode, tariffCode)
	}

	// When a payment method is configured and the product publishes that
	// variant, only its rates are worth fetching.
	if l.Opts.PaymentMethod != "" {
		for _, match := range matches {
			if match.payment == l.Opts.PaymentMethod {
				matches = []tariffMatch{match}
				break
			}
		}
	}

	s := octograph.RateSchedule{}
	for _, match := range matches {
		if match.split {
			s.Split = true
			s.LowStartHour = l.Opts.LowStartHour
			s.LowEndHour = l.Opts.LowEndHour
		}
		for _, link := range match.details.Links {
			if link.Method != "" && link.Method != "GET" {
				continue
			}
			var series *[]octograph.RateRegistration
			switch link.Rel {
			case RelStandardUnitRates, RelDayUnitRates:
				series = &s.Standard
			case RelNightUnitRates:
				series = &s.Low
			case RelStandingCharges:
				series = &s.Standing
			default:
				continue
			}
			rates, err := l.Client.Rates(ctx, link.Href, from, to)
			if err != nil {
				return octograph.RateSchedule{}, fmt.Errorf("rates %s (%s): %w", tariffCode, link.Rel, err)
			}
			*series = append(*series, registrations(rates, match.payment)...)
		}
	}
	return s, nil
}

// registrations converts rate payloads into registrations, stamping the
// payment method and using value_inc_vat as the effective unit rate. The API
// doesn't publish a registration time, so the start of validity stands in
// for overlap tie-breaking.
func registrations(rates []Rate, payment string) []octograph.RateRegistration {
	out := make([]octograph.RateRegistration, 0, len(rates))
	for _, r := range rates {
		pm := payment
		if r.PaymentMethod != nil && *r.PaymentMethod != "" && !samePaymentFamily(*r.PaymentMethod, payment) {
			pm = strings.ToLower(*r.PaymentMethod)
		}
		out = append(out, octograph.RateRegistration{
			Value:         r.ValueIncVAT,
			ValidFrom:     r.ValidFrom,
			ValidTo:       r.ValidTo,
			RegisteredAt:  r.ValidFrom,
			PaymentMethod: pm,
		})
	}
	return out
}

// Rate payloads name payment methods in a different vocabulary from the
// product tariff maps ("DIRECT_DEBIT" vs "direct_debit_monthly"). When both
// name the same method, the product-map key is the one to stamp: it is the
// form the configured payment_method uses, so it is what the resolver's
// filter compares against. Responses that mix methods (standing charges do)
// carry genuinely different values, and those keep the payload's own method
// so the resolver can reject them.
func samePaymentFamily(a, b string) bool {
	family := func(s string) string {
		s = strings.ToLower(s)
		if strings.HasPrefix(s, "direct_debit") {
			return "direct_debit"
		}
		return s
	}
	return family(a) == family(b)
}

// Intervals converts consumption readings into engine intervals, preserving
// the API's interval-start ordering.
func Intervals(readings []Reading) []octograph.ConsumptionInterval {
	out := make([]octograph.ConsumptionInterval, 0, len(readings))
	for _, r := range readings {
		out = append(out, octograph.ConsumptionInterval{
			Start:       r.IntervalStart,
			End:         r.IntervalEnd,
			Consumption: r.Consumption,
		})
	}
	return out
}
