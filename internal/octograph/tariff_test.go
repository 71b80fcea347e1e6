package octograph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLondon(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func timePtr(t time.Time) *time.Time { return &t }

func flatMeter(rate float64) *Meter {
	return &Meter{
		Kind:         Electricity,
		SerialNumber: "21E0000001",
		PointRef:     "1200019420459",
		Agreements: []Agreement{{
			TariffCode: "E-1R-VAR-22-11-01-A",
			ValidFrom:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			Schedule: RateSchedule{
				Standard: []RateRegistration{{Value: rate, ValidFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}},
			},
		}},
	}
}

func splitMeter(lowStart, lowEnd int, low, standard float64) *Meter {
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Meter{
		Kind:         Electricity,
		SerialNumber: "21E0000002",
		PointRef:     "1200019420460",
		Agreements: []Agreement{{
			TariffCode: "E-2R-VAR-22-11-01-A",
			ValidFrom:  from,
			Schedule: RateSchedule{
				Split:        true,
				LowStartHour: lowStart,
				LowEndHour:   lowEnd,
				Standard:     []RateRegistration{{Value: standard, ValidFrom: from}},
				Low:          []RateRegistration{{Value: low, ValidFrom: from}},
			},
		}},
	}
}

func TestResolveFlatRate(t *testing.T) {
	r := &Resolver{Location: mustLondon(t)}
	m := flatMeter(28.62)

	// A flat tariff resolves to the same rate at every hour of the day.
	for h := 0; h < 24; h++ {
		a, rate, err := r.Resolve(m, time.Date(2024, 6, 12, h, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "E-1R-VAR-22-11-01-A", a.TariffCode)
		assert.Equal(t, BandStandard, rate.Band)
		assert.Equal(t, 28.62, rate.Value)
	}
}

func TestResolveSplitRate(t *testing.T) {
	loc := mustLondon(t)
	for _, test := range []struct {
		name             string
		lowStart, lowEnd int
		at               time.Time
		wantBand         RateBand
	}{
		{
			name:     "inside low window",
			lowStart: 1, lowEnd: 8,
			at:       time.Date(2024, 1, 15, 2, 0, 0, 0, loc),
			wantBand: BandLow,
		},
		{
			name:     "upper bound is exclusive",
			lowStart: 1, lowEnd: 8,
			at:       time.Date(2024, 1, 15, 8, 0, 0, 0, loc),
			wantBand: BandStandard,
		},
		{
			name:     "lower bound is inclusive",
			lowStart: 1, lowEnd: 8,
			at:       time.Date(2024, 1, 15, 1, 0, 0, 0, loc),
			wantBand: BandLow,
		},
		{
			// 2024-03-31 01:00Z is 02:00 BST: clocks have already gone
			// forward, and the wall clock in London, not the UTC offset,
			// decides the band.
			name:     "spring forward transition day",
			lowStart: 1, lowEnd: 8,
			at:       time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC),
			wantBand: BandLow,
		},
		{
			name:     "summer evening is standard",
			lowStart: 1, lowEnd: 8,
			at:       time.Date(2024, 7, 1, 18, 30, 0, 0, loc),
			wantBand: BandStandard,
		},
		{
			name:     "window wrapping midnight, before midnight",
			lowStart: 23, lowEnd: 7,
			at:       time.Date(2024, 1, 15, 23, 30, 0, 0, loc),
			wantBand: BandLow,
		},
		{
			name:     "window wrapping midnight, after midnight",
			lowStart: 23, lowEnd: 7,
			at:       time.Date(2024, 1, 15, 6, 30, 0, 0, loc),
			wantBand: BandLow,
		},
		{
			name:     "window wrapping midnight, daytime",
			lowStart: 23, lowEnd: 7,
			at:       time.Date(2024, 1, 15, 12, 0, 0, 0, loc),
			wantBand: BandStandard,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			r := &Resolver{Location: loc}
			m := splitMeter(test.lowStart, test.lowEnd, 7.5, 30.1)
			_, rate, err := r.Resolve(m, test.at)
			require.NoError(t, err)
			assert.Equal(t, test.wantBand, rate.Band)
			if test.wantBand == BandLow {
				assert.Equal(t, 7.5, rate.Value)
			} else {
				assert.Equal(t, 30.1, rate.Value)
			}
		})
	}
}

func TestResolveAgreementGap(t *testing.T) {
	r := &Resolver{Location: mustLondon(t)}
	m := flatMeter(28.62)
	m.Agreements[0].ValidTo = timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	_, _, err := r.Resolve(m, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoApplicableAgreement)

	// The upper bound of the validity window is exclusive.
	_, _, err = r.Resolve(m, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoApplicableAgreement)

	_, _, err = r.Resolve(m, time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestResolvePaymentMethodFilter(t *testing.T) {
	loc := mustLondon(t)
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	m := flatMeter(0)
	m.Agreements[0].Schedule.Standard = []RateRegistration{
		{Value: 30.0, ValidFrom: from, PaymentMethod: "non_direct_debit"},
		{Value: 28.0, ValidFrom: from, PaymentMethod: "direct_debit_monthly"},
	}

	r := &Resolver{Location: loc, PaymentMethod: "direct_debit_monthly"}
	_, rate, err := r.Resolve(m, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 28.0, rate.Value)

	r = &Resolver{Location: loc, PaymentMethod: "prepayment"}
	_, _, err = r.Resolve(m, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoApplicableRate)

	// No configured payment method accepts any registration.
	r = &Resolver{Location: loc}
	_, rate, err = r.Resolve(m, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 30.0, rate.Value)
}

func TestResolveOverlapTieBreak(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := flatMeter(0)
	m.Agreements[0].Schedule.Standard = []RateRegistration{
		{Value: 25.0, ValidFrom: from, RegisteredAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Value: 26.5, ValidFrom: from, RegisteredAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
	}

	r := &Resolver{Location: mustLondon(t)}
	_, rate, err := r.Resolve(m, time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 26.5, rate.Value, "most recently registered value wins an overlap")
}

func TestResolveAgileRegistrations(t *testing.T) {
	// Agile tariffs publish a registration per slot; the one covering the
	// instant is selected.
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := flatMeter(0)
	m.Agreements[0].Schedule.Standard = []RateRegistration{
		{Value: 12.0, ValidFrom: from, ValidTo: timePtr(from.Add(30 * time.Minute))},
		{Value: 14.0, ValidFrom: from.Add(30 * time.Minute), ValidTo: timePtr(from.Add(60 * time.Minute))},
		{Value: 9.0, ValidFrom: from.Add(60 * time.Minute), ValidTo: timePtr(from.Add(90 * time.Minute))},
	}

	r := &Resolver{Location: mustLondon(t)}
	_, rate, err := r.Resolve(m, from.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 14.0, rate.Value)

	_, _, err = r.Resolve(m, from.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrNoApplicableRate)
}

func TestInLowWindow(t *testing.T) {
	// A zero-width window means no low rate at all.
	for h := 0; h < 24; h++ {
		assert.False(t, inLowWindow(h, 0, 0))
	}
}
