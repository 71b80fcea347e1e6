package octograph

import "fmt"

// mjPerKWh converts megajoules to kilowatt hours.
const mjPerKWh = 3.6

// ToKWh normalizes a raw meter reading to kWh.
//
// Electricity meters already report kWh. SMETS2 gas meters report m³, which
// is converted via the configured volume correction factor and calorific
// value; both are fixed per run even though the real calorific value
// fluctuates daily, so gas energy is an approximation. SMETS1 gas meters
// (and meters of unknown generation, which are assumed SMETS1) report a
// kWh-equivalent and pass through unchanged.
func ToKWh(raw float64, kind MeterKind, gen MeterGeneration, volumeCorrectionFactor, calorificValue float64) (float64, error) {
	switch kind {
	case Electricity:
		return raw, nil
	case Gas:
		if gen == SMETS2 {
			return raw * volumeCorrectionFactor * calorificValue / mjPerKWh, nil
		}
		return raw, nil
	default:
		return 0, fmt.Errorf("%w: unknown meter kind %q", ErrConfiguration, kind)
	}
}

// Cost is the unit cost of an interval: energy times unit rate, in whatever
// currency unit the rate is published in (pence for Octopus). No rounding —
// presentation is the writer's concern.
func Cost(energyKWh, ratePerKWh float64) float64 {
	return energyKWh * ratePerKWh
}
