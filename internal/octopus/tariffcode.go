package octopus

import (
	"fmt"
	"strings"
)

// ParseTariffCode splits a tariff code like E-1R-GO-VAR-22-10-14-J into its
// fuel, register, product code, and area components.
func ParseTariffCode(tariff string) (fuel, registers, product, area string, err error) {
	bits := strings.Split(tariff, "-")
	if len(bits) < 4 {
		return "", "", "", "", fmt.Errorf("invalid tariff code %q", tariff)
	}
	return bits[0], bits[1], strings.Join(bits[2:len(bits)-1], "-"), bits[len(bits)-1], nil
}

// FuelForTariffCode maps a tariff code's fuel letter to the API's meter
// point kind ("electricity" or "gas").
func FuelForTariffCode(tariff string) (string, error) {
	switch {
	case strings.HasPrefix(tariff, "E"):
		return "electricity", nil
	case strings.HasPrefix(tariff, "G"):
		return "gas", nil
	default:
		return "", fmt.Errorf("tariff code is not electricity or gas: %s", tariff)
	}
}
