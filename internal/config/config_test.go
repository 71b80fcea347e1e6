package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octograph/internal/octograph"
)

const minimalYAML = `
octopus:
  api_key: sk_test_123
  account_number: A-123456
influxdb:
  url: http://localhost:8086
  org: home
  bucket: energy
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "octograph.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://api.octopus.energy/v1", c.Octopus.APIPrefix)
	assert.Equal(t, "Europe/London", c.Octopus.Timezone)
	assert.Equal(t, 30, c.Octopus.ResolutionMinutes)
	assert.Equal(t, 1.02264, c.Gas.VolumeCorrectionFactor)
	assert.Equal(t, 40.0, c.Gas.CalorificValue)
	assert.NotNil(t, c.Location())
}

func TestLoadFull(t *testing.T) {
	c, err := Load(writeConfig(t, `
octopus:
  api_key: sk_test_123
  account_number: A-123456
  timezone: Europe/London
  payment_method: direct_debit_monthly
  resolution_minutes: 60
  unit_rate_low_start: 1
  unit_rate_low_end: 8
  included_meters: [21E0000001, G4P00123]
gas:
  meter_types:
    G4P00123: SMETS2
  volume_correction_factor: 1.02264
  calorific_value: 39.5
influxdb:
  url: http://localhost:8086
  token: secret
  org: home
  bucket: energy
cache:
  path: /tmp/octograph-cache.sqlite3
tags:
  include_mpan: true
  include_serial_number: true
  additional:
    source: octograph
`))
	require.NoError(t, err)

	assert.Equal(t, "direct_debit_monthly", c.Octopus.PaymentMethod)
	assert.Equal(t, 60, c.Octopus.ResolutionMinutes)
	assert.Equal(t, []string{"21E0000001", "G4P00123"}, c.Octopus.IncludedMeters)
	assert.Equal(t, map[string]octograph.MeterGeneration{"G4P00123": octograph.SMETS2}, c.GasGenerations())
	assert.True(t, c.Tags.IncludeMPAN)
	assert.Equal(t, "octograph", c.Tags.Additional["source"])
	assert.Equal(t, "/tmp/octograph-cache.sqlite3", c.Cache.Path)
}

func TestLoadInvalid(t *testing.T) {
	for _, test := range []struct {
		name string
		yaml string
	}{
		{name: "missing api key", yaml: `
octopus:
  account_number: A-123456
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "missing account", yaml: `
octopus:
  api_key: sk
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "bad timezone", yaml: `
octopus:
  api_key: sk
  account_number: A-123456
  timezone: Mars/OlympusMons
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "low start out of range", yaml: `
octopus:
  api_key: sk
  account_number: A-123456
  unit_rate_low_start: 24
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "bad resolution", yaml: `
octopus:
  api_key: sk
  account_number: A-123456
  resolution_minutes: 15
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "bad gas meter type", yaml: `
octopus:
  api_key: sk
  account_number: A-123456
gas:
  meter_types: {G4P00123: SMETS9}
influxdb: {url: http://localhost:8086, org: home, bucket: energy}
`},
		{name: "missing influx url", yaml: `
octopus:
  api_key: sk
  account_number: A-123456
influxdb: {org: home, bucket: energy}
`},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.yaml))
			require.ErrorIs(t, err, octograph.ErrConfiguration)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, octograph.ErrConfiguration)
}
