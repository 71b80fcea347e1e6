// Package config loads and validates the octograph YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"octograph/internal/octograph"
	"octograph/internal/octopus"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Octopus  OctopusConfig  `yaml:"octopus"`
	Gas      GasConfig      `yaml:"gas"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Cache    CacheConfig    `yaml:"cache"`
	Tags     TagsConfig     `yaml:"tags"`
}

type OctopusConfig struct {
	APIPrefix         string   `yaml:"api_prefix"`
	APIKey            string   `yaml:"api_key"`
	AccountNumber     string   `yaml:"account_number"`
	Timezone          string   `yaml:"timezone"`
	PaymentMethod     string   `yaml:"payment_method"`
	ResolutionMinutes int      `yaml:"resolution_minutes"`
	UnitRateLowStart  int      `yaml:"unit_rate_low_start"`
	UnitRateLowEnd    int      `yaml:"unit_rate_low_end"`
	IncludedMeters    []string `yaml:"included_meters"`
}

type GasConfig struct {
	// MeterTypes maps gas meter serials to SMETS1 or SMETS2. Serials not
	// listed are assumed SMETS1 (kWh-native).
	MeterTypes             map[string]string `yaml:"meter_types"`
	VolumeCorrectionFactor float64           `yaml:"volume_correction_factor"`
	CalorificValue         float64           `yaml:"calorific_value"`
}

type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type CacheConfig struct {
	// Path of the sqlite response cache; empty disables caching.
	Path string `yaml:"path"`
}

type TagsConfig struct {
	IncludeMPAN         bool              `yaml:"include_mpan"`
	IncludeSerialNumber bool              `yaml:"include_serial_number"`
	Additional          map[string]string `yaml:"additional"`
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", octograph.ErrConfiguration, err)
	}
	c := &Config{}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", octograph.ErrConfiguration, path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Octopus.APIPrefix == "" {
		c.Octopus.APIPrefix = "https://api.octopus.energy/v1"
	}
	if c.Octopus.Timezone == "" {
		c.Octopus.Timezone = "Europe/London"
	}
	if c.Octopus.ResolutionMinutes == 0 {
		c.Octopus.ResolutionMinutes = 30
	}
	if c.Gas.VolumeCorrectionFactor == 0 {
		c.Gas.VolumeCorrectionFactor = 1.02264
	}
	if c.Gas.CalorificValue == 0 {
		c.Gas.CalorificValue = 40.0
	}
}

func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", octograph.ErrConfiguration, fmt.Sprintf(format, args...))
	}

	if c.Octopus.APIKey == "" {
		return fail("octopus.api_key is required")
	}
	if c.Octopus.AccountNumber == "" {
		return fail("octopus.account_number is required")
	}
	if _, err := time.LoadLocation(c.Octopus.Timezone); err != nil {
		return fail("octopus.timezone %q: %v", c.Octopus.Timezone, err)
	}
	if h := c.Octopus.UnitRateLowStart; h < 0 || h > 23 {
		return fail("octopus.unit_rate_low_start %d must be within 0..23", h)
	}
	if h := c.Octopus.UnitRateLowEnd; h < 0 || h > 23 {
		return fail("octopus.unit_rate_low_end %d must be within 0..23", h)
	}
	if _, err := octopus.GroupBy(c.Octopus.ResolutionMinutes); err != nil {
		return fail("octopus.resolution_minutes: %v", err)
	}
	for serial, mt := range c.Gas.MeterTypes {
		if g := octograph.MeterGeneration(mt); g != octograph.SMETS1 && g != octograph.SMETS2 {
			return fail("gas.meter_types[%s] %q must be SMETS1 or SMETS2", serial, mt)
		}
	}
	if c.Gas.VolumeCorrectionFactor <= 0 {
		return fail("gas.volume_correction_factor must be positive")
	}
	if c.Gas.CalorificValue <= 0 {
		return fail("gas.calorific_value must be positive")
	}
	if c.InfluxDB.URL == "" {
		return fail("influxdb.url is required")
	}
	if c.InfluxDB.Org == "" {
		return fail("influxdb.org is required")
	}
	if c.InfluxDB.Bucket == "" {
		return fail("influxdb.bucket is required")
	}
	return nil
}

// Location returns the configured timezone; Validate has already checked it
// loads.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.Octopus.Timezone)
	return loc
}

// GasGenerations converts the string-typed YAML mapping into model types.
func (c *Config) GasGenerations() map[string]octograph.MeterGeneration {
	out := make(map[string]octograph.MeterGeneration, len(c.Gas.MeterTypes))
	for serial, mt := range c.Gas.MeterTypes {
		out[serial] = octograph.MeterGeneration(mt)
	}
	return out
}
