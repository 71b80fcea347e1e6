// Package influx writes cost records to InfluxDB and answers the backfill
// planner's "when did we last store anything for this meter" probe.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"octograph/internal/octograph"
)

// probeLookback bounds how far back the planner's probe searches; anything
// older requires an explicit backfill anyway.
const probeLookback = "-30d"

type Store struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
}

func New(url, token, org, bucket string) *Store {
	c := influxdb2.NewClient(url, token)
	return &Store{
		client: c,
		write:  c.WriteAPIBlocking(org, bucket),
		query:  c.QueryAPI(org),
		bucket: bucket,
	}
}

func (s *Store) Close() {
	s.client.Close()
}

// WriteRecords writes one point per cost record. Records arrive in
// interval-start order and are written in that order.
func (s *Store) WriteRecords(ctx context.Context, records []octograph.CostRecord) error {
	pts := make([]*write.Point, 0, len(records))
	for _, r := range records {
		pts = append(pts, Point(r))
	}
	if err := s.write.WritePoint(ctx, pts...); err != nil {
		return fmt.Errorf("write %d points: %w", len(pts), err)
	}
	return nil
}

// Point maps a cost record onto an InfluxDB point: measurement named after
// the meter kind, timestamped at the interval end. The serial_number tag is
// always present because LastKnownTimestamp filters on it.
func Point(r octograph.CostRecord) *write.Point {
	tags := map[string]string{
		"active_rate": string(r.Band),
		"tariff_code": r.TariffCode,
	}
	for k, v := range r.Tags {
		tags[k] = v
	}
	if _, ok := tags["serial_number"]; !ok {
		tags["serial_number"] = r.Meter.SerialNumber
	}
	fields := map[string]any{
		"consumption":     r.EnergyKWh,
		"unit_rate":       r.UnitRate,
		"cost":            r.Cost,
		"standing_charge": r.Standing,
		"total_cost":      r.TotalCost,
	}
	return influxdb2.NewPoint(string(r.Meter.Kind), tags, fields, r.End)
}

// LastKnownTimestamp returns the time of the most recent point stored for
// the meter within the look-back window, or nil when there is none.
func (s *Store) LastKnownTimestamp(ctx context.Context, m *octograph.Meter) (*time.Time, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r.serial_number == %q and r._field == "consumption")
  |> last()`, s.bucket, probeLookback, string(m.Kind), m.SerialNumber)

	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query last point for %s: %w", m.SerialNumber, err)
	}
	defer res.Close()

	var last *time.Time
	for res.Next() {
		ts := res.Record().Time()
		if last == nil || ts.After(*last) {
			last = &ts
		}
	}
	if res.Err() != nil {
		return nil, res.Err()
	}
	return last, nil
}
