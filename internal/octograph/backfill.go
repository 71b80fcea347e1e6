package octograph

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Selector values accepted by the backfill planner beyond literal dates.
const (
	FromLatest    = "latest"
	SelYesterday  = "yesterday"
	SelTomorrow   = "tomorrow"
	probeLookback = 30 * 24 * time.Hour
)

// Probe is the planner's view of the metrics store: the most recent stored
// timestamp for a meter, or nil when the store holds nothing for it.
type Probe interface {
	LastKnownTimestamp(ctx context.Context, m *Meter) (*time.Time, error)
}

// Plan is a resolved, half-open backfill range of local-midnight instants:
// [Start, End).
type Plan struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether there is nothing to do. Callers treat an empty plan
// as a no-op, not an error.
func (p Plan) Empty() bool {
	return !p.Start.Before(p.End)
}

// PlanBackfill resolves the from/to selectors into a concrete date range.
//
// to: "yesterday", "tomorrow", or a YYYY-MM-DD date.
// from: "yesterday", a YYYY-MM-DD date, or "latest", which probes the store
// for each meter's most recent point within the last 30 days and starts at
// the earliest such day across all meters so no meter's gap is missed.
//
// "latest" with nothing stored for any meter is a fatal configuration error:
// at least one explicit backfill must have happened first, and defaulting to
// an arbitrary start would make the plan non-deterministic.
func PlanBackfill(ctx context.Context, from, to string, now time.Time, loc *time.Location, meters []*Meter, probe Probe, logger *log.Logger) (Plan, error) {
	end, err := resolveSelector(to, now, loc, false)
	if err != nil {
		return Plan{}, fmt.Errorf("to-date: %w", err)
	}

	var start time.Time
	if from == FromLatest {
		start, err = latestStart(ctx, now, loc, meters, probe, logger)
	} else {
		start, err = resolveSelector(from, now, loc, true)
	}
	if err != nil {
		return Plan{}, fmt.Errorf("from-date: %w", err)
	}

	return Plan{Start: start, End: end}, nil
}

func resolveSelector(s string, now time.Time, loc *time.Location, isFrom bool) (time.Time, error) {
	switch s {
	case SelYesterday:
		return midnight(now.In(loc)).AddDate(0, 0, -1), nil
	case SelTomorrow:
		if isFrom {
			break
		}
		return midnight(now.In(loc)).AddDate(0, 0, 1), nil
	default:
		d, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid date selector %q", ErrConfiguration, s)
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date selector %q", ErrConfiguration, s)
}

// latestStart is the earliest "day of the last stored point" across all
// meters. Probe results older than the look-back window count as no data.
// Meters with no data are ignored as long as at least one meter has some;
// the next explicit backfill is expected to cover them.
func latestStart(ctx context.Context, now time.Time, loc *time.Location, meters []*Meter, probe Probe, logger *log.Logger) (time.Time, error) {
	horizon := now.Add(-probeLookback)
	var earliest *time.Time
	for _, m := range meters {
		last, err := probe.LastKnownTimestamp(ctx, m)
		if err != nil {
			return time.Time{}, fmt.Errorf("probe meter %s: %w", m.SerialNumber, err)
		}
		if last == nil || last.Before(horizon) {
			if logger != nil {
				logger.Warnf("meter %s has no stored data within the last 30 days", m.SerialNumber)
			}
			continue
		}
		day := midnight(last.In(loc))
		if earliest == nil || day.Before(*earliest) {
			earliest = &day
		}
	}
	if earliest == nil {
		return time.Time{}, fmt.Errorf("%w: no stored data for any meter within the last 30 days; run an explicit backfill first", ErrConfiguration)
	}
	return *earliest, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
