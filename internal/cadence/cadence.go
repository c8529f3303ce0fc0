// Package cadence aggregates a daily bar series into weekly or monthly bars,
// with support for provisional (incomplete-period) output.
package cadence

import (
	"time"

	"github.com/mdreiback/backsim/internal/core"
)

// Cadence is the time-aggregation level an indicator is computed over.
type Cadence string

const (
	// Daily is the identity conversion.
	Daily Cadence = "daily"
	// Weekly aggregates consecutive days within the same ISO week.
	Weekly Cadence = "weekly"
	// Monthly aggregates consecutive days within the same calendar month.
	Monthly Cadence = "monthly"
)

// Options controls how an incomplete trailing period is handled.
type Options struct {
	// AsOf, when non-zero, causes an incomplete trailing period to be
	// emitted as a provisional bar dated to the last observed day in that
	// period, instead of being dropped.
	AsOf time.Time
	// IncludePartialTail, when true and AsOf is zero, emits the trailing
	// incomplete period as a non-provisional bar instead of dropping it.
	IncludePartialTail bool
	// WeekdayOnly rejects weekend input rows when true.
	WeekdayOnly bool
}

// Bar extends core.Bar with a provisional flag for the cadence converter's
// output.
type Bar struct {
	core.Bar
	Provisional bool
}

// Convert aggregates an ascending, duplicate-free daily series into the
// requested cadence.
func Convert(daily []core.Bar, c Cadence, opts Options) ([]Bar, error) {
	if err := validate(daily, opts); err != nil {
		return nil, err
	}
	switch c {
	case Daily, "":
		out := make([]Bar, len(daily))
		for i, b := range daily {
			out[i] = Bar{Bar: b}
		}
		return out, nil
	case Weekly:
		return aggregate(daily, opts, periodKeyWeek)
	case Monthly:
		return aggregate(daily, opts, periodKeyMonth)
	default:
		return nil, core.NewStatus(core.InvalidArgument, "unknown cadence %q", c)
	}
}

func validate(daily []core.Bar, opts Options) error {
	for i := 1; i < len(daily); i++ {
		if !daily[i].Date.After(daily[i-1].Date) {
			return core.NewStatus(core.InvalidArgument,
				"cadence convert: input must be ascending and unique, violated at index %d", i)
		}
	}
	if opts.WeekdayOnly {
		for _, b := range daily {
			wd := b.Date.Weekday()
			if wd == time.Saturday || wd == time.Sunday {
				return core.NewStatus(core.InvalidArgument,
					"cadence convert: weekend row %s present in weekday-only mode", b.Date.Format("2006-01-02"))
			}
		}
	}
	return nil
}

// periodKeyWeek returns a key identifying the ISO year+week of a date.
func periodKeyWeek(t time.Time) (int, int) {
	y, w := t.ISOWeek()
	return y, w
}

// periodKeyMonth returns a key identifying the calendar year+month of a date.
func periodKeyMonth(t time.Time) (int, int) {
	return t.Year(), int(t.Month())
}

func aggregate(daily []core.Bar, opts Options, keyOf func(time.Time) (int, int)) ([]Bar, error) {
	if len(daily) == 0 {
		return nil, nil
	}

	var out []Bar
	start := 0
	for i := 1; i <= len(daily); i++ {
		samePeriod := i < len(daily)
		if samePeriod {
			k1a, k1b := keyOf(daily[start].Date)
			k2a, k2b := keyOf(daily[i].Date)
			samePeriod = k1a == k2a && k1b == k2b
		}
		if samePeriod {
			continue
		}
		// [start, i) is one complete group of consecutive same-period rows.
		group := daily[start:i]
		isTrailing := i == len(daily)
		if isTrailing && !periodComplete(group, opts, keyOf) {
			if !opts.AsOf.IsZero() {
				out = append(out, buildBar(group, true))
			} else if opts.IncludePartialTail {
				out = append(out, buildBar(group, false))
			}
			// else: drop the incomplete tail.
		} else {
			out = append(out, buildBar(group, false))
		}
		start = i
	}
	return out, nil
}

// periodComplete reports whether the trailing group's period has ended.
// With opts.AsOf zero it always reports false, so a trailing group is
// treated as incomplete (dropped, or kept by IncludePartialTail) even when
// it covers the whole period. With AsOf set, the period counts as complete
// only once AsOf falls in a later period than the group's last date.
func periodComplete(group []core.Bar, opts Options, keyOf func(time.Time) (int, int)) bool {
	if opts.AsOf.IsZero() {
		return false
	}
	last := group[len(group)-1].Date
	ka, kb := keyOf(last)
	aa, ab := keyOf(opts.AsOf)
	// The period is complete once AsOf has moved into a later period.
	return aa != ka || ab != kb
}

func buildBar(group []core.Bar, provisional bool) Bar {
	first := group[0]
	last := group[len(group)-1]
	hi, lo, vol := first.High, first.Low, 0.0
	for _, b := range group {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
		vol += b.Volume
	}
	return Bar{
		Bar: core.Bar{
			Symbol: first.Symbol,
			Date:   last.Date,
			Open:   first.Open,
			High:   hi,
			Low:    lo,
			Close:  last.Close,
			Volume: vol,
		},
		Provisional: provisional,
	}
}
