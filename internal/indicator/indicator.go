// Package indicator computes technical indicator value series from a bar
// series. Every function here is pure: same input series and spec always
// produce the same output.
package indicator

import (
	"time"

	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/core"
)

// Name identifies a supported indicator.
type Name string

const (
	// EMA is the exponential moving average of closing price.
	EMA Name = "ema"
	// RSI is the relative strength index of closing price.
	RSI Name = "rsi"
	// VolumeMA is the simple moving average of volume.
	VolumeMA Name = "volume_ma"
)

// Spec identifies one indicator series: which indicator, what period, and
// what cadence its input bars are aggregated to before computing.
type Spec struct {
	Name   Name
	Period int
	Cadence cadence.Cadence
}

// Validate checks the spec's structural invariants.
func (s Spec) Validate() error {
	if s.Period < 1 {
		return core.NewStatus(core.InvalidArgument, "indicator %s: period must be >= 1, got %d", s.Name, s.Period)
	}
	switch s.Name {
	case EMA, RSI, VolumeMA:
	default:
		return core.NewStatus(core.InvalidArgument, "unknown indicator %q", s.Name)
	}
	return nil
}

// Point is one dated indicator value.
type Point struct {
	Date        time.Time
	Value       float64
	Provisional bool
}

// Compute derives the indicator value series for spec from an already
// cadence-converted bar series (see cadence.Convert). EMA yields one point
// per input bar, seeded with the first close; RSI starts at the bar with
// index Period; VolumeMA starts at the bar with index Period-1.
func Compute(series []cadence.Bar, spec Spec) ([]Point, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Name {
	case EMA:
		return computeEMA(series, spec.Period), nil
	case RSI:
		return computeRSI(series, spec.Period), nil
	case VolumeMA:
		return computeVolumeMA(series, spec.Period), nil
	default:
		return nil, core.NewStatus(core.InvalidArgument, "unknown indicator %q", spec.Name)
	}
}

func computeEMA(series []cadence.Bar, period int) []Point {
	if len(series) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]Point, 0, len(series))
	var ema float64
	for i, b := range series {
		if i == 0 {
			ema = b.Close
		} else {
			ema = alpha*b.Close + (1-alpha)*ema
		}
		out = append(out, Point{Date: b.Date, Value: ema, Provisional: b.Provisional})
	}
	return out
}

func computeRSI(series []cadence.Bar, period int) []Point {
	if len(series) < 2 {
		return nil
	}
	out := make([]Point, 0, len(series))
	var avgGain, avgLoss float64
	for i := 1; i < len(series); i++ {
		change := series[i].Close - series[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= period {
			avgGain += gain / float64(period)
			avgLoss += loss / float64(period)
		} else {
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}
		if i < period {
			continue
		}
		var rsi float64
		if avgLoss == 0 {
			rsi = 100
		} else {
			rs := avgGain / avgLoss
			rsi = 100 - (100 / (1 + rs))
		}
		out = append(out, Point{Date: series[i].Date, Value: rsi, Provisional: series[i].Provisional})
	}
	return out
}

func computeVolumeMA(series []cadence.Bar, period int) []Point {
	out := make([]Point, 0, len(series))
	var sum float64
	for i, b := range series {
		sum += b.Volume
		if i >= period {
			sum -= series[i-period].Volume
		}
		if i < period-1 {
			continue
		}
		out = append(out, Point{Date: b.Date, Value: sum / float64(period), Provisional: b.Provisional})
	}
	return out
}
