// Package metrics accumulates run-level statistics from the daily equity
// and trade stream the simulation driver produces (spec §4.8).
package metrics

import (
	"math"
	"time"

	"github.com/mdreiback/backsim/internal/core"
)

// DailySnapshot is what the driver reports to every accumulator once per
// simulated day, after the day's trades have been booked.
type DailySnapshot struct {
	Date   time.Time
	Equity float64
	Trades []core.Trade // today's trades, in execution order
}

// Result is one accumulator's final output: a name and a flat set of named
// values, suitable for serializing into a run report.
type Result struct {
	Name   string
	Values map[string]float64
}

// Accumulator is the init/update/finalize contract every metric implements.
type Accumulator interface {
	Name() string
	Init(initialEquity float64)
	Update(s DailySnapshot)
	Finalize() Result
}

// Summary accumulates trade counts, win/loss totals, and streaks.
type Summary struct {
	initialEquity float64
	finalEquity   float64

	closedTrades int
	wins         int
	losses       int
	grossProfit  float64
	grossLoss    float64

	currentStreak     int // positive run of wins, negative run of losses
	longestWinStreak  int
	longestLossStreak int
}

// Name implements Accumulator.
func (s *Summary) Name() string { return "summary" }

// Init implements Accumulator.
func (s *Summary) Init(initialEquity float64) {
	*s = Summary{initialEquity: initialEquity, finalEquity: initialEquity}
}

// Update implements Accumulator.
func (s *Summary) Update(snap DailySnapshot) {
	s.finalEquity = snap.Equity
	for _, t := range snap.Trades {
		if t.RealizedPnL == 0 {
			continue
		}
		s.closedTrades++
		if t.RealizedPnL > 0 {
			s.wins++
			s.grossProfit += t.RealizedPnL
			if s.currentStreak > 0 {
				s.currentStreak++
			} else {
				s.currentStreak = 1
			}
			if s.currentStreak > s.longestWinStreak {
				s.longestWinStreak = s.currentStreak
			}
		} else {
			s.losses++
			s.grossLoss += -t.RealizedPnL
			if s.currentStreak < 0 {
				s.currentStreak--
			} else {
				s.currentStreak = -1
			}
			if -s.currentStreak > s.longestLossStreak {
				s.longestLossStreak = -s.currentStreak
			}
		}
	}
}

// Finalize implements Accumulator.
func (s *Summary) Finalize() Result {
	winRate := 0.0
	if s.closedTrades > 0 {
		winRate = float64(s.wins) / float64(s.closedTrades)
	}
	profitFactor := math.Inf(1)
	if s.grossLoss > 0 {
		profitFactor = s.grossProfit / s.grossLoss
	}
	return Result{
		Name: s.Name(),
		Values: map[string]float64{
			"total_return_pct":    (s.finalEquity/s.initialEquity - 1) * 100,
			"closed_trades":       float64(s.closedTrades),
			"wins":                float64(s.wins),
			"losses":              float64(s.losses),
			"win_rate":            winRate,
			"profit_factor":       profitFactor,
			"longest_win_streak":  float64(s.longestWinStreak),
			"longest_loss_streak": float64(s.longestLossStreak),
		},
	}
}

// Sharpe accumulates daily returns and reports the annualized Sharpe ratio
// (zero risk-free rate).
type Sharpe struct {
	prevEquity float64
	returns    []float64
}

// Name implements Accumulator.
func (sh *Sharpe) Name() string { return "sharpe" }

// Init implements Accumulator.
func (sh *Sharpe) Init(initialEquity float64) {
	*sh = Sharpe{prevEquity: initialEquity}
}

// Update implements Accumulator.
func (sh *Sharpe) Update(snap DailySnapshot) {
	if sh.prevEquity > 0 {
		sh.returns = append(sh.returns, snap.Equity/sh.prevEquity-1)
	}
	sh.prevEquity = snap.Equity
}

// Finalize implements Accumulator.
func (sh *Sharpe) Finalize() Result {
	n := len(sh.returns)
	ratio := 0.0
	if n > 1 {
		mean := 0.0
		for _, r := range sh.returns {
			mean += r
		}
		mean /= float64(n)

		variance := 0.0
		for _, r := range sh.returns {
			d := r - mean
			variance += d * d
		}
		variance /= float64(n - 1)
		stddev := math.Sqrt(variance)
		if stddev > 0 {
			const tradingDaysPerYear = 252
			ratio = (mean / stddev) * math.Sqrt(tradingDaysPerYear)
		}
	}
	return Result{Name: sh.Name(), Values: map[string]float64{"sharpe_ratio": ratio}}
}

// MaxDrawdown accumulates the largest peak-to-trough decline in equity.
type MaxDrawdown struct {
	peak float64
	max  float64
}

// Name implements Accumulator.
func (m *MaxDrawdown) Name() string { return "max_drawdown" }

// Init implements Accumulator.
func (m *MaxDrawdown) Init(initialEquity float64) {
	*m = MaxDrawdown{peak: initialEquity}
}

// Update implements Accumulator.
func (m *MaxDrawdown) Update(snap DailySnapshot) {
	if snap.Equity > m.peak {
		m.peak = snap.Equity
	}
	if m.peak <= 0 {
		return
	}
	drawdown := (m.peak - snap.Equity) / m.peak
	if drawdown > m.max {
		m.max = drawdown
	}
}

// Finalize implements Accumulator.
func (m *MaxDrawdown) Finalize() Result {
	return Result{Name: m.Name(), Values: map[string]float64{"max_drawdown_pct": m.max * 100}}
}

// Set is the standard bundle of accumulators a run tracks.
func Set() []Accumulator {
	return []Accumulator{&Summary{}, &Sharpe{}, &MaxDrawdown{}}
}
