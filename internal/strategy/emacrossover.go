package strategy

import (
	"context"
	"log"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/position"
)

// EMACrossoverConfig configures the moving-average crossover strategy.
type EMACrossoverConfig struct {
	FastSpec      indicator.Spec
	SlowSpec      indicator.Spec
	Quantity      int
	StopLossPct   float64 // e.g. 0.05 for a 5% stop below entry
	TakeProfitPct float64 // e.g. 0.10 for a 10% target above entry
}

// Exit reasons the crossover strategy can request.
const (
	ExitReasonCrossDown = "ema_crossover_down"
)

// EMACrossoverStrategy goes long when the fast EMA crosses above the slow
// EMA and exits when it crosses back below, bracketing every entry with a
// stop StopLossPct below and a take-profit TakeProfitPct above the entry
// bar's close.
type EMACrossoverStrategy struct {
	cfg    EMACrossoverConfig
	logger *log.Logger
}

// NewEMACrossoverStrategy creates a crossover strategy instance.
func NewEMACrossoverStrategy(cfg EMACrossoverConfig, logger *log.Logger) *EMACrossoverStrategy {
	if logger == nil {
		logger = log.Default()
	}
	return &EMACrossoverStrategy{cfg: cfg, logger: logger}
}

// Name identifies the strategy for logging and report output.
func (s *EMACrossoverStrategy) Name() string { return "ema_crossover" }

// Decide implements Strategy.
func (s *EMACrossoverStrategy) Decide(_ context.Context, in Input) ([]Intent, error) {
	fast, fastOK := in.Indicators[s.cfg.FastSpec]
	slow, slowOK := in.Indicators[s.cfg.SlowSpec]
	if !fastOK || !slowOK || fast.Provisional || slow.Provisional {
		return nil, nil
	}

	currAbove := fast.Value > slow.Value

	prevFast, prevFastOK := in.PriorIndicators[s.cfg.FastSpec]
	prevSlow, prevSlowOK := in.PriorIndicators[s.cfg.SlowSpec]
	if !prevFastOK || !prevSlowOK || prevFast.Provisional || prevSlow.Provisional {
		return nil, nil
	}
	prev := prevFast.Value > prevSlow.Value

	if in.Position == nil {
		if !prev && currAbove {
			entry := in.Bar.Close
			risk := position.RiskParams{
				StopPrice:       entry * (1 - s.cfg.StopLossPct),
				TakeProfitPrice: entry * (1 + s.cfg.TakeProfitPct),
			}
			return []Intent{{
				Tag:      IntentEnter,
				Side:     core.Buy,
				Quantity: s.cfg.Quantity,
				Kind:     core.Market(),
				Reason:   "ema_crossover_up",
				Risk:     risk,
			}}, nil
		}
		return nil, nil
	}

	if in.Position.Tag == position.Holding && prev && !currAbove {
		return []Intent{{
			Tag:        IntentExit,
			ExitReason: ExitReasonCrossDown,
			ExitPlan:   position.ExitPlan{},
		}}, nil
	}
	return nil, nil
}
