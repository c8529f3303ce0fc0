package strategy

import (
	"context"
	"log"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/position"
)

// BracketConfig configures the single-entry symmetric-bracket strategy.
type BracketConfig struct {
	Side          core.Side
	Quantity      int
	StopPct       float64 // distance of the stop from entry, as a fraction
	TakeProfitPct float64 // distance of the take-profit from entry, as a fraction
}

// BracketStrategy enters once per symbol on the first day it observes one,
// then holds until the stop or take-profit attached at entry fills. It
// issues no further decisions once a position exists — the bracket is
// worked entirely by the orders the order generator places from the
// position's risk parameters.
type BracketStrategy struct {
	cfg    BracketConfig
	logger *log.Logger
}

// NewBracketStrategy creates a bracket strategy instance.
func NewBracketStrategy(cfg BracketConfig, logger *log.Logger) *BracketStrategy {
	if logger == nil {
		logger = log.Default()
	}
	return &BracketStrategy{cfg: cfg, logger: logger}
}

// Name identifies the strategy for logging and report output.
func (s *BracketStrategy) Name() string { return "symmetric_bracket" }

// Decide implements Strategy.
func (s *BracketStrategy) Decide(_ context.Context, in Input) ([]Intent, error) {
	if in.Position != nil || in.HasEntered {
		return nil, nil
	}

	entry := in.Bar.Close
	var risk position.RiskParams
	if s.cfg.Side == core.Sell {
		risk = position.RiskParams{
			StopPrice:       entry * (1 + s.cfg.StopPct),
			TakeProfitPrice: entry * (1 - s.cfg.TakeProfitPct),
		}
	} else {
		risk = position.RiskParams{
			StopPrice:       entry * (1 - s.cfg.StopPct),
			TakeProfitPrice: entry * (1 + s.cfg.TakeProfitPct),
		}
	}

	return []Intent{{
		Tag:      IntentEnter,
		Side:     s.cfg.Side,
		Quantity: s.cfg.Quantity,
		Kind:     core.Market(),
		Reason:   "bracket_entry",
		Risk:     risk,
	}}, nil
}
