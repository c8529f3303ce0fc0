// Package strategy defines the pluggable decision interface the simulation
// driver calls once per symbol per day, plus two built-in strategies (spec
// §4.2, §9).
package strategy

import (
	"context"
	"time"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/position"
)

// IndicatorValue is one cached indicator reading, passed to a strategy
// alongside its provisional flag so the strategy can choose to ignore
// in-progress periods.
type IndicatorValue struct {
	Value       float64
	Provisional bool
}

// Input is everything a strategy sees for one symbol on one trading day.
// The driver populates PriorIndicators and HasEntered from its own run
// history so that Decide can stay a pure function of its argument: the
// same Input must always produce the same Intents (spec §4.2).
type Input struct {
	Symbol     core.Symbol
	Date       time.Time
	Bar        core.Bar
	Indicators map[indicator.Spec]IndicatorValue
	Position   *position.Position // nil when no open or entering position exists

	// PriorIndicators holds the previous trading day's indicator readings
	// for this symbol, so a strategy can detect a crossover without
	// keeping its own mutable history.
	PriorIndicators map[indicator.Spec]IndicatorValue
	// HasEntered reports whether a position has ever been opened for this
	// symbol over the course of the run, even if it has since closed.
	HasEntered bool
}

// IntentTag discriminates the Intent sum type.
type IntentTag string

const (
	// IntentEnter requests a new position be opened.
	IntentEnter IntentTag = "enter"
	// IntentExit requests an open position be closed.
	IntentExit IntentTag = "exit"
	// IntentUpdateRisk requests a Holding position's stop/take-profit move.
	IntentUpdateRisk IntentTag = "update_risk"
)

// Intent is a strategy's tagged request for the order generator to act on.
// It carries only the fields relevant to its tag.
type Intent struct {
	Tag IntentTag

	// Enter
	Side     core.Side
	Quantity int
	Kind     core.OrderKind
	Reason   string
	Risk     position.RiskParams

	// Exit
	ExitReason string
	ExitPlan   position.ExitPlan

	// UpdateRisk
	NewRisk position.RiskParams
}

// Strategy decides what, if anything, to do for one symbol on one day.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, in Input) ([]Intent, error)
}
