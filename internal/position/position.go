// Package position implements the per-decision position lifecycle state
// machine: Entering -> Holding -> Exiting -> Closed, with strict transition
// validation and derived realized-P&L semantics (spec §4.3).
package position

import (
	"time"

	"github.com/mdreiback/backsim/internal/core"
)

// Tag discriminates the Position sum type's four lifecycle states.
type Tag string

const (
	// Entering is a position whose entry order(s) are being filled.
	Entering Tag = "entering"
	// Holding is a fully-entered, currently-open position.
	Holding Tag = "holding"
	// Exiting is a position whose exit order(s) are being filled.
	Exiting Tag = "exiting"
	// Closed is a position whose lifecycle has ended.
	Closed Tag = "closed"
)

// RiskParams carries the stop-loss and take-profit levels attached to a
// Holding position.
type RiskParams struct {
	StopPrice       float64
	TakeProfitPrice float64
}

// ExitPlan describes how an exit should be executed once triggered.
type ExitPlan struct {
	// Limit, if non-zero, requests a limit exit at this price; zero means market.
	Limit float64
}

// Position is a tagged variant over the four lifecycle states, each
// carrying only the fields relevant to that phase (spec §3).
type Position struct {
	ID          string
	Symbol      core.Symbol
	Side        core.Side // direction of the entry (Buy=long, Sell=short)
	LastUpdated time.Time
	Tag         Tag

	// Entering
	EntryReason    string
	EntryTargetQty int
	EntryFilledQty int

	// Holding
	EntryPrice float64
	EntryDate  time.Time
	Risk       RiskParams

	// Exiting
	ExitReason    string
	ExitPlan      ExitPlan
	ExitTargetQty int
	ExitFilledQty int

	// Closed
	GrossPnL      float64
	NetPnL        float64
	ReturnPercent float64
	DaysHeld      int
	CloseReason   string
}

// NewEntering creates a fresh position in the Entering state.
func NewEntering(id string, symbol core.Symbol, side core.Side, targetQty int, reason string) Position {
	return Position{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Tag:            Entering,
		LastUpdated:    time.Now().UTC(),
		EntryReason:    reason,
		EntryTargetQty: targetQty,
	}
}

// TransitionTag discriminates the Transition sum type.
type TransitionTag string

const (
	// TEntryFill records a (partial) entry fill.
	TEntryFill TransitionTag = "entry_fill"
	// TEntryComplete finalizes the entry once fully filled.
	TEntryComplete TransitionTag = "entry_complete"
	// TCancelEntry cancels an entry before any fill.
	TCancelEntry TransitionTag = "cancel_entry"
	// TTriggerExit begins the exit process from Holding.
	TTriggerExit TransitionTag = "trigger_exit"
	// TUpdateRiskParams adjusts stop/take-profit while Holding.
	TUpdateRiskParams TransitionTag = "update_risk_params"
	// TExitFill records a (partial) exit fill.
	TExitFill TransitionTag = "exit_fill"
	// TExitComplete finalizes the exit once fully filled.
	TExitComplete TransitionTag = "exit_complete"
	// TReduceEntryTarget lowers an Entering position's target quantity down
	// to its already-filled quantity, used when a Day-TIF entry order
	// expires unfilled leaving a partial fill that will never complete.
	TReduceEntryTarget TransitionTag = "reduce_entry_target"
	// TReduceExitTarget is TReduceEntryTarget's mirror for an Exiting
	// position whose Day-TIF exit order expires with a partial fill.
	TReduceExitTarget TransitionTag = "reduce_exit_target"
)

// Transition is a tagged variant over the operations §4.3's table defines.
type Transition struct {
	Tag TransitionTag

	// EntryFill / ExitFill
	Quantity int
	Price    float64
	Date     time.Time

	// EntryComplete
	AvgEntryPrice float64
	RiskParams    RiskParams

	// CancelEntry
	Reason string

	// TriggerExit
	ExitReason string
	Plan       ExitPlan

	// UpdateRiskParams
	NewRiskParams RiskParams

	// ExitComplete
	AvgExitPrice float64

	// ReduceEntryTarget
	NewTargetQty int
}

// Apply is the total function on (state, transition) pairs described in
// spec §9's design notes: it returns a new Position value or a Status
// error, never partially mutating the input (Go value semantics guarantee
// the caller's Position is untouched on error, since Apply never takes a
// pointer).
func Apply(pos Position, t Transition) (Position, error) {
	switch t.Tag {
	case TEntryFill:
		return applyEntryFill(pos, t)
	case TEntryComplete:
		return applyEntryComplete(pos, t)
	case TCancelEntry:
		return applyCancelEntry(pos, t)
	case TTriggerExit:
		return applyTriggerExit(pos, t)
	case TUpdateRiskParams:
		return applyUpdateRiskParams(pos, t)
	case TExitFill:
		return applyExitFill(pos, t)
	case TExitComplete:
		return applyExitComplete(pos, t)
	case TReduceEntryTarget:
		return applyReduceEntryTarget(pos, t)
	case TReduceExitTarget:
		return applyReduceExitTarget(pos, t)
	default:
		return pos, core.NewStatus(core.InvalidArgument, "position %s: unknown transition %q", pos.ID, t.Tag)
	}
}

func nextTimestamp(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func applyEntryFill(pos Position, t Transition) (Position, error) {
	if pos.Tag != Entering {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: entry_fill only valid from Entering, got %s", pos.ID, pos.Tag)
	}
	if t.Quantity <= 0 {
		return pos, core.NewStatus(core.InvalidArgument, "position %s: entry_fill quantity must be positive", pos.ID)
	}
	filled := pos.EntryFilledQty + t.Quantity
	if filled > pos.EntryTargetQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: entry_fill overflows target (filled=%d target=%d)", pos.ID, filled, pos.EntryTargetQty)
	}
	out := pos
	out.EntryFilledQty = filled
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyEntryComplete(pos Position, t Transition) (Position, error) {
	if pos.Tag != Entering {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: entry_complete only valid from Entering, got %s", pos.ID, pos.Tag)
	}
	if pos.EntryFilledQty != pos.EntryTargetQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: entry_complete requires full fill (filled=%d target=%d)", pos.ID, pos.EntryFilledQty, pos.EntryTargetQty)
	}
	out := pos
	out.Tag = Holding
	out.EntryPrice = t.AvgEntryPrice
	out.EntryDate = t.Date
	out.Risk = t.RiskParams
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyCancelEntry(pos Position, t Transition) (Position, error) {
	if pos.Tag != Entering {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: cancel_entry only valid from Entering, got %s", pos.ID, pos.Tag)
	}
	if pos.EntryFilledQty > 0 {
		return pos, core.NewStatus(core.InvalidArgument, "position %s: cancel_entry requires zero fill, got %d", pos.ID, pos.EntryFilledQty)
	}
	out := pos
	out.Tag = Closed
	out.CloseReason = t.Reason
	out.GrossPnL = 0
	out.NetPnL = 0
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyTriggerExit(pos Position, t Transition) (Position, error) {
	if pos.Tag != Holding {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: trigger_exit only valid from Holding, got %s", pos.ID, pos.Tag)
	}
	out := pos
	out.Tag = Exiting
	out.ExitReason = t.ExitReason
	out.ExitPlan = t.Plan
	out.ExitTargetQty = pos.EntryTargetQty
	out.ExitFilledQty = 0
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyUpdateRiskParams(pos Position, t Transition) (Position, error) {
	if pos.Tag != Holding {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: update_risk_params only valid from Holding, got %s", pos.ID, pos.Tag)
	}
	np := t.NewRiskParams
	if pos.Side == core.Buy {
		if np.StopPrice >= pos.EntryPrice {
			return pos, core.NewStatus(core.InvalidArgument, "position %s: long stop %.4f must be below entry %.4f", pos.ID, np.StopPrice, pos.EntryPrice)
		}
		if np.TakeProfitPrice <= pos.EntryPrice {
			return pos, core.NewStatus(core.InvalidArgument, "position %s: long take-profit %.4f must be above entry %.4f", pos.ID, np.TakeProfitPrice, pos.EntryPrice)
		}
	} else {
		if np.StopPrice <= pos.EntryPrice {
			return pos, core.NewStatus(core.InvalidArgument, "position %s: short stop %.4f must be above entry %.4f", pos.ID, np.StopPrice, pos.EntryPrice)
		}
		if np.TakeProfitPrice >= pos.EntryPrice {
			return pos, core.NewStatus(core.InvalidArgument, "position %s: short take-profit %.4f must be below entry %.4f", pos.ID, np.TakeProfitPrice, pos.EntryPrice)
		}
	}
	out := pos
	out.Risk = np
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyExitFill(pos Position, t Transition) (Position, error) {
	if pos.Tag != Exiting {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: exit_fill only valid from Exiting, got %s", pos.ID, pos.Tag)
	}
	if t.Quantity <= 0 {
		return pos, core.NewStatus(core.InvalidArgument, "position %s: exit_fill quantity must be positive", pos.ID)
	}
	filled := pos.ExitFilledQty + t.Quantity
	if filled > pos.ExitTargetQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: exit_fill overflows target (filled=%d target=%d)", pos.ID, filled, pos.ExitTargetQty)
	}
	out := pos
	out.ExitFilledQty = filled
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyReduceEntryTarget(pos Position, t Transition) (Position, error) {
	if pos.Tag != Entering {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: reduce_entry_target only valid from Entering, got %s", pos.ID, pos.Tag)
	}
	if t.NewTargetQty < pos.EntryFilledQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: reduce_entry_target %d below already-filled %d", pos.ID, t.NewTargetQty, pos.EntryFilledQty)
	}
	out := pos
	out.EntryTargetQty = t.NewTargetQty
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyReduceExitTarget(pos Position, t Transition) (Position, error) {
	if pos.Tag != Exiting {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: reduce_exit_target only valid from Exiting, got %s", pos.ID, pos.Tag)
	}
	if t.NewTargetQty < pos.ExitFilledQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: reduce_exit_target %d below already-filled %d", pos.ID, t.NewTargetQty, pos.ExitFilledQty)
	}
	out := pos
	out.ExitTargetQty = t.NewTargetQty
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}

func applyExitComplete(pos Position, t Transition) (Position, error) {
	if pos.Tag != Exiting {
		return pos, core.NewStatus(core.FailedPrecondition, "position %s: exit_complete only valid from Exiting, got %s", pos.ID, pos.Tag)
	}
	if pos.ExitFilledQty != pos.ExitTargetQty {
		return pos, core.NewStatus(core.InvalidArgument,
			"position %s: exit_complete requires full fill (filled=%d target=%d)", pos.ID, pos.ExitFilledQty, pos.ExitTargetQty)
	}
	out := pos
	out.Tag = Closed
	out.CloseReason = pos.ExitReason

	qty := float64(pos.EntryTargetQty)
	var gross float64
	if pos.Side == core.Buy {
		gross = qty * (t.AvgExitPrice - pos.EntryPrice)
	} else {
		gross = qty * (pos.EntryPrice - t.AvgExitPrice)
	}
	out.GrossPnL = gross
	out.NetPnL = gross // commission is accounted for in the portfolio, not here
	if pos.EntryPrice != 0 {
		out.ReturnPercent = gross / (qty * pos.EntryPrice) * 100
	}
	if !pos.EntryDate.IsZero() {
		out.DaysHeld = int(t.Date.Sub(pos.EntryDate).Hours() / 24)
	}
	out.LastUpdated = nextTimestamp(pos.LastUpdated)
	return out, nil
}
