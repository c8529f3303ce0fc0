// Package ordergen turns strategy intents and position risk parameters
// into concrete orders, and tracks which order belongs to which position so
// the simulation driver can route fills back into the position state
// machine (spec §4.2, §4.3, §4.6).
package ordergen

import (
	"github.com/google/uuid"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/orderbook"
	"github.com/mdreiback/backsim/internal/position"
	"github.com/mdreiback/backsim/internal/strategy"
)

// Role identifies why an order was generated, so a fill can be routed to
// the right position transition.
type Role string

const (
	// RoleEntry is the order opening a position.
	RoleEntry Role = "entry"
	// RoleExitStop is the resting stop leg of a position's bracket.
	RoleExitStop Role = "exit_stop"
	// RoleExitTakeProfit is the resting limit leg of a position's bracket.
	RoleExitTakeProfit Role = "exit_take_profit"
	// RoleExitSignal is a strategy-requested exit outside the bracket.
	RoleExitSignal Role = "exit_signal"
)

// Meta is what the generator remembers about an order it produced.
type Meta struct {
	PositionID string
	Role       Role
}

// bracketPair holds the two OCO legs generated for one position's risk
// parameters, so filling one can cancel the other.
type bracketPair struct {
	stopOrderID string
	tpOrderID   string
}

// Generator submits orders to a book on behalf of strategy decisions and
// indexes them by the position they serve.
type Generator struct {
	book     *orderbook.Book
	meta     map[string]Meta
	brackets map[string]bracketPair // keyed by position id
}

// New creates an order generator writing into book.
func New(book *orderbook.Book) *Generator {
	return &Generator{
		book:     book,
		meta:     make(map[string]Meta),
		brackets: make(map[string]bracketPair),
	}
}

// MetaFor returns what the generator knows about orderID.
func (g *Generator) MetaFor(orderID string) (Meta, bool) {
	m, ok := g.meta[orderID]
	return m, ok
}

func oppositeSide(s core.Side) core.Side {
	if s == core.Buy {
		return core.Sell
	}
	return core.Buy
}

// SubmitEntry registers the order that opens pos, per intent's requested
// side, quantity and kind.
func (g *Generator) SubmitEntry(pos position.Position, intent strategy.Intent) (string, error) {
	order := &core.Order{
		ID:       uuid.NewString(),
		Symbol:   pos.Symbol,
		Side:     intent.Side,
		Kind:     intent.Kind,
		Quantity: intent.Quantity,
		TIF:      core.Day,
	}
	if err := g.book.Register(order); err != nil {
		return "", err
	}
	g.meta[order.ID] = Meta{PositionID: pos.ID, Role: RoleEntry}
	return order.ID, nil
}

// SubmitBracket registers the resting stop and take-profit legs for a
// freshly-Holding position, derived from its risk parameters.
func (g *Generator) SubmitBracket(pos position.Position) error {
	exitSide := oppositeSide(pos.Side)
	qty := pos.EntryTargetQty

	stopOrder := &core.Order{
		ID:       uuid.NewString(),
		Symbol:   pos.Symbol,
		Side:     exitSide,
		Kind:     core.Stop(pos.Risk.StopPrice),
		Quantity: qty,
		TIF:      core.GTC,
	}
	if err := g.book.Register(stopOrder); err != nil {
		return err
	}
	tpOrder := &core.Order{
		ID:       uuid.NewString(),
		Symbol:   pos.Symbol,
		Side:     exitSide,
		Kind:     core.Limit(pos.Risk.TakeProfitPrice),
		Quantity: qty,
		TIF:      core.GTC,
	}
	if err := g.book.Register(tpOrder); err != nil {
		_ = g.book.Cancel(stopOrder.ID)
		return err
	}

	g.meta[stopOrder.ID] = Meta{PositionID: pos.ID, Role: RoleExitStop}
	g.meta[tpOrder.ID] = Meta{PositionID: pos.ID, Role: RoleExitTakeProfit}
	g.brackets[pos.ID] = bracketPair{stopOrderID: stopOrder.ID, tpOrderID: tpOrder.ID}
	return nil
}

// SubmitSignalExit registers a strategy-requested exit order for pos,
// outside of its bracket. remainingQty is the position's still-open
// quantity (EntryTargetQty minus any prior partial exit fill).
func (g *Generator) SubmitSignalExit(pos position.Position, intent strategy.Intent, remainingQty int) (string, error) {
	kind := core.Market()
	if intent.ExitPlan.Limit != 0 {
		kind = core.Limit(intent.ExitPlan.Limit)
	}
	order := &core.Order{
		ID:       uuid.NewString(),
		Symbol:   pos.Symbol,
		Side:     oppositeSide(pos.Side),
		Kind:     kind,
		Quantity: remainingQty,
		TIF:      core.Day,
	}
	if err := g.book.Register(order); err != nil {
		return "", err
	}
	g.meta[order.ID] = Meta{PositionID: pos.ID, Role: RoleExitSignal}
	return order.ID, nil
}

// BracketSiblingToCancel returns the other leg of orderID's OCO bracket, if
// any, so the driver can cancel it once orderID fills.
func (g *Generator) BracketSiblingToCancel(positionID, filledOrderID string) (string, bool) {
	pair, ok := g.brackets[positionID]
	if !ok {
		return "", false
	}
	switch filledOrderID {
	case pair.stopOrderID:
		return pair.tpOrderID, true
	case pair.tpOrderID:
		return pair.stopOrderID, true
	default:
		return "", false
	}
}

// CancelBracket cancels both legs of a position's resting bracket, if they
// still exist and are active. Errors from orders that already left the
// book (filled, already cancelled) are ignored.
func (g *Generator) CancelBracket(positionID string) {
	pair, ok := g.brackets[positionID]
	if !ok {
		return
	}
	_ = g.book.Cancel(pair.stopOrderID)
	_ = g.book.Cancel(pair.tpOrderID)
	delete(g.brackets, positionID)
}

// Forget drops all bookkeeping for a position once it is Closed.
func (g *Generator) Forget(positionID string) {
	for orderID, m := range g.meta {
		if m.PositionID == positionID {
			delete(g.meta, orderID)
		}
	}
	delete(g.brackets, positionID)
}
