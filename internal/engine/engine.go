// Package engine resolves resting orders against a reconstructed intraday
// path, producing trades for the portfolio to book (spec §4.6).
package engine

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/orderbook"
	"github.com/mdreiback/backsim/internal/pathgen"
)

// CommissionConfig sets the per-share and minimum commission charged on a
// fill (spec §4.6).
type CommissionConfig struct {
	PerShare float64
	Minimum  float64
}

// Compute returns the commission owed for a fill of the given quantity.
func (c CommissionConfig) Compute(qty int) float64 {
	return math.Max(float64(qty)*c.PerShare, c.Minimum)
}

// Engine holds one trading day's generated paths and resolves the order
// book's active orders against them.
type Engine struct {
	mu         sync.Mutex
	commission CommissionConfig
	pathCfg    pathgen.Config
	bars       map[core.Symbol]core.Bar
	paths      map[core.Symbol][]float64
	// triggered tracks stop and stop-limit orders whose stop price has
	// already traded on a prior day within the same order's lifetime, so a
	// still-pending stop carries its trigger forward (spec §4.6, step 3).
	triggered map[string]bool
}

// New creates an execution engine with the given commission schedule and
// path-reconstruction configuration.
func New(commission CommissionConfig, pathCfg pathgen.Config) *Engine {
	return &Engine{
		commission: commission,
		pathCfg:    pathCfg,
		bars:       make(map[core.Symbol]core.Bar),
		paths:      make(map[core.Symbol][]float64),
		triggered:  make(map[string]bool),
	}
}

// UpdateMarket regenerates the intraday path for every symbol's bar, ahead
// of the day's ProcessOrders sweep.
func (e *Engine) UpdateMarket(bars []core.Bar) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bars = make(map[core.Symbol]core.Bar, len(bars))
	e.paths = make(map[core.Symbol][]float64, len(bars))
	for _, bar := range bars {
		path, err := pathgen.Generate(bar, e.pathCfg)
		if err != nil {
			return err
		}
		e.bars[bar.Symbol] = bar
		e.paths[bar.Symbol] = path
	}
	return nil
}

// ForgetOrder drops any carried-forward stop-trigger state for an order
// that has left the book (filled, cancelled, or rejected).
func (e *Engine) ForgetOrder(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.triggered, orderID)
}

// ProcessOrders sweeps every active order in book against the current
// day's paths, applying fills in insertion order and returning the trades
// produced (spec §4.6).
func (e *Engine) ProcessOrders(_ context.Context, book *orderbook.Book) ([]core.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := book.Active()
	trades := make([]core.Trade, 0, len(active))

	for _, o := range active {
		bar, ok := e.bars[o.Symbol]
		if !ok {
			continue
		}
		if !e.triggered[o.ID] && !pathgen.MightFill(bar, o.Side, o.Kind) {
			continue
		}
		path := e.paths[o.Symbol]
		price, filled := e.resolveFill(o, bar, path)
		if !filled {
			continue
		}

		qty := o.Quantity - o.FilledQty
		commission := e.commission.Compute(qty)
		trade := core.Trade{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Quantity:   qty,
			Price:      price,
			Commission: commission,
			Timestamp:  bar.Date,
		}
		if err := book.ApplyFill(o.ID, qty, price); err != nil {
			return trades, err
		}
		delete(e.triggered, o.ID)
		trades = append(trades, trade)
	}
	return trades, nil
}

// resolveFill decides whether order fills against path today and, if so,
// at what price. Market fills always happen, at the first path point after
// the open. Limit fills happen at the first path point on or better than
// the limit. Stop orders become market orders the point after the stop
// trades (or at that same point, if it is the path's last). Stop-limit
// orders apply the stop rule to trigger, then search for a limit fill from
// the next point onward.
func (e *Engine) resolveFill(o *core.Order, bar core.Bar, path []float64) (float64, bool) {
	switch o.Kind.Tag {
	case core.KindMarket:
		return marketFillPrice(path), true
	case core.KindLimit:
		return firstLimitFill(path, 1, o.Side, o.Kind.LimitPrice)
	case core.KindStop:
		return e.resolveStop(o, path)
	case core.KindStopLimit:
		return e.resolveStopLimit(o, path)
	default:
		return 0, false
	}
}

func marketFillPrice(path []float64) float64 {
	if len(path) < 2 {
		return path[len(path)-1]
	}
	return path[1]
}

func (e *Engine) resolveStop(o *core.Order, path []float64) (float64, bool) {
	if e.triggered[o.ID] {
		return marketFillPrice(path), true
	}
	triggerIdx := firstStopTrigger(path, o.Side, o.Kind.StopPrice)
	if triggerIdx < 0 {
		return 0, false
	}
	fillIdx := triggerIdx + 1
	if triggerIdx == len(path)-1 {
		fillIdx = triggerIdx
	}
	if fillIdx >= len(path) {
		e.triggered[o.ID] = true
		return 0, false
	}
	return path[fillIdx], true
}

func (e *Engine) resolveStopLimit(o *core.Order, path []float64) (float64, bool) {
	searchFrom := 1
	if !e.triggered[o.ID] {
		triggerIdx := firstStopTrigger(path, o.Side, o.Kind.StopPrice)
		if triggerIdx < 0 {
			return 0, false
		}
		e.triggered[o.ID] = true
		searchFrom = triggerIdx + 1
		if triggerIdx == len(path)-1 {
			searchFrom = triggerIdx
		}
	}
	return firstLimitFill(path, searchFrom, o.Side, o.Kind.LimitPrice)
}

// firstStopTrigger returns the first path index at or after 1 whose price
// trades through the stop, or -1 if none does.
func firstStopTrigger(path []float64, side core.Side, stopPrice float64) int {
	for i := 1; i < len(path); i++ {
		if stopTriggered(side, stopPrice, path[i]) {
			return i
		}
	}
	return -1
}

// firstLimitFill returns the first path index at or after from whose price
// satisfies the limit, or false if none does.
func firstLimitFill(path []float64, from int, side core.Side, limitPrice float64) (float64, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(path); i++ {
		if limitFillable(side, limitPrice, path[i]) {
			return path[i], true
		}
	}
	return 0, false
}

func stopTriggered(side core.Side, stopPrice, price float64) bool {
	if side == core.Buy {
		return price >= stopPrice
	}
	return price <= stopPrice
}

func limitFillable(side core.Side, limitPrice, price float64) bool {
	if side == core.Buy {
		return price <= limitPrice
	}
	return price >= limitPrice
}
