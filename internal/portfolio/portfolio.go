// Package portfolio implements lot-tracked holdings, cash, and per-trade
// realized P&L under a selectable cost-basis policy (spec §4.4).
package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdreiback/backsim/internal/core"
)

// Method selects the cost-basis accounting policy.
type Method string

const (
	// FIFO consumes the oldest lot first on any reduction.
	FIFO Method = "fifo"
	// WeightedAverage keeps one continually re-averaged lot per symbol.
	WeightedAverage Method = "weighted_average"
)

// Lot is one acquisition of a symbol. A positive Quantity is a long lot; a
// negative Quantity is a short lot. A stored lot is never zero quantity.
type Lot struct {
	ID              string
	Quantity        int
	CostBasisTotal  float64
	AcquisitionDate time.Time
}

// AvgCost returns the lot's per-share cost (always positive).
func (l Lot) AvgCost() float64 {
	return l.CostBasisTotal / math.Abs(float64(l.Quantity))
}

// Portfolio is the authoritative owner of holdings, cash, and trade
// history for one simulation run.
type Portfolio struct {
	mu          sync.RWMutex
	initialCash float64
	cash        float64
	method      Method
	strictCash  bool
	holdings    map[core.Symbol][]Lot
	trades      []core.Trade
	realizedPnL float64
}

// New creates an empty portfolio with the given starting cash and
// accounting method. strictCash, when true, causes ApplyTrades to reject a
// batch that would drive cash negative.
func New(initialCash float64, method Method, strictCash bool) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		method:      method,
		strictCash:  strictCash,
		holdings:    make(map[core.Symbol][]Lot),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// InitialCash returns the immutable starting-cash snapshot.
func (p *Portfolio) InitialCash() float64 { return p.initialCash }

// RealizedPnL returns the running total of realized profit and loss.
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// NetPosition returns the signed net share count held for symbol.
func (p *Portfolio) NetPosition(symbol core.Symbol) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sumQty(p.holdings[symbol])
}

// Lots returns a copy of the lots held for symbol, in acquisition order.
func (p *Portfolio) Lots(symbol core.Symbol) []Lot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	src := p.holdings[symbol]
	out := make([]Lot, len(src))
	copy(out, src)
	return out
}

// MarketValue returns cash plus the mark-to-market value of every holding,
// using priceOf to look up each symbol's current price.
func (p *Portfolio) MarketValue(priceOf func(core.Symbol) (float64, bool)) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := p.cash
	for symbol, lots := range p.holdings {
		price, ok := priceOf(symbol)
		if !ok {
			continue
		}
		total += float64(sumQty(lots)) * price
	}
	return total
}

// Trades returns every trade ever applied, in application order.
func (p *Portfolio) Trades() []core.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// snapshot is a mutable working copy of the portfolio's ledger state, used
// internally so ApplyTrades can be all-or-nothing.
type snapshot struct {
	cash        float64
	holdings    map[core.Symbol][]Lot
	realizedPnL float64
}

func (p *Portfolio) newSnapshot() *snapshot {
	holdings := make(map[core.Symbol][]Lot, len(p.holdings))
	for sym, lots := range p.holdings {
		cp := make([]Lot, len(lots))
		copy(cp, lots)
		holdings[sym] = cp
	}
	return &snapshot{cash: p.cash, holdings: holdings, realizedPnL: p.realizedPnL}
}

// ApplyTrades processes trades in order against a working copy of the
// ledger and, only if every trade succeeds, commits the result atomically.
// Any failure aborts the whole batch and leaves the portfolio unchanged
// (spec §4.4, §7).
func (p *Portfolio) ApplyTrades(trades []core.Trade) ([]core.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.newSnapshot()
	out := make([]core.Trade, len(trades))

	for i, t := range trades {
		if t.Quantity <= 0 {
			return nil, core.NewStatus(core.InvalidArgument, "trade %s: quantity must be positive", t.ID)
		}
		if t.Price <= 0 {
			return nil, core.NewStatus(core.InvalidArgument, "trade %s: price must be positive", t.ID)
		}
		if t.Commission < 0 {
			return nil, core.NewStatus(core.InvalidArgument, "trade %s: commission must be non-negative", t.ID)
		}
		applied, err := snap.apply(t, p.method)
		if err != nil {
			return nil, err
		}
		if p.strictCash && snap.cash < 0 {
			return nil, core.NewStatus(core.FailedPrecondition,
				"trade %s: insufficient cash under strict mode (would result in %.2f)", t.ID, snap.cash)
		}
		out[i] = applied
	}

	p.cash = snap.cash
	p.holdings = snap.holdings
	p.realizedPnL = snap.realizedPnL
	p.trades = append(p.trades, out...)
	return out, nil
}

func sumQty(lots []Lot) int {
	sum := 0
	for _, l := range lots {
		sum += l.Quantity
	}
	return sum
}

// apply books one trade against the snapshot, returning the trade stamped
// with its realized P&L.
func (s *snapshot) apply(t core.Trade, method Method) (core.Trade, error) {
	lots := s.holdings[t.Symbol]
	net := sumQty(lots)
	var realized float64

	switch t.Side {
	case core.Buy:
		if net >= 0 {
			lots = addLot(lots, t.Quantity, float64(t.Quantity)*t.Price+t.Commission, t.Timestamp, method, true)
		} else {
			shortMag := -net
			take := minInt(t.Quantity, shortMag)
			remaining, pnl := consume(lots, take, t.Price, t.Commission, t.Quantity, false)
			realized = pnl
			lots = remaining
			if leftover := t.Quantity - take; leftover > 0 {
				lc := t.Commission * float64(leftover) / float64(t.Quantity)
				lots = addLot(lots, leftover, float64(leftover)*t.Price+lc, t.Timestamp, method, true)
			}
		}
		s.cash -= float64(t.Quantity)*t.Price + t.Commission
	case core.Sell:
		if net <= 0 {
			lots = addLot(lots, t.Quantity, float64(t.Quantity)*t.Price-t.Commission, t.Timestamp, method, false)
		} else {
			take := minInt(t.Quantity, net)
			remaining, pnl := consume(lots, take, t.Price, t.Commission, t.Quantity, true)
			realized = pnl
			lots = remaining
			if leftover := t.Quantity - take; leftover > 0 {
				lc := t.Commission * float64(leftover) / float64(t.Quantity)
				lots = addLot(lots, leftover, float64(leftover)*t.Price-lc, t.Timestamp, method, false)
			}
		}
		s.cash += float64(t.Quantity)*t.Price - t.Commission
	default:
		return t, core.NewStatus(core.InvalidArgument, "trade %s: invalid side %q", t.ID, t.Side)
	}

	if len(lots) == 0 {
		delete(s.holdings, t.Symbol)
	} else {
		s.holdings[t.Symbol] = lots
	}

	s.realizedPnL += realized
	t.RealizedPnL = realized
	return t, nil
}

// addLot opens a new lot, or — under WeightedAverage with an existing lot —
// merges into the symbol's single re-averaged lot.
func addLot(lots []Lot, qty int, costBasis float64, date time.Time, method Method, isLong bool) []Lot {
	if method == WeightedAverage && len(lots) > 0 {
		lot := lots[0]
		mag := intAbs(lot.Quantity) + qty
		newCost := lot.CostBasisTotal + costBasis
		if isLong {
			lot.Quantity = mag
		} else {
			lot.Quantity = -mag
		}
		lot.CostBasisTotal = newCost
		lots[0] = lot
		return lots
	}
	sign := 1
	if !isLong {
		sign = -1
	}
	return append(lots, Lot{
		ID:              uuid.NewString(),
		Quantity:        sign * qty,
		CostBasisTotal:  costBasis,
		AcquisitionDate: date,
	})
}

// consume reduces qty worth of magnitude from lots in order (FIFO's
// acquisition order, or WeightedAverage's single lot), returning the
// remaining lots and the total realized P&L, with commission pro-rated by
// each consumed lot's share of the trade's total quantity.
func consume(lots []Lot, qty int, tradePrice, commission float64, tradeQty int, isLongLots bool) ([]Lot, float64) {
	var out []Lot
	consumed := 0
	realized := 0.0
	i := 0
	for i < len(lots) && consumed < qty {
		lot := lots[i]
		mag := intAbs(lot.Quantity)
		take := minInt(qty-consumed, mag)
		cost := lot.AvgCost()
		var pnlPerUnit float64
		if isLongLots {
			pnlPerUnit = tradePrice - cost
		} else {
			pnlPerUnit = cost - tradePrice
		}
		realized += float64(take)*pnlPerUnit - commission*float64(take)/float64(tradeQty)
		consumed += take
		if remainingMag := mag - take; remainingMag > 0 {
			newLot := lot
			if isLongLots {
				newLot.Quantity = remainingMag
			} else {
				newLot.Quantity = -remainingMag
			}
			newLot.CostBasisTotal = cost * float64(remainingMag)
			out = append(out, newLot)
		}
		i++
	}
	out = append(out, lots[i:]...)
	return out, realized
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func intAbs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// VerifyInvariants checks the cash-lot-P&L conservation invariant from spec
// §8: cash + sum(lot acquisition cost) - realized_pnl_total == initial_cash.
// Acquisition cost for a long lot is its cost basis; for a short lot the
// acquisition proceeds are the negative of its cost basis (a short sale
// credits cash by that amount up front).
func (p *Portfolio) VerifyInvariants() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sumAcquisition := 0.0
	for _, lots := range p.holdings {
		for _, l := range lots {
			if l.Quantity == 0 {
				return core.NewStatus(core.Internal, "zero-quantity lot %s stored for a symbol", l.ID)
			}
			if l.Quantity > 0 {
				sumAcquisition += l.CostBasisTotal
			} else {
				sumAcquisition -= l.CostBasisTotal
			}
		}
	}

	lhs := p.cash + sumAcquisition - p.realizedPnL
	const epsilon = 1e-6
	if math.Abs(lhs-p.initialCash) > epsilon {
		return core.NewStatus(core.Internal,
			fmt.Sprintf("cash-lot-pnl conservation violated: cash(%.6f) + lots(%.6f) - pnl(%.6f) = %.6f != initial(%.6f)",
				p.cash, sumAcquisition, p.realizedPnL, lhs, p.initialCash))
	}
	return nil
}
