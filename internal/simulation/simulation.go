// Package simulation drives the day-by-day backtest loop, wiring the price
// archive, indicator cache, strategy, order generator, order book,
// execution engine, portfolio and metrics accumulators together in the
// fixed sequence spec §4.7 describes.
package simulation

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mdreiback/backsim/internal/archive"
	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/engine"
	"github.com/mdreiback/backsim/internal/indcache"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/metrics"
	"github.com/mdreiback/backsim/internal/ordergen"
	"github.com/mdreiback/backsim/internal/orderbook"
	"github.com/mdreiback/backsim/internal/pathgen"
	"github.com/mdreiback/backsim/internal/portfolio"
	"github.com/mdreiback/backsim/internal/position"
	"github.com/mdreiback/backsim/internal/strategy"
)

// Config parameterizes one simulation run.
type Config struct {
	Symbols          []core.Symbol
	Days             []time.Time // the trading calendar to step through, ascending
	InitialCash      float64
	AccountingMethod portfolio.Method
	StrictCash       bool
	Commission       engine.CommissionConfig
	PathConfig       pathgen.Config
	IndicatorSpecs   []indicator.Spec
	// FinalizeCadences lists the cadences whose provisional cache entries
	// should be evicted once their period concludes. The driver calls
	// FinalizePeriod whenever Days crosses into a new ISO week or month.
	FinalizeCadences []cadence.Cadence
}

// DayReport is one day's output, used for report rendering.
type DayReport struct {
	Date   time.Time
	Trades []core.Trade
	Equity float64
}

// RunResult is the full output of a simulation run.
type RunResult struct {
	Days        []DayReport
	Metrics     []metrics.Result
	FinalEquity float64
}

// Driver owns every layer's instance for one run and steps them forward in
// lockstep.
type Driver struct {
	cfg      Config
	archive  *archive.Archive
	indCache *indcache.Cache
	book     *orderbook.Book
	eng      *engine.Engine
	folio    *portfolio.Portfolio
	gen      *ordergen.Generator
	strat    strategy.Strategy
	accum    []metrics.Accumulator
	logger   *log.Logger

	positions   map[string]*position.Position
	bySymbol    map[core.Symbol]string // symbol -> position id, while not Closed
	pendingRisk map[string]position.RiskParams

	// lastIndicators and everEntered give Strategy.Decide a pure view of
	// run history (spec §4.2's referential-transparency requirement)
	// without strategies keeping their own mutable state.
	lastIndicators map[core.Symbol]map[indicator.Spec]strategy.IndicatorValue
	everEntered    map[core.Symbol]bool

	lastWeekKey  string
	lastMonthKey string
}

// New creates a driver for one run. a supplies price history; strat is the
// decision-making strategy under test.
func New(a *archive.Archive, strat strategy.Strategy, cfg Config, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	book := orderbook.New()
	return &Driver{
		cfg:            cfg,
		archive:        a,
		indCache:       indcache.New(a),
		book:           book,
		eng:            engine.New(cfg.Commission, cfg.PathConfig),
		folio:          portfolio.New(cfg.InitialCash, cfg.AccountingMethod, cfg.StrictCash),
		gen:            ordergen.New(book),
		strat:          strat,
		accum:          metrics.Set(),
		logger:         logger,
		positions:      make(map[string]*position.Position),
		bySymbol:       make(map[core.Symbol]string),
		pendingRisk:    make(map[string]position.RiskParams),
		lastIndicators: make(map[core.Symbol]map[indicator.Spec]strategy.IndicatorValue),
		everEntered:    make(map[core.Symbol]bool),
	}
}

// Run steps through every configured day in order, stopping early (without
// error) if ctx is cancelled at a day boundary, per spec §4.7's
// day-boundary-only cooperative cancellation.
func (d *Driver) Run(ctx context.Context) (RunResult, error) {
	for _, acc := range d.accum {
		acc.Init(d.cfg.InitialCash)
	}

	var result RunResult
	for _, date := range d.cfg.Days {
		if err := ctx.Err(); err != nil {
			break
		}
		report, err := d.runDay(ctx, date)
		if err != nil {
			return result, err
		}
		result.Days = append(result.Days, report)
		for _, acc := range d.accum {
			acc.Update(metrics.DailySnapshot{Date: date, Equity: report.Equity, Trades: report.Trades})
		}
		result.FinalEquity = report.Equity
	}

	for _, acc := range d.accum {
		result.Metrics = append(result.Metrics, acc.Finalize())
	}
	return result, nil
}

func (d *Driver) runDay(ctx context.Context, date time.Time) (DayReport, error) {
	bars := make(map[core.Symbol]core.Bar, len(d.cfg.Symbols))
	for _, sym := range d.cfg.Symbols {
		daily, err := d.archive.GetPrices(ctx, sym, date, date)
		if err != nil {
			return DayReport{}, err
		}
		if len(daily) == 0 {
			continue
		}
		bars[sym] = daily[0]
	}

	barSlice := make([]core.Bar, 0, len(bars))
	for _, b := range bars {
		barSlice = append(barSlice, b)
	}
	if err := d.eng.UpdateMarket(barSlice); err != nil {
		return DayReport{}, err
	}

	d.finalizeConcludedPeriods(date)

	for sym, bar := range bars {
		indicators := d.readIndicators(ctx, sym, date)
		var posPtr *position.Position
		if id, ok := d.bySymbol[sym]; ok {
			posPtr = d.positions[id]
		}
		intents, err := d.strat.Decide(ctx, strategy.Input{
			Symbol: sym, Date: date, Bar: bar, Indicators: indicators,
			PriorIndicators: d.lastIndicators[sym], Position: posPtr, HasEntered: d.everEntered[sym],
		})
		if err != nil {
			return DayReport{}, err
		}
		for _, intent := range intents {
			if err := d.applyIntent(sym, intent); err != nil {
				return DayReport{}, err
			}
		}
		d.lastIndicators[sym] = indicators
	}

	trades, err := d.eng.ProcessOrders(ctx, d.book)
	if err != nil {
		return DayReport{}, err
	}
	for _, t := range trades {
		if err := d.routeFill(t); err != nil {
			return DayReport{}, err
		}
	}

	cancelled := d.book.CancelDayOrders()
	for _, oid := range cancelled {
		d.handleExpired(date, oid)
	}

	if _, err := d.folio.ApplyTrades(trades); err != nil {
		return DayReport{}, err
	}

	equity := d.folio.MarketValue(func(sym core.Symbol) (float64, bool) {
		b, ok := bars[sym]
		return b.Close, ok
	})

	return DayReport{Date: date, Trades: trades, Equity: equity}, nil
}

func (d *Driver) readIndicators(ctx context.Context, sym core.Symbol, date time.Time) map[indicator.Spec]strategy.IndicatorValue {
	out := make(map[indicator.Spec]strategy.IndicatorValue, len(d.cfg.IndicatorSpecs))
	for _, spec := range d.cfg.IndicatorSpecs {
		value, provisional, err := d.indCache.Get(ctx, sym, spec, date)
		if err != nil {
			continue
		}
		out[spec] = strategy.IndicatorValue{Value: value, Provisional: provisional}
	}
	return out
}

// finalizeConcludedPeriods evicts provisional cache entries for any
// configured cadence whose ISO week or calendar month just rolled over.
func (d *Driver) finalizeConcludedPeriods(date time.Time) {
	year, week := date.ISOWeek()
	weekKey := strconv.Itoa(year) + "-W" + strconv.Itoa(week)
	monthKey := date.Format("2006-01")

	for _, cad := range d.cfg.FinalizeCadences {
		switch cad {
		case cadence.Weekly:
			if d.lastWeekKey != "" && d.lastWeekKey != weekKey {
				d.indCache.FinalizePeriod(cadence.Weekly)
			}
		case cadence.Monthly:
			if d.lastMonthKey != "" && d.lastMonthKey != monthKey {
				d.indCache.FinalizePeriod(cadence.Monthly)
			}
		}
	}
	d.lastWeekKey = weekKey
	d.lastMonthKey = monthKey
}

func (d *Driver) applyIntent(sym core.Symbol, intent strategy.Intent) error {
	switch intent.Tag {
	case strategy.IntentEnter:
		if _, exists := d.bySymbol[sym]; exists {
			return nil
		}
		id := uuid.NewString()
		pos := position.NewEntering(id, sym, intent.Side, intent.Quantity, intent.Reason)
		d.positions[id] = &pos
		d.bySymbol[sym] = id
		d.pendingRisk[id] = intent.Risk
		d.everEntered[sym] = true
		_, err := d.gen.SubmitEntry(pos, intent)
		return err

	case strategy.IntentExit:
		id, ok := d.bySymbol[sym]
		if !ok {
			return nil
		}
		pos := d.positions[id]
		if pos.Tag != position.Holding {
			return nil
		}
		updated, err := position.Apply(*pos, position.Transition{
			Tag: position.TTriggerExit, ExitReason: intent.ExitReason, Plan: intent.ExitPlan,
		})
		if err != nil {
			return err
		}
		d.gen.CancelBracket(id)
		d.positions[id] = &updated
		_, err = d.gen.SubmitSignalExit(updated, intent, updated.ExitTargetQty)
		return err

	case strategy.IntentUpdateRisk:
		id, ok := d.bySymbol[sym]
		if !ok {
			return nil
		}
		pos := d.positions[id]
		if pos.Tag != position.Holding {
			return nil
		}
		updated, err := position.Apply(*pos, position.Transition{Tag: position.TUpdateRiskParams, NewRiskParams: intent.NewRisk})
		if err != nil {
			return err
		}
		d.gen.CancelBracket(id)
		d.positions[id] = &updated
		return d.gen.SubmitBracket(updated)

	default:
		return nil
	}
}

func (d *Driver) routeFill(t core.Trade) error {
	meta, ok := d.gen.MetaFor(t.OrderID)
	if !ok {
		return nil
	}
	pos := d.positions[meta.PositionID]
	if pos == nil {
		return nil
	}

	switch meta.Role {
	case ordergen.RoleEntry:
		updated, err := position.Apply(*pos, position.Transition{Tag: position.TEntryFill, Quantity: t.Quantity, Price: t.Price, Date: t.Timestamp})
		if err != nil {
			return err
		}
		if updated.EntryFilledQty == updated.EntryTargetQty {
			order, err := d.book.Get(t.OrderID)
			if err != nil {
				return err
			}
			risk := d.pendingRisk[meta.PositionID]
			updated, err = position.Apply(updated, position.Transition{
				Tag: position.TEntryComplete, AvgEntryPrice: order.AvgFillPrice, Date: t.Timestamp, RiskParams: risk,
			})
			if err != nil {
				return err
			}
			delete(d.pendingRisk, meta.PositionID)
			if err := d.gen.SubmitBracket(updated); err != nil {
				return err
			}
		}
		d.positions[meta.PositionID] = &updated
		return nil

	case ordergen.RoleExitStop, ordergen.RoleExitTakeProfit:
		working := *pos
		if working.Tag == position.Holding {
			reason := "stop_loss"
			if meta.Role == ordergen.RoleExitTakeProfit {
				reason = "take_profit"
			}
			var err error
			working, err = position.Apply(working, position.Transition{Tag: position.TTriggerExit, ExitReason: reason})
			if err != nil {
				return err
			}
			if sibling, ok := d.gen.BracketSiblingToCancel(meta.PositionID, t.OrderID); ok {
				_ = d.book.Cancel(sibling)
				d.eng.ForgetOrder(sibling)
			}
		}
		return d.completeExitFill(meta.PositionID, &working, t)

	case ordergen.RoleExitSignal:
		working := *pos
		return d.completeExitFill(meta.PositionID, &working, t)

	default:
		return nil
	}
}

func (d *Driver) completeExitFill(positionID string, working *position.Position, t core.Trade) error {
	updated, err := position.Apply(*working, position.Transition{Tag: position.TExitFill, Quantity: t.Quantity, Price: t.Price, Date: t.Timestamp})
	if err != nil {
		return err
	}
	if updated.ExitFilledQty == updated.ExitTargetQty {
		order, err := d.book.Get(t.OrderID)
		if err != nil {
			return err
		}
		updated, err = position.Apply(updated, position.Transition{Tag: position.TExitComplete, AvgExitPrice: order.AvgFillPrice, Date: t.Timestamp})
		if err != nil {
			return err
		}
		d.gen.Forget(positionID)
		delete(d.bySymbol, updated.Symbol)
	}
	d.positions[positionID] = &updated
	return nil
}

// handleExpired reconciles a Day-TIF order the book just cancelled
// unfilled (or partially filled) at end of day.
func (d *Driver) handleExpired(date time.Time, orderID string) {
	defer d.eng.ForgetOrder(orderID)

	meta, ok := d.gen.MetaFor(orderID)
	if !ok {
		return
	}
	pos := d.positions[meta.PositionID]
	if pos == nil {
		return
	}

	switch meta.Role {
	case ordergen.RoleEntry:
		if pos.EntryFilledQty == 0 {
			updated, err := position.Apply(*pos, position.Transition{Tag: position.TCancelEntry, Reason: "day_order_expired"})
			if err != nil {
				return
			}
			d.positions[meta.PositionID] = &updated
			delete(d.bySymbol, pos.Symbol)
			delete(d.pendingRisk, meta.PositionID)
			return
		}
		reduced, err := position.Apply(*pos, position.Transition{Tag: position.TReduceEntryTarget, NewTargetQty: pos.EntryFilledQty})
		if err != nil {
			return
		}
		order, err := d.book.Get(orderID)
		if err != nil {
			return
		}
		completed, err := position.Apply(reduced, position.Transition{
			Tag: position.TEntryComplete, AvgEntryPrice: order.AvgFillPrice, Date: date, RiskParams: d.pendingRisk[meta.PositionID],
		})
		if err != nil {
			return
		}
		delete(d.pendingRisk, meta.PositionID)
		d.positions[meta.PositionID] = &completed
		_ = d.gen.SubmitBracket(completed)

	case ordergen.RoleExitSignal:
		if pos.ExitFilledQty == 0 {
			remaining := pos.ExitTargetQty - pos.ExitFilledQty
			_, _ = d.gen.SubmitSignalExit(*pos, strategy.Intent{ExitPlan: pos.ExitPlan}, remaining)
			return
		}
		reduced, err := position.Apply(*pos, position.Transition{Tag: position.TReduceExitTarget, NewTargetQty: pos.ExitFilledQty})
		if err != nil {
			return
		}
		order, err := d.book.Get(orderID)
		if err != nil {
			return
		}
		completed, err := position.Apply(reduced, position.Transition{Tag: position.TExitComplete, AvgExitPrice: order.AvgFillPrice, Date: date})
		if err != nil {
			return
		}
		d.positions[meta.PositionID] = &completed
		d.gen.Forget(meta.PositionID)
		delete(d.bySymbol, pos.Symbol)
	}
}

// OpenPositions returns every position not yet Closed, keyed by symbol.
func (d *Driver) OpenPositions() map[core.Symbol]position.Position {
	out := make(map[core.Symbol]position.Position, len(d.bySymbol))
	for sym, id := range d.bySymbol {
		out[sym] = *d.positions[id]
	}
	return out
}

// Portfolio exposes the run's portfolio for external inspection (reporting,
// invariant checks).
func (d *Driver) Portfolio() *portfolio.Portfolio { return d.folio }
