package core

import (
	"fmt"
	"time"
)

// Symbol identifies a tradable equity ticker.
type Symbol string

// Side is the direction of an order or trade.
type Side string

const (
	// Buy increases a long position or reduces/flips a short one.
	Buy Side = "buy"
	// Sell decreases a long position or opens/extends a short one.
	Sell Side = "sell"
)

// TIF is the time-in-force policy for an order.
type TIF string

const (
	// Day orders are cancelled automatically at end of session if unfilled.
	Day TIF = "day"
	// GTC orders survive to the next trading day.
	GTC TIF = "gtc"
	// IOC is immediate-or-cancel. The order book and driver give it no
	// special handling: an unfilled IOC order stays active until cancelled.
	IOC TIF = "ioc"
	// FOK is fill-or-kill. Like IOC it gets no special handling: an
	// unfilled FOK order stays active until cancelled.
	FOK TIF = "fok"
)

// Bar is one OHLC(V) record for a symbol on one trading day.
//
// Invariant: Low <= min(Open,Close) <= max(Open,Close) <= High, Low > 0.
type Bar struct {
	Symbol Symbol
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the OHLC ordering and positivity invariants on the bar.
func (b Bar) Validate() error {
	if b.Low <= 0 {
		return NewStatus(InvalidArgument, "bar %s %s: low must be positive, got %v", b.Symbol, b.Date.Format("2006-01-02"), b.Low)
	}
	lo := minf(b.Open, b.Close)
	hi := maxf(b.Open, b.Close)
	if !(b.Low <= lo && lo <= hi && hi <= b.High) {
		return NewStatus(InvalidArgument,
			"bar %s %s: OHLC ordering violated (O=%v H=%v L=%v C=%v)",
			b.Symbol, b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// OrderKindTag discriminates the OrderKind sum type.
type OrderKindTag string

const (
	// KindMarket fills immediately against the first tradable path point.
	KindMarket OrderKindTag = "market"
	// KindLimit fills only at or better than a limit price.
	KindLimit OrderKindTag = "limit"
	// KindStop becomes a market order once a stop price trades.
	KindStop OrderKindTag = "stop"
	// KindStopLimit becomes a limit order once a stop price trades.
	KindStopLimit OrderKindTag = "stop_limit"
)

// OrderKind is a tagged variant carrying only the fields relevant to its tag.
type OrderKind struct {
	Tag        OrderKindTag
	LimitPrice float64 // Limit, StopLimit
	StopPrice  float64 // Stop, StopLimit
}

// Market constructs a market OrderKind.
func Market() OrderKind { return OrderKind{Tag: KindMarket} }

// Limit constructs a limit OrderKind.
func Limit(price float64) OrderKind { return OrderKind{Tag: KindLimit, LimitPrice: price} }

// Stop constructs a stop OrderKind.
func Stop(price float64) OrderKind { return OrderKind{Tag: KindStop, StopPrice: price} }

// StopLimit constructs a stop-limit OrderKind.
func StopLimit(stopPrice, limitPrice float64) OrderKind {
	return OrderKind{Tag: KindStopLimit, StopPrice: stopPrice, LimitPrice: limitPrice}
}

// Validate checks kind-specific invariants, including StopLimit's
// Buy-requires-stop<=limit / Sell-requires-stop>=limit rule. side is needed
// because the rule is direction-dependent.
func (k OrderKind) Validate(side Side) error {
	switch k.Tag {
	case KindMarket:
		return nil
	case KindLimit:
		if k.LimitPrice <= 0 {
			return NewStatus(InvalidArgument, "limit price must be positive, got %v", k.LimitPrice)
		}
	case KindStop:
		if k.StopPrice <= 0 {
			return NewStatus(InvalidArgument, "stop price must be positive, got %v", k.StopPrice)
		}
	case KindStopLimit:
		if k.StopPrice <= 0 || k.LimitPrice <= 0 {
			return NewStatus(InvalidArgument, "stop-limit prices must be positive (stop=%v limit=%v)", k.StopPrice, k.LimitPrice)
		}
		if side == Buy && k.StopPrice > k.LimitPrice {
			return NewStatus(InvalidArgument, "buy stop-limit requires stop <= limit (stop=%v limit=%v)", k.StopPrice, k.LimitPrice)
		}
		if side == Sell && k.StopPrice < k.LimitPrice {
			return NewStatus(InvalidArgument, "sell stop-limit requires stop >= limit (stop=%v limit=%v)", k.StopPrice, k.LimitPrice)
		}
	default:
		return NewStatus(InvalidArgument, "unknown order kind tag %q", k.Tag)
	}
	return nil
}

// String renders a short human-readable form, used in logs.
func (k OrderKind) String() string {
	switch k.Tag {
	case KindMarket:
		return "market"
	case KindLimit:
		return fmt.Sprintf("limit(%.4f)", k.LimitPrice)
	case KindStop:
		return fmt.Sprintf("stop(%.4f)", k.StopPrice)
	case KindStopLimit:
		return fmt.Sprintf("stop_limit(%.4f,%.4f)", k.StopPrice, k.LimitPrice)
	default:
		return string(k.Tag)
	}
}

// OrderStatusTag discriminates the OrderStatus sum type.
type OrderStatusTag string

const (
	// StatusPending is an order resting unfilled in the book.
	StatusPending OrderStatusTag = "pending"
	// StatusPartiallyFilled is an order with some, but not all, quantity filled.
	StatusPartiallyFilled OrderStatusTag = "partially_filled"
	// StatusFilled is an order whose full quantity has traded.
	StatusFilled OrderStatusTag = "filled"
	// StatusCancelled is an order removed from the book without a full fill.
	StatusCancelled OrderStatusTag = "cancelled"
	// StatusRejected is an order the book refused to accept or execute.
	StatusRejected OrderStatusTag = "rejected"
)

// OrderStatus is a tagged variant over the order status lifecycle.
type OrderStatus struct {
	Tag             OrderStatusTag
	FilledQuantity  int    // PartiallyFilled
	RejectionReason string // Rejected
}

// Active reports whether the status is Pending or PartiallyFilled.
func (s OrderStatus) Active() bool {
	return s.Tag == StatusPending || s.Tag == StatusPartiallyFilled
}

// Trade is an immutable execution record.
type Trade struct {
	ID          string
	OrderID     string
	Symbol      Symbol
	Side        Side
	Quantity    int
	Price       float64
	Commission  float64
	Timestamp   time.Time
	RealizedPnL float64
}

// Order is a resting or completed instruction to buy or sell a quantity of a
// symbol under some execution kind and time-in-force policy.
type Order struct {
	ID            string
	Symbol        Symbol
	Side          Side
	Kind          OrderKind
	Quantity      int
	TIF           TIF
	Status        OrderStatus
	FilledQty     int
	AvgFillPrice  float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks order-level invariants independent of the order book.
func (o *Order) Validate() error {
	if o.Quantity <= 0 {
		return NewStatus(InvalidArgument, "order %s: quantity must be positive, got %d", o.ID, o.Quantity)
	}
	if o.Side != Buy && o.Side != Sell {
		return NewStatus(InvalidArgument, "order %s: invalid side %q", o.ID, o.Side)
	}
	return o.Kind.Validate(o.Side)
}
