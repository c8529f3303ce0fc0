// Package orderbook is the mutable store of orders keyed by id, with status
// lifecycle management. It owns no execution logic — only bookkeeping — in
// line with spec §3's "order book owns orders uniquely by id".
package orderbook

import (
	"sync"
	"time"

	"github.com/mdreiback/backsim/internal/core"
)

// Book is the registry of orders for one simulation run.
type Book struct {
	mu          sync.Mutex
	orders      map[string]*core.Order
	insertOrder []string // insertion sequence, used for stable same-index fill tie-breaking
}

// New creates an empty order book.
func New() *Book {
	return &Book{orders: make(map[string]*core.Order)}
}

// Register adds a new order to the book. Re-registering a known id fails
// with AlreadyExists.
func (b *Book) Register(o *core.Order) error {
	if o == nil {
		return core.NewStatus(core.InvalidArgument, "register: order must not be nil")
	}
	if err := o.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.orders[o.ID]; exists {
		return core.NewStatus(core.AlreadyExists, "order %s already registered", o.ID)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Status = core.OrderStatus{Tag: core.StatusPending}
	b.orders[o.ID] = o
	b.insertOrder = append(b.insertOrder, o.ID)
	return nil
}

// SubmitOrders registers a batch of orders, returning a parallel result
// vector so partial success is observable per spec §7.
func (b *Book) SubmitOrders(orders []*core.Order) []core.Result[string] {
	results := make([]core.Result[string], len(orders))
	for i, o := range orders {
		err := b.Register(o)
		id := ""
		if o != nil {
			id = o.ID
		}
		results[i] = core.Result[string]{Value: id, Err: err}
	}
	return results
}

// Get returns the order with the given id, or a NotFound error.
func (b *Book) Get(id string) (*core.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, core.NewStatus(core.NotFound, "order %s not found", id)
	}
	return o, nil
}

// Active returns every order whose status is Pending or PartiallyFilled, in
// the book's insertion order — the order engine sweeps use to break ties.
func (b *Book) Active() []*core.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*core.Order, 0, len(b.insertOrder))
	for _, id := range b.insertOrder {
		o := b.orders[id]
		if o.Status.Active() {
			out = append(out, o)
		}
	}
	return out
}

// ApplyFill records a (possibly partial) fill against the order, updating
// its status, filled quantity and volume-weighted average fill price.
func (b *Book) ApplyFill(id string, qty int, price float64) error {
	if qty <= 0 {
		return core.NewStatus(core.InvalidArgument, "apply_fill %s: quantity must be positive", id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return core.NewStatus(core.NotFound, "order %s not found", id)
	}
	if !o.Status.Active() {
		return core.NewStatus(core.FailedPrecondition, "order %s is not active (status=%s)", id, o.Status.Tag)
	}
	remaining := o.Quantity - o.FilledQty
	if qty > remaining {
		return core.NewStatus(core.InvalidArgument, "order %s: fill quantity %d exceeds remaining %d", id, qty, remaining)
	}

	totalNotional := o.AvgFillPrice*float64(o.FilledQty) + price*float64(qty)
	o.FilledQty += qty
	o.AvgFillPrice = totalNotional / float64(o.FilledQty)
	o.UpdatedAt = time.Now().UTC()
	if o.FilledQty == o.Quantity {
		o.Status = core.OrderStatus{Tag: core.StatusFilled, FilledQuantity: o.FilledQty}
	} else {
		o.Status = core.OrderStatus{Tag: core.StatusPartiallyFilled, FilledQuantity: o.FilledQty}
	}
	return nil
}

// Cancel marks an active order Cancelled.
func (b *Book) Cancel(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return core.NewStatus(core.NotFound, "order %s not found", id)
	}
	if !o.Status.Active() {
		return core.NewStatus(core.FailedPrecondition, "order %s is not active (status=%s)", id, o.Status.Tag)
	}
	o.Status = core.OrderStatus{Tag: core.StatusCancelled, FilledQuantity: o.FilledQty}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// CancelOrders cancels a batch of orders, returning a parallel result vector.
func (b *Book) CancelOrders(ids []string) []core.Result[string] {
	results := make([]core.Result[string], len(ids))
	for i, id := range ids {
		results[i] = core.Result[string]{Value: id, Err: b.Cancel(id)}
	}
	return results
}

// Reject marks an active order Rejected with the given reason.
func (b *Book) Reject(id, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return core.NewStatus(core.NotFound, "order %s not found", id)
	}
	if !o.Status.Active() {
		return core.NewStatus(core.FailedPrecondition, "order %s is not active (status=%s)", id, o.Status.Tag)
	}
	o.Status = core.OrderStatus{Tag: core.StatusRejected, RejectionReason: reason}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// CancelDayOrders cancels every active Day-TIF order, per spec §7: "Orders
// that remain Pending at end-of-day with TIF=Day are cancelled by the
// driver without emitting an error." It returns the cancelled order ids so
// the caller can reconcile any bookkeeping keyed on them.
func (b *Book) CancelDayOrders() []string {
	var cancelled []string
	for _, o := range b.Active() {
		if o.TIF == core.Day {
			if err := b.Cancel(o.ID); err == nil {
				cancelled = append(cancelled, o.ID)
			}
		}
	}
	return cancelled
}
