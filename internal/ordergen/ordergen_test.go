package ordergen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/orderbook"
	"github.com/mdreiback/backsim/internal/position"
	"github.com/mdreiback/backsim/internal/strategy"
)

func TestSubmitEntry_RecordsMeta(t *testing.T) {
	book := orderbook.New()
	g := New(book)
	pos := position.NewEntering("p1", "AAPL", core.Buy, 10, "test")

	orderID, err := g.SubmitEntry(pos, strategy.Intent{Side: core.Buy, Quantity: 10, Kind: core.Market()})
	require.NoError(t, err)

	meta, ok := g.MetaFor(orderID)
	require.True(t, ok)
	assert.Equal(t, "p1", meta.PositionID)
	assert.Equal(t, RoleEntry, meta.Role)
}

func TestSubmitBracket_RegistersOCOPairAndReportsSiblingOnFill(t *testing.T) {
	book := orderbook.New()
	g := New(book)
	pos := position.Position{
		ID: "p1", Symbol: "AAPL", Side: core.Buy, Tag: position.Holding,
		EntryTargetQty: 10, Risk: position.RiskParams{StopPrice: 90, TakeProfitPrice: 110},
	}
	require.NoError(t, g.SubmitBracket(pos))

	active := book.Active()
	require.Len(t, active, 2)
	for _, o := range active {
		assert.Equal(t, core.Sell, o.Side) // exit side opposite of a long entry
		assert.Equal(t, core.GTC, o.TIF)
	}

	sibling, ok := g.BracketSiblingToCancel("p1", active[0].ID)
	require.True(t, ok)
	assert.Equal(t, active[1].ID, sibling)
}

func TestCancelBracket_CancelsBothLegs(t *testing.T) {
	book := orderbook.New()
	g := New(book)
	pos := position.Position{
		ID: "p1", Symbol: "AAPL", Side: core.Buy, Tag: position.Holding,
		EntryTargetQty: 10, Risk: position.RiskParams{StopPrice: 90, TakeProfitPrice: 110},
	}
	require.NoError(t, g.SubmitBracket(pos))
	g.CancelBracket("p1")

	assert.Empty(t, book.Active())
	_, ok := g.BracketSiblingToCancel("p1", "anything")
	assert.False(t, ok)
}

func TestSubmitSignalExit_UsesLimitWhenExitPlanRequestsOne(t *testing.T) {
	book := orderbook.New()
	g := New(book)
	pos := position.Position{ID: "p1", Symbol: "AAPL", Side: core.Buy}

	orderID, err := g.SubmitSignalExit(pos, strategy.Intent{ExitPlan: position.ExitPlan{Limit: 105}}, 10)
	require.NoError(t, err)

	order, err := book.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, core.KindLimit, order.Kind.Tag)
	assert.Equal(t, 105.0, order.Kind.LimitPrice)

	meta, ok := g.MetaFor(orderID)
	require.True(t, ok)
	assert.Equal(t, RoleExitSignal, meta.Role)
}
