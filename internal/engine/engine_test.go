package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/orderbook"
	"github.com/mdreiback/backsim/internal/pathgen"
)

func testBar() core.Bar {
	return core.Bar{
		Symbol: "AAPL",
		Date:   time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		Open:   100, High: 110, Low: 90, Close: 105, Volume: 1000,
	}
}

func testCommission() CommissionConfig {
	return CommissionConfig{PerShare: 0.005, Minimum: 1.0}
}

func testPathConfig() pathgen.Config {
	seed := int64(42)
	return pathgen.Config{TotalPoints: 50, Profile: pathgen.UShaped, Seed: &seed, DegreesOfFreedom: 4}
}

func TestCommissionCompute(t *testing.T) {
	c := CommissionConfig{PerShare: 0.01, Minimum: 1.0}
	assert.Equal(t, 1.0, c.Compute(10))  // below minimum
	assert.Equal(t, 5.0, c.Compute(500)) // above minimum
}

func TestMarketOrderFillsAtSecondPathPoint(t *testing.T) {
	eng := New(testCommission(), testPathConfig())
	bar := testBar()
	require.NoError(t, eng.UpdateMarket([]core.Bar{bar}))

	book := orderbook.New()
	order := &core.Order{ID: "o1", Symbol: bar.Symbol, Side: core.Buy, Kind: core.Market(), Quantity: 10, TIF: core.Day}
	require.NoError(t, book.Register(order))

	trades, err := eng.ProcessOrders(context.Background(), book)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 10, trades[0].Quantity)
	assert.Equal(t, "o1", trades[0].OrderID)
	assert.Equal(t, eng.paths[bar.Symbol][1], trades[0].Price)
	assert.Greater(t, trades[0].Commission, 0.0)

	o, err := book.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFilled, o.Status.Tag)
}

func TestLimitOrderDoesNotFillWhenUnreachable(t *testing.T) {
	eng := New(testCommission(), testPathConfig())
	bar := testBar()
	require.NoError(t, eng.UpdateMarket([]core.Bar{bar}))

	book := orderbook.New()
	// Buy limit far below the day's low: can never fill.
	order := &core.Order{ID: "o1", Symbol: bar.Symbol, Side: core.Buy, Kind: core.Limit(1), Quantity: 10, TIF: core.Day}
	require.NoError(t, book.Register(order))

	trades, err := eng.ProcessOrders(context.Background(), book)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestStopOrderTriggersAndFills(t *testing.T) {
	eng := New(testCommission(), testPathConfig())
	bar := testBar()
	require.NoError(t, eng.UpdateMarket([]core.Bar{bar}))

	book := orderbook.New()
	// Sell stop comfortably inside the day's range: should trigger and fill.
	order := &core.Order{ID: "o1", Symbol: bar.Symbol, Side: core.Sell, Kind: core.Stop(95), Quantity: 5, TIF: core.Day}
	require.NoError(t, book.Register(order))

	trades, err := eng.ProcessOrders(context.Background(), book)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.LessOrEqual(t, trades[0].Price, 95.0)
}

func TestForgetOrderClearsTriggerState(t *testing.T) {
	eng := New(testCommission(), testPathConfig())
	eng.triggered["o1"] = true
	eng.ForgetOrder("o1")
	assert.False(t, eng.triggered["o1"])
}

func TestStopLimitHonorsSideOrdering(t *testing.T) {
	err := core.StopLimit(10, 5).Validate(core.Buy)
	assert.Error(t, err) // buy requires stop <= limit
}
