package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/core"
)

func trade(side core.Side, qty int, price, commission float64) core.Trade {
	return core.Trade{ID: "t", Symbol: "AAPL", Side: side, Quantity: qty, Price: price, Commission: commission, Timestamp: time.Now()}
}

func TestApplyTrades_BuyThenSellFIFO(t *testing.T) {
	p := New(100000, FIFO, false)

	_, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 100, 50, 1)})
	require.NoError(t, err)
	assert.Equal(t, 100, p.NetPosition("AAPL"))
	assert.InDelta(t, 100000-5001, p.Cash(), 1e-6)

	out, err := p.ApplyTrades([]core.Trade{trade(core.Sell, 100, 60, 1)})
	require.NoError(t, err)
	assert.Equal(t, 0, p.NetPosition("AAPL"))
	assert.InDelta(t, 100*(60-50)-1-1, out[0].RealizedPnL, 1e-6)
	require.NoError(t, p.VerifyInvariants())
}

func TestApplyTrades_ShortThenCover(t *testing.T) {
	p := New(25000, FIFO, false)

	_, err := p.ApplyTrades([]core.Trade{trade(core.Sell, 100, 150, 0)})
	require.NoError(t, err)
	assert.Equal(t, -100, p.NetPosition("AAPL"))
	assert.InDelta(t, 25000+15000, p.Cash(), 1e-6)

	out, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 50, 140, 0)})
	require.NoError(t, err)
	assert.Equal(t, -50, p.NetPosition("AAPL"))
	assert.InDelta(t, 50*(150-140), out[0].RealizedPnL, 1e-6)
	assert.InDelta(t, 25000+15000-50*140, p.Cash(), 1e-6)
	require.NoError(t, p.VerifyInvariants())
}

func TestApplyTrades_DirectionFlipInOneTrade(t *testing.T) {
	p := New(50000, FIFO, false)
	_, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 50, 100, 0)})
	require.NoError(t, err)

	// Sell 80: closes the 50 long, then opens a fresh 30-share short.
	out, err := p.ApplyTrades([]core.Trade{trade(core.Sell, 80, 110, 0)})
	require.NoError(t, err)
	assert.Equal(t, -30, p.NetPosition("AAPL"))
	assert.InDelta(t, 50*(110-100), out[0].RealizedPnL, 1e-6)
	require.NoError(t, p.VerifyInvariants())
}

func TestApplyTrades_WeightedAverageMergesLots(t *testing.T) {
	p := New(100000, WeightedAverage, false)
	_, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 100, 50, 0)})
	require.NoError(t, err)
	_, err = p.ApplyTrades([]core.Trade{trade(core.Buy, 100, 60, 0)})
	require.NoError(t, err)

	lots := p.Lots("AAPL")
	require.Len(t, lots, 1)
	assert.Equal(t, 200, lots[0].Quantity)
	assert.InDelta(t, 55, lots[0].AvgCost(), 1e-6)
}

func TestApplyTrades_StrictCashRejectsNegativeBalance(t *testing.T) {
	p := New(100, FIFO, true)
	_, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 100, 50, 0)})
	assert.Error(t, err)
	assert.Equal(t, 100.0, p.Cash()) // rejected batch leaves portfolio untouched
}

func TestApplyTrades_AllOrNothingOnBatchFailure(t *testing.T) {
	p := New(100000, FIFO, false)
	trades := []core.Trade{
		trade(core.Buy, 10, 50, 0),
		{ID: "bad", Symbol: "AAPL", Side: core.Buy, Quantity: -5, Price: 50},
	}
	_, err := p.ApplyTrades(trades)
	assert.Error(t, err)
	assert.Equal(t, 0, p.NetPosition("AAPL"))
	assert.Equal(t, 100000.0, p.Cash())
}

func TestMarketValue(t *testing.T) {
	p := New(10000, FIFO, false)
	_, err := p.ApplyTrades([]core.Trade{trade(core.Buy, 10, 100, 0)})
	require.NoError(t, err)

	mv := p.MarketValue(func(sym core.Symbol) (float64, bool) {
		if sym == "AAPL" {
			return 110, true
		}
		return 0, false
	})
	assert.InDelta(t, 9000+10*110, mv, 1e-6)
}
