package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/position"
)

func TestBracket_EntersOnceThenStaysSilent(t *testing.T) {
	s := NewBracketStrategy(BracketConfig{Side: core.Buy, Quantity: 5, StopPct: 0.05, TakeProfitPct: 0.1}, nil)
	in := Input{Symbol: "AAPL", Bar: core.Bar{Close: 100}}

	intents, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentEnter, intents[0].Tag)
	assert.InDelta(t, 95, intents[0].Risk.StopPrice, 1e-6)
	assert.InDelta(t, 110, intents[0].Risk.TakeProfitPrice, 1e-6)

	in.HasEntered = true
	intents, err = s.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestBracket_SellSideInvertsRiskDirection(t *testing.T) {
	s := NewBracketStrategy(BracketConfig{Side: core.Sell, Quantity: 5, StopPct: 0.05, TakeProfitPct: 0.1}, nil)
	in := Input{Symbol: "AAPL", Bar: core.Bar{Close: 100}}

	intents, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.InDelta(t, 105, intents[0].Risk.StopPrice, 1e-6)
	assert.InDelta(t, 90, intents[0].Risk.TakeProfitPrice, 1e-6)
}

func TestBracket_IgnoresSymbolWithExistingPosition(t *testing.T) {
	s := NewBracketStrategy(BracketConfig{Side: core.Buy, Quantity: 5, StopPct: 0.05, TakeProfitPct: 0.1}, nil)
	pos := position.Position{Tag: position.Holding}
	intents, err := s.Decide(context.Background(), Input{Symbol: "AAPL", Bar: core.Bar{Close: 100}, Position: &pos})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestBracket_IgnoresSymbolWithPriorEntryAndNoPosition(t *testing.T) {
	s := NewBracketStrategy(BracketConfig{Side: core.Buy, Quantity: 5, StopPct: 0.05, TakeProfitPct: 0.1}, nil)
	intents, err := s.Decide(context.Background(), Input{Symbol: "AAPL", Bar: core.Bar{Close: 100}, HasEntered: true})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestBracket_DecideIsReferentiallyTransparent(t *testing.T) {
	s := NewBracketStrategy(BracketConfig{Side: core.Buy, Quantity: 5, StopPct: 0.05, TakeProfitPct: 0.1}, nil)
	in := Input{Symbol: "AAPL", Bar: core.Bar{Close: 100}}

	first, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
