package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/position"
)

func newCrossoverStrategy() (*EMACrossoverStrategy, EMACrossoverConfig) {
	cfg := EMACrossoverConfig{
		FastSpec:      indicator.Spec{Name: indicator.EMA, Period: 5, Cadence: cadence.Daily},
		SlowSpec:      indicator.Spec{Name: indicator.EMA, Period: 20, Cadence: cadence.Daily},
		Quantity:      10,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
	}
	return NewEMACrossoverStrategy(cfg, nil), cfg
}

// inputWith builds a pure Input: prevFast/prevSlow (nil to simulate no
// prior observation) feed PriorIndicators, fast/slow feed the current
// day's Indicators, matching what the driver assembles from run history.
func inputWith(t *testing.T, s *EMACrossoverStrategy, prevFast, prevSlow *float64, fast, slow float64, pos *position.Position) Input {
	t.Helper()
	in := Input{
		Symbol: "AAPL",
		Date:   time.Now(),
		Bar:    core.Bar{Symbol: "AAPL", Open: 100, High: 105, Low: 95, Close: 100, Volume: 1},
		Indicators: map[indicator.Spec]IndicatorValue{
			s.cfg.FastSpec: {Value: fast},
			s.cfg.SlowSpec: {Value: slow},
		},
		Position: pos,
	}
	if prevFast != nil && prevSlow != nil {
		in.PriorIndicators = map[indicator.Spec]IndicatorValue{
			s.cfg.FastSpec: {Value: *prevFast},
			s.cfg.SlowSpec: {Value: *prevSlow},
		}
	}
	return in
}

func f(v float64) *float64 { return &v }

func TestEMACrossover_FirstObservationNeverEnters(t *testing.T) {
	s, _ := newCrossoverStrategy()
	intents, err := s.Decide(context.Background(), inputWith(t, s, nil, nil, 101, 100, nil))
	require.NoError(t, err)
	assert.Empty(t, intents) // no prior indicators to compare against yet
}

func TestEMACrossover_EntersOnCrossUp(t *testing.T) {
	s, _ := newCrossoverStrategy()
	intents, err := s.Decide(context.Background(), inputWith(t, s, f(99), f(100), 101, 100, nil))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentEnter, intents[0].Tag)
	assert.Equal(t, core.Buy, intents[0].Side)
	assert.Equal(t, 10, intents[0].Quantity)
}

func TestEMACrossover_ExitsOnCrossDownWhileHolding(t *testing.T) {
	s, _ := newCrossoverStrategy()
	holding := position.Position{Tag: position.Holding}
	intents, err := s.Decide(context.Background(), inputWith(t, s, f(101), f(100), 99, 100, &holding))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentExit, intents[0].Tag)
	assert.Equal(t, ExitReasonCrossDown, intents[0].ExitReason)
}

func TestEMACrossover_IgnoresProvisionalIndicators(t *testing.T) {
	s, _ := newCrossoverStrategy()
	// A cross-up that would enter if the fast reading were final.
	in := inputWith(t, s, f(99), f(100), 101, 100, nil)
	in.Indicators[s.cfg.FastSpec] = IndicatorValue{Value: 101, Provisional: true}

	intents, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, intents)
}

func TestEMACrossover_DecideIsReferentiallyTransparent(t *testing.T) {
	s, _ := newCrossoverStrategy()
	in := inputWith(t, s, f(99), f(100), 101, 100, nil)

	first, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
