package indcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/archive"
	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/indicator"
)

type risingLoader struct{ days int }

func (r risingLoader) Load(_ context.Context, symbol core.Symbol) ([]core.Bar, error) {
	base := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, 0, r.days)
	price := 100.0
	for i := 0; i < r.days; i++ {
		d := base.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		bars = append(bars, core.Bar{Symbol: symbol, Date: d, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 100})
		price++
	}
	return bars, nil
}

func TestGet_ComputesAndCachesValue(t *testing.T) {
	a := archive.New(risingLoader{days: 60}, nil)
	c := New(a)
	spec := indicator.Spec{Name: indicator.EMA, Period: 5, Cadence: cadence.Daily}
	asOf := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)

	value, provisional, err := c.Get(context.Background(), "AAPL", spec, asOf)
	require.NoError(t, err)
	assert.False(t, provisional)
	assert.Greater(t, value, 0.0)

	// Second call must hit the cache and return the same value and flag.
	again, provisionalAgain, err := c.Get(context.Background(), "AAPL", spec, asOf)
	require.NoError(t, err)
	assert.Equal(t, value, again)
	assert.Equal(t, provisional, provisionalAgain)
}

func TestGet_WeeklyMarksTrailingPeriodProvisional(t *testing.T) {
	a := archive.New(risingLoader{days: 60}, nil)
	c := New(a)
	spec := indicator.Spec{Name: indicator.EMA, Period: 3, Cadence: cadence.Weekly}
	asOf := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC) // mid-week

	_, provisional, err := c.Get(context.Background(), "AAPL", spec, asOf)
	require.NoError(t, err)
	assert.True(t, provisional)
}

func TestFinalizePeriod_EvictsOnlyMatchingCadenceProvisionalEntries(t *testing.T) {
	a := archive.New(risingLoader{days: 60}, nil)
	c := New(a)
	weekly := indicator.Spec{Name: indicator.EMA, Period: 3, Cadence: cadence.Weekly}
	daily := indicator.Spec{Name: indicator.EMA, Period: 3, Cadence: cadence.Daily}
	asOf := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := c.Get(context.Background(), "AAPL", weekly, asOf)
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), "AAPL", daily, asOf)
	require.NoError(t, err)

	c.FinalizePeriod(cadence.Weekly)

	c.mu.Lock()
	_, weeklyStillCached := c.entries[key{symbol: "AAPL", spec: weekly, date: asOf}]
	_, dailyStillCached := c.entries[key{symbol: "AAPL", spec: daily, date: asOf}]
	c.mu.Unlock()
	assert.False(t, weeklyStillCached)
	assert.True(t, dailyStillCached)
}

func TestGet_InvalidSpecErrors(t *testing.T) {
	a := archive.New(risingLoader{days: 10}, nil)
	c := New(a)
	_, _, err := c.Get(context.Background(), "AAPL", indicator.Spec{Name: indicator.EMA, Period: 0}, time.Now())
	assert.Error(t, err)
}
