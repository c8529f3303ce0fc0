package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdreiback/backsim/internal/core"
)

func dailyBar(date string, o, h, l, c, v float64) core.Bar {
	d, _ := time.Parse("2006-01-02", date)
	return core.Bar{Symbol: "AAPL", Date: d, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestConvert_DailyIsIdentity(t *testing.T) {
	days := []core.Bar{dailyBar("2023-01-02", 100, 105, 98, 103, 1000)}
	out, err := Convert(days, Daily, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Provisional)
	assert.Equal(t, 103.0, out[0].Close)
}

func TestConvert_WeeklyAggregatesAndDropsIncompleteTail(t *testing.T) {
	days := []core.Bar{
		dailyBar("2023-01-02", 100, 105, 95, 101, 100), // Mon week 1
		dailyBar("2023-01-03", 101, 106, 96, 104, 100), // Tue week 1
		dailyBar("2023-01-09", 104, 110, 100, 108, 100), // Mon week 2 (incomplete tail)
	}
	out, err := Convert(days, Weekly, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1) // week 2 dropped: incomplete trailing period
	assert.Equal(t, 100.0, out[0].Open)
	assert.Equal(t, 104.0, out[0].Close)
	assert.Equal(t, 106.0, out[0].High)
	assert.Equal(t, 200.0, out[0].Volume)
}

func TestConvert_WeeklyIncludesPartialTailWhenRequested(t *testing.T) {
	days := []core.Bar{
		dailyBar("2023-01-02", 100, 105, 95, 101, 100),
		dailyBar("2023-01-09", 104, 110, 100, 108, 100),
	}
	out, err := Convert(days, Weekly, Options{IncludePartialTail: true})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[1].Provisional)
}

func TestConvert_WeeklyAsOfMarksTailProvisional(t *testing.T) {
	days := []core.Bar{
		dailyBar("2023-01-02", 100, 105, 95, 101, 100),
		dailyBar("2023-01-03", 101, 106, 96, 104, 100),
	}
	asOf, _ := time.Parse("2006-01-02", "2023-01-03")
	out, err := Convert(days, Weekly, Options{AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Provisional)
}

func TestConvert_RejectsUnsortedInput(t *testing.T) {
	days := []core.Bar{
		dailyBar("2023-01-03", 100, 105, 95, 101, 100),
		dailyBar("2023-01-02", 101, 106, 96, 104, 100),
	}
	_, err := Convert(days, Daily, Options{})
	assert.Error(t, err)
}

func TestConvert_WeekdayOnlyRejectsWeekends(t *testing.T) {
	days := []core.Bar{dailyBar("2023-01-07", 100, 105, 95, 101, 100)} // Saturday
	_, err := Convert(days, Daily, Options{WeekdayOnly: true})
	assert.Error(t, err)
}

func TestConvert_UnknownCadenceErrors(t *testing.T) {
	_, err := Convert(nil, Cadence("bogus"), Options{})
	assert.Error(t, err)
}
