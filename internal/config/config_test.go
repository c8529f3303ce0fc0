package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "backsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
run:
  start: "2023-01-01"
  end: "2023-12-31"
  symbols: ["AAPL"]
portfolio:
  initial_cash: 100000
  method: fifo
strategy:
  kind: ema_crossover
  quantity: 10
  fast_period: 12
  slow_period: 26
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, cfg.Run.Symbols)
	assert.Equal(t, 390, cfg.Market.TotalPoints)
	assert.Equal(t, "u_shaped", cfg.Market.Profile)
	assert.Equal(t, "fifo", cfg.Portfolio.Method)
	assert.Equal(t, ":8080", cfg.Report.Addr)
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, validConfig+"\nnot_a_real_field: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RequiresSymbols(t *testing.T) {
	path := writeConfig(t, `
run:
  start: "2023-01-01"
  end: "2023-12-31"
  symbols: []
portfolio:
  initial_cash: 100000
strategy:
  kind: ema_crossover
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "symbols")
}

func TestValidate_RejectsUnknownMethod(t *testing.T) {
	path := writeConfig(t, `
run:
  start: "2023-01-01"
  end: "2023-12-31"
  symbols: ["AAPL"]
portfolio:
  initial_cash: 100000
  method: bogus
strategy:
  kind: ema_crossover
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "method")
}

func TestValidate_RejectsUnknownStrategyKind(t *testing.T) {
	path := writeConfig(t, `
run:
  start: "2023-01-01"
  end: "2023-12-31"
  symbols: ["AAPL"]
portfolio:
  initial_cash: 100000
strategy:
  kind: bogus
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "strategy.kind")
}

func TestStartEndDate(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	start, err := cfg.StartDate()
	require.NoError(t, err)
	assert.Equal(t, 2023, start.Year())

	end, err := cfg.EndDate()
	require.NoError(t, err)
	assert.Equal(t, 12, int(end.Month()))
}

func TestIndicatorSpecs(t *testing.T) {
	path := writeConfig(t, validConfig+`
  indicators:
    - name: ema
      period: 12
      cadence: daily
    - name: rsi
      period: 14
      cadence: weekly
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	specs := cfg.IndicatorSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "ema", string(specs[0].Name))
	assert.Equal(t, "weekly", string(specs[1].Cadence))
}
