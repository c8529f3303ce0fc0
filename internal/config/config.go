// Package config loads a run's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/engine"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/pathgen"
	"github.com/mdreiback/backsim/internal/portfolio"
)

const (
	defaultTotalPoints      = 390
	defaultDegreesOfFreedom = 4
	defaultStopLossPct      = 0.05
	defaultTakeProfitPct    = 0.10
)

// Config is the complete run configuration for one backtest.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Market    MarketConfig    `yaml:"market"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Execution ExecutionConfig `yaml:"execution"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Report    ReportConfig    `yaml:"report"`
}

// RunConfig bounds the simulated period.
type RunConfig struct {
	Start   string   `yaml:"start"` // "YYYY-MM-DD"
	End     string   `yaml:"end"`   // "YYYY-MM-DD"
	Symbols []string `yaml:"symbols"`
}

// MarketConfig configures intraday path reconstruction.
type MarketConfig struct {
	TotalPoints      int    `yaml:"total_points"`
	Profile          string `yaml:"profile"` // u_shaped | j_shaped | reverse_j | uniform
	Seed             *int64 `yaml:"seed"`
	DegreesOfFreedom int    `yaml:"degrees_of_freedom"`
}

// PortfolioConfig configures the run's ledger.
type PortfolioConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
	Method      string  `yaml:"method"` // fifo | weighted_average
	StrictCash  bool    `yaml:"strict_cash"`
}

// ExecutionConfig configures commission charged per fill.
type ExecutionConfig struct {
	CommissionPerShare float64 `yaml:"commission_per_share"`
	CommissionMinimum  float64 `yaml:"commission_minimum"`
}

// IndicatorConfig names one indicator series a strategy may request.
type IndicatorConfig struct {
	Name    string `yaml:"name"`
	Period  int    `yaml:"period"`
	Cadence string `yaml:"cadence"`
}

// StrategyConfig selects and configures the strategy under test.
type StrategyConfig struct {
	Kind          string            `yaml:"kind"` // ema_crossover | symmetric_bracket
	Quantity      int               `yaml:"quantity"`
	Side          string            `yaml:"side"` // symmetric_bracket only: buy | sell
	StopLossPct   float64           `yaml:"stop_loss_pct"`
	TakeProfitPct float64           `yaml:"take_profit_pct"`
	FastPeriod    int               `yaml:"fast_period"` // ema_crossover only
	SlowPeriod    int               `yaml:"slow_period"` // ema_crossover only
	Indicators    []IndicatorConfig `yaml:"indicators"`
}

// ReportConfig configures the HTTP report server.
type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "backsim.yaml"
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Market.TotalPoints == 0 {
		c.Market.TotalPoints = defaultTotalPoints
	}
	if c.Market.Profile == "" {
		c.Market.Profile = string(pathgen.UShaped)
	}
	if c.Market.DegreesOfFreedom == 0 {
		c.Market.DegreesOfFreedom = defaultDegreesOfFreedom
	}
	if c.Portfolio.Method == "" {
		c.Portfolio.Method = string(portfolio.FIFO)
	}
	if c.Strategy.StopLossPct == 0 {
		c.Strategy.StopLossPct = defaultStopLossPct
	}
	if c.Strategy.TakeProfitPct == 0 {
		c.Strategy.TakeProfitPct = defaultTakeProfitPct
	}
	if c.Report.Addr == "" {
		c.Report.Addr = ":8080"
	}
}

// Validate checks cross-field invariants Load's schema can't express.
func (c *Config) Validate() error {
	if len(c.Run.Symbols) == 0 {
		return fmt.Errorf("run.symbols must not be empty")
	}
	if _, err := c.StartDate(); err != nil {
		return err
	}
	if _, err := c.EndDate(); err != nil {
		return err
	}
	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be positive")
	}
	switch portfolio.Method(c.Portfolio.Method) {
	case portfolio.FIFO, portfolio.WeightedAverage:
	default:
		return fmt.Errorf("portfolio.method must be fifo or weighted_average, got %q", c.Portfolio.Method)
	}
	switch c.Strategy.Kind {
	case "ema_crossover", "symmetric_bracket":
	default:
		return fmt.Errorf("strategy.kind must be ema_crossover or symmetric_bracket, got %q", c.Strategy.Kind)
	}
	return nil
}

// StartDate parses Run.Start as a UTC calendar date.
func (c *Config) StartDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Run.Start)
}

// EndDate parses Run.End as a UTC calendar date.
func (c *Config) EndDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Run.End)
}

// PathConfig builds the pathgen.Config this run's market settings describe.
func (c *Config) PathConfig() pathgen.Config {
	return pathgen.Config{
		TotalPoints:      c.Market.TotalPoints,
		Profile:          pathgen.Profile(c.Market.Profile),
		Seed:             c.Market.Seed,
		DegreesOfFreedom: c.Market.DegreesOfFreedom,
	}
}

// CommissionConfig builds the engine.CommissionConfig this run charges.
func (c *Config) CommissionConfig() engine.CommissionConfig {
	return engine.CommissionConfig{
		PerShare: c.Execution.CommissionPerShare,
		Minimum:  c.Execution.CommissionMinimum,
	}
}

// IndicatorSpecs resolves the strategy's configured indicator list into
// indicator.Spec values.
func (c *Config) IndicatorSpecs() []indicator.Spec {
	specs := make([]indicator.Spec, 0, len(c.Strategy.Indicators))
	for _, ic := range c.Strategy.Indicators {
		specs = append(specs, indicator.Spec{
			Name:    indicator.Name(ic.Name),
			Period:  ic.Period,
			Cadence: cadence.Cadence(ic.Cadence),
		})
	}
	return specs
}
