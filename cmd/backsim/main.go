// Package main provides the entry point for the backsim backtesting engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/mdreiback/backsim/internal/archive"
	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/config"
	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/csvloader"
	"github.com/mdreiback/backsim/internal/indicator"
	"github.com/mdreiback/backsim/internal/portfolio"
	"github.com/mdreiback/backsim/internal/report"
	"github.com/mdreiback/backsim/internal/simulation"
	"github.com/mdreiback/backsim/internal/strategy"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath, dataDir string
	flag.StringVar(&configPath, "config", "backsim.yaml", "Path to configuration file")
	flag.StringVar(&dataDir, "data", "data", "Directory of per-symbol <SYMBOL>.csv price files")
	flag.Parse()

	logger := log.New(os.Stdout, "[backsim] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutdown signal received, finishing current day...")
		cancel()
	}()

	result, err := runSimulation(ctx, cfg, dataDir, logger)
	if err != nil {
		logger.Printf("simulation failed: %v", err)
		return 1
	}

	printSummary(logger, result)

	if cfg.Report.Enabled {
		if err := serveReport(ctx, cfg, result, logger); err != nil {
			logger.Printf("report server error: %v", err)
			return 1
		}
	}

	return 0
}

func runSimulation(ctx context.Context, cfg *config.Config, dataDir string, logger *log.Logger) (simulation.RunResult, error) {
	loader := csvloader.New(dataDir)
	priceArchive := archive.New(loader, logger)

	symbols := make([]core.Symbol, 0, len(cfg.Run.Symbols))
	for _, s := range cfg.Run.Symbols {
		symbols = append(symbols, core.Symbol(s))
	}

	if errs := archive.PreloadErrors(priceArchive.Preload(ctx, symbols)); errs != nil {
		return simulation.RunResult{}, fmt.Errorf("preloading symbol data: %w", errs)
	}

	start, err := cfg.StartDate()
	if err != nil {
		return simulation.RunResult{}, err
	}
	end, err := cfg.EndDate()
	if err != nil {
		return simulation.RunResult{}, err
	}
	days, err := tradingCalendar(ctx, priceArchive, symbols, start, end)
	if err != nil {
		return simulation.RunResult{}, err
	}

	strat, err := buildStrategy(cfg, logger)
	if err != nil {
		return simulation.RunResult{}, err
	}

	simCfg := simulation.Config{
		Symbols:          symbols,
		Days:             days,
		InitialCash:      cfg.Portfolio.InitialCash,
		AccountingMethod: portfolio.Method(cfg.Portfolio.Method),
		StrictCash:       cfg.Portfolio.StrictCash,
		Commission:       cfg.CommissionConfig(),
		PathConfig:       cfg.PathConfig(),
		IndicatorSpecs:   cfg.IndicatorSpecs(),
		FinalizeCadences: []cadence.Cadence{cadence.Weekly, cadence.Monthly},
	}

	driver := simulation.New(priceArchive, strat, simCfg, logger)
	return driver.Run(ctx)
}

// tradingCalendar derives the day-stepping sequence from the union of every
// symbol's observed trading dates within [start, end], since the archive
// holds the only authoritative record of which days actually traded.
func tradingCalendar(ctx context.Context, a *archive.Archive, symbols []core.Symbol, start, end time.Time) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	for _, sym := range symbols {
		bars, err := a.GetPrices(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading calendar for %s: %w", sym, err)
		}
		for _, b := range bars {
			seen[b.Date] = true
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func buildStrategy(cfg *config.Config, logger *log.Logger) (strategy.Strategy, error) {
	switch cfg.Strategy.Kind {
	case "ema_crossover":
		return strategy.NewEMACrossoverStrategy(strategy.EMACrossoverConfig{
			FastSpec:      indicator.Spec{Name: indicator.EMA, Period: cfg.Strategy.FastPeriod, Cadence: cadence.Daily},
			SlowSpec:      indicator.Spec{Name: indicator.EMA, Period: cfg.Strategy.SlowPeriod, Cadence: cadence.Daily},
			Quantity:      cfg.Strategy.Quantity,
			StopLossPct:   cfg.Strategy.StopLossPct,
			TakeProfitPct: cfg.Strategy.TakeProfitPct,
		}, logger), nil

	case "symmetric_bracket":
		side := core.Buy
		if cfg.Strategy.Side == "sell" {
			side = core.Sell
		}
		return strategy.NewBracketStrategy(strategy.BracketConfig{
			Side:          side,
			Quantity:      cfg.Strategy.Quantity,
			StopPct:       cfg.Strategy.StopLossPct,
			TakeProfitPct: cfg.Strategy.TakeProfitPct,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown strategy kind %q", cfg.Strategy.Kind)
	}
}

func printSummary(logger *log.Logger, result simulation.RunResult) {
	logger.Printf("run complete: %d trading days, final equity $%.2f", len(result.Days), result.FinalEquity)
	for _, m := range result.Metrics {
		logger.Printf("%s:", m.Name)
		for k, v := range m.Values {
			logger.Printf("  %s = %.4f", k, v)
		}
	}
}

func serveReport(ctx context.Context, cfg *config.Config, result simulation.RunResult, logger *log.Logger) error {
	srv := report.NewServer(report.Config{Addr: cfg.Report.Addr}, result, nil)
	logger.Printf("serving results at http://%s", cfg.Report.Addr)
	if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
