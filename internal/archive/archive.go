// Package archive provides the per-symbol lazy-loaded, chronologically
// sorted daily price series that backs every other layer of the engine.
//
// Loading is the only I/O-bearing operation in the core (spec §5); this
// package is the single seam where an external CSV/HTTP collaborator is
// wired in, via the Loader interface.
package archive

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/mdreiback/backsim/internal/core"
)

// Loader fetches the full, ascending, duplicate-free daily bar history for
// one symbol from whatever external source backs the archive (CSV file,
// HTTP API, database). Out-of-scope per spec §1; only its contract is
// specified here.
type Loader interface {
	Load(ctx context.Context, symbol core.Symbol) ([]core.Bar, error)
}

// Config controls the archive's resilience and parallelism behavior.
type Config struct {
	// PreloadWorkers bounds the concurrency of Preload's worker pool.
	PreloadWorkers int
	// BreakerMaxFailures trips the circuit after this many consecutive
	// load failures. One breaker guards the loader for every symbol, so the
	// count runs across symbols; a down data source isn't hammered once per
	// simulated day.
	BreakerMaxFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// DefaultConfig mirrors the retry/backoff defaults idiom used across the
// corpus: conservative, finite, and always overridable.
var DefaultConfig = Config{
	PreloadWorkers:     4,
	BreakerMaxFailures: 5,
	BreakerTimeout:     30 * time.Second,
}

// Archive owns the loaded price lists per symbol. Cache entries are
// invalidated only on an explicit Clear call; GetPrices never re-fetches a
// symbol that has already loaded successfully.
type Archive struct {
	loader  Loader
	logger  *log.Logger
	cfg     Config
	mu      sync.RWMutex
	series  map[core.Symbol][]core.Bar
	breaker *gobreaker.CircuitBreaker
}

// New creates an Archive backed by the given Loader.
func New(loader Loader, logger *log.Logger, config ...Config) *Archive {
	if loader == nil {
		panic("archive.New: loader must not be nil")
	}
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = DefaultConfig.PreloadWorkers
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = DefaultConfig.BreakerMaxFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig.BreakerTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "archive: ", log.LstdFlags)
	}

	a := &Archive{
		loader: loader,
		logger: logger,
		cfg:    cfg,
		series: make(map[core.Symbol][]core.Bar),
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "archive-loader",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	})
	return a
}

// GetPrices returns the time-sorted price list for symbol restricted to
// [start, end] (inclusive). Loads lazily on first access; subsequent
// accesses reuse loaded data. Caches at symbol granularity: it never caches
// a subrange.
func (a *Archive) GetPrices(ctx context.Context, symbol core.Symbol, start, end time.Time) ([]core.Bar, error) {
	if start.After(end) {
		return nil, core.NewStatus(core.InvalidArgument, "get_prices %s: start %s is after end %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	full, err := a.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(full) == 0 {
		return nil, core.NewStatus(core.NotFound, "get_prices %s: no data", symbol)
	}

	lo := sort.Search(len(full), func(i int) bool { return !full[i].Date.Before(start) })
	hi := sort.Search(len(full), func(i int) bool { return full[i].Date.After(end) })
	if lo >= hi {
		return []core.Bar{}, nil
	}
	out := make([]core.Bar, hi-lo)
	copy(out, full[lo:hi])
	return out, nil
}

// load returns the cached series for symbol, fetching and validating it on
// first access.
func (a *Archive) load(ctx context.Context, symbol core.Symbol) ([]core.Bar, error) {
	a.mu.RLock()
	cached, ok := a.series[symbol]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Re-check after acquiring the write lock in case another goroutine
	// loaded this symbol while we were waiting (Preload races with GetPrices).
	if cached, ok := a.series[symbol]; ok {
		return cached, nil
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.loader.Load(ctx, symbol)
	})
	if err != nil {
		return nil, core.Wrap(core.Internal, err, "loading symbol %s", symbol)
	}
	bars, _ := result.([]core.Bar)
	if err := validateSorted(bars); err != nil {
		return nil, err
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}

	a.series[symbol] = bars
	a.logger.Printf("loaded %d bars for %s", len(bars), symbol)
	return bars, nil
}

// validateSorted rejects a loader response that is not ascending by date
// with unique dates, per the storage contract in spec §4.1.
func validateSorted(bars []core.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return core.NewStatus(core.Internal,
				"loader returned unsorted or duplicate dates at index %d (%s, %s)",
				i, bars[i-1].Date.Format("2006-01-02"), bars[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Preload warms the cache for the given symbols using a bounded worker pool,
// per spec §5's "price archive load is the only I/O-bearing operation...
// implementations may use a bounded worker pool for preloading". It returns
// a parallel result vector identifying which symbols failed.
func (a *Archive) Preload(ctx context.Context, symbols []core.Symbol) []core.Result[core.Symbol] {
	results := make([]core.Result[core.Symbol], len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.PreloadWorkers)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			_, err := a.load(gctx, sym)
			results[i] = core.Result[core.Symbol]{Value: sym, Err: err}
			return nil // collect per-symbol errors, never abort the group
		})
	}
	_ = g.Wait()
	return results
}

// Clear invalidates all cached series, forcing the next GetPrices/Preload
// call to re-fetch from the loader.
func (a *Archive) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = make(map[core.Symbol][]core.Bar)
}

// PreloadErrors formats a Preload result vector into a single aggregate
// error, or nil if every symbol loaded successfully.
func PreloadErrors(results []core.Result[core.Symbol]) error {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Value, r.Err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return core.NewStatus(core.Internal, "preload failed for %d symbol(s): %v", len(failed), failed)
}
