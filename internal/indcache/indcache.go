// Package indcache caches indicator values per (symbol, spec, date),
// distinguishing provisional (incomplete-period) values from finalized
// ones, so the simulation driver never recomputes an indicator twice for
// the same day.
package indcache

import (
	"context"
	"sync"
	"time"

	"github.com/mdreiback/backsim/internal/archive"
	"github.com/mdreiback/backsim/internal/cadence"
	"github.com/mdreiback/backsim/internal/core"
	"github.com/mdreiback/backsim/internal/indicator"
)

// lookbackMultiplier controls how many cadence periods of daily history to
// fetch in order to seed an indicator of the requested period.
const lookbackMultiplier = 6

type key struct {
	symbol core.Symbol
	spec   indicator.Spec
	date   time.Time
}

type entry struct {
	value       float64
	provisional bool
}

// Cache is the indicator value cache owned by the simulation driver.
type Cache struct {
	archive *archive.Archive
	mu      sync.Mutex
	entries map[key]entry
}

// New creates an indicator cache backed by the given price archive.
func New(a *archive.Archive) *Cache {
	return &Cache{archive: a, entries: make(map[key]entry)}
}

// Get returns the indicator value for symbol/spec as of asOf, computing and
// caching it on a miss. The provisional flag is true iff the value was
// computed before spec.Cadence's period containing asOf had concluded.
func (c *Cache) Get(ctx context.Context, symbol core.Symbol, spec indicator.Spec, asOf time.Time) (float64, bool, error) {
	if err := spec.Validate(); err != nil {
		return 0, false, err
	}
	k := key{symbol: symbol, spec: spec, date: asOf}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		c.mu.Unlock()
		return e.value, e.provisional, nil
	}
	c.mu.Unlock()

	value, provisional, err := c.compute(ctx, symbol, spec, asOf)
	if err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	c.entries[k] = entry{value: value, provisional: provisional}
	c.mu.Unlock()
	return value, provisional, nil
}

func (c *Cache) compute(ctx context.Context, symbol core.Symbol, spec indicator.Spec, asOf time.Time) (float64, bool, error) {
	lookbackDays := lookbackDaysFor(spec)
	start := asOf.AddDate(0, 0, -lookbackDays)

	daily, err := c.archive.GetPrices(ctx, symbol, start, asOf)
	if err != nil {
		return 0, false, err
	}

	opts := cadence.Options{AsOf: asOf}
	series, err := cadence.Convert(daily, spec.Cadence, opts)
	if err != nil {
		return 0, false, err
	}
	points, err := indicator.Compute(series, spec)
	if err != nil {
		return 0, false, err
	}
	if len(points) == 0 {
		return 0, false, core.NewStatus(core.NotFound, "indicator %s/%s: insufficient history as of %s",
			symbol, spec.Name, asOf.Format("2006-01-02"))
	}
	last := points[len(points)-1]
	return last.Value, last.Provisional, nil
}

func lookbackDaysFor(spec indicator.Spec) int {
	switch spec.Cadence {
	case cadence.Weekly:
		return spec.Period * 7 * lookbackMultiplier
	case cadence.Monthly:
		return spec.Period * 31 * lookbackMultiplier
	default:
		return spec.Period * lookbackMultiplier
	}
}

// FinalizePeriod evicts every provisional cache entry for the given cadence,
// called by the driver once a period for that cadence has concluded (spec
// §4.7 step 2). The next Get for an evicted (symbol, spec, date) recomputes
// from the archive. The recompute still passes that date as the cadence
// AsOf, so a value whose trailing period contains its query date is
// flagged provisional again: eviction does not turn an entry into a
// finalized one.
func (c *Cache) FinalizePeriod(cad cadence.Cadence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if k.spec.Cadence == cad && e.provisional {
			delete(c.entries, k)
		}
	}
}

// Clear empties the entire cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]entry)
}
