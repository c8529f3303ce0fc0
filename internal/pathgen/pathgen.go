// Package pathgen reconstructs a plausible intraday price path from a daily
// OHLC bar, for use by the execution engine in deciding order fills.
//
// Path generation is pure given a seed (spec §4.5, §8): identical seed
// produces an identical path, and is otherwise safe to parallelize per
// symbol (spec §5).
package pathgen

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	"math/rand"

	"github.com/mdreiback/backsim/internal/core"
)

// Profile selects the density used to place the two interior waypoints
// (the "extremes", i.e. high and low) along the path's time axis.
type Profile string

const (
	// UShaped concentrates waypoints near the path's edges.
	UShaped Profile = "u_shaped"
	// JShaped concentrates waypoints early in the path.
	JShaped Profile = "j_shaped"
	// ReverseJ concentrates waypoints late in the path.
	ReverseJ Profile = "reverse_j"
	// Uniform samples waypoints uniformly within the middle 60% of the path.
	Uniform Profile = "uniform"
)

// Config controls path shape, length, and determinism.
type Config struct {
	TotalPoints      int
	Profile          Profile
	Seed             *int64
	DegreesOfFreedom int
}

// DefaultConfig matches the defaults specified in spec §4.5.
var DefaultConfig = Config{
	TotalPoints:      390,
	Profile:          UShaped,
	DegreesOfFreedom: 4,
}

func (c Config) withDefaults() Config {
	if c.TotalPoints <= 0 {
		c.TotalPoints = DefaultConfig.TotalPoints
	}
	if c.Profile == "" {
		c.Profile = DefaultConfig.Profile
	}
	if c.DegreesOfFreedom <= 0 {
		c.DegreesOfFreedom = DefaultConfig.DegreesOfFreedom
	}
	return c
}

// Generate reconstructs an intraday path from bar using cfg. The returned
// slice always begins at bar.Open, ends at bar.Close, and contains both
// bar.High and bar.Low as interior waypoints (spec §8).
func Generate(bar core.Bar, cfg Config) ([]float64, error) {
	if err := bar.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	rng := newRand(cfg.Seed)

	body := math.Abs(bar.Close - bar.Open)
	barRange := bar.High - bar.Low
	volatilityScale := computeVolatilityScale(body, barRange, bar.Open)
	highFirst := decideHighFirst(rng, bar.Close-bar.Open, body, volatilityScale)

	extreme1, extreme2 := bar.Low, bar.High
	if highFirst {
		extreme1, extreme2 = bar.High, bar.Low
	}

	if cfg.TotalPoints <= 4 {
		return []float64{bar.Open, extreme1, extreme2, bar.Close}, nil
	}

	t1, t2 := sampleWaypointIndices(rng, cfg.Profile, cfg.TotalPoints)

	path := make([]float64, 0, cfg.TotalPoints)
	path = append(path, bar.Open)
	path = append(path, bridgeSegment(rng, bar.Open, extreme1, 0, t1, cfg.TotalPoints, volatilityScale, cfg.DegreesOfFreedom, bar.Low, bar.High)...)
	path = append(path, extreme1)
	path = append(path, bridgeSegment(rng, extreme1, extreme2, t1, t2, cfg.TotalPoints, volatilityScale, cfg.DegreesOfFreedom, bar.Low, bar.High)...)
	path = append(path, extreme2)
	path = append(path, bridgeSegment(rng, extreme2, bar.Close, t2, cfg.TotalPoints-1, cfg.TotalPoints, volatilityScale, cfg.DegreesOfFreedom, bar.Low, bar.High)...)
	path = append(path, bar.Close)

	return path, nil
}

// computeVolatilityScale is the geometric mean of a shape factor (how the
// range compares to the body) and a magnitude factor (how the range
// compares to the opening price), per spec §4.5 step 3.
func computeVolatilityScale(body, rng, open float64) float64 {
	if rng == 0 {
		return 0
	}
	var shape float64
	if body == 0 {
		shape = 2.0
	} else {
		shape = math.Min(rng/body/2.5, 2.0)
	}
	magnitude := math.Min((rng/open)/0.02, 2.0)
	if shape < 0 {
		shape = 0
	}
	if magnitude < 0 {
		magnitude = 0
	}
	return math.Sqrt(shape * magnitude)
}

// decideHighFirst draws the Bernoulli high-before-low decision per spec
// §4.5 step 2.
func decideHighFirst(rng *rand.Rand, signedBody, body, volatilityScale float64) bool {
	prob := 0.5
	confidence := 1.0 / math.Max(volatilityScale, 1.0)
	if body > 0 {
		if signedBody > 0 {
			prob += 0.3 / confidence
		} else {
			prob -= 0.3 / confidence
		}
	}
	prob = core.Clamp(prob, 0.2, 0.8)
	return rng.Float64() < prob
}

// sampleWaypointIndices picks the two interior waypoint time indices for the
// high and low extremes, per spec §4.5 step 4.
func sampleWaypointIndices(rng *rand.Rand, profile Profile, totalPoints int) (int, int) {
	var t1, t2 int
	if profile == Uniform {
		lo := float64(totalPoints) * 0.2
		hi := float64(totalPoints) * 0.8
		t1 = int(lo + rng.Float64()*(hi-lo))
		t2 = int(lo + rng.Float64()*(hi-lo))
	} else {
		t1 = rejectionSample(rng, profile, totalPoints)
		t2 = rejectionSample(rng, profile, totalPoints)
	}

	t1 = clampIndex(t1, totalPoints)
	t2 = clampIndex(t2, totalPoints)

	if t1 == t2 {
		if t2 < totalPoints-2 {
			t2++
		} else {
			t1--
		}
	}
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return t1, t2
}

func clampIndex(idx, totalPoints int) int {
	lo, hi := 1, totalPoints-2
	if idx < lo {
		return lo
	}
	if idx > hi {
		return hi
	}
	return idx
}

// density evaluates the (unnormalized) profile density at t in [0,1].
func density(profile Profile, t float64) float64 {
	switch profile {
	case UShaped:
		return 2 * (t*t + (1-t)*(1-t))
	case JShaped:
		return math.Exp(-3 * t)
	case ReverseJ:
		return math.Exp(3 * (t - 1))
	default:
		return 1
	}
}

// rejectionSample draws a time index in [0, totalPoints-1) from the
// profile's density via rejection sampling against a known density bound;
// the caller clamps it into [1, totalPoints-2].
func rejectionSample(rng *rand.Rand, profile Profile, totalPoints int) int {
	maxDensity := density(profile, 0)
	if d1 := density(profile, 1); d1 > maxDensity {
		maxDensity = d1
	}
	for attempt := 0; attempt < 1000; attempt++ {
		t := rng.Float64()
		u := rng.Float64() * maxDensity
		if u <= density(profile, t) {
			return int(t * float64(totalPoints-1))
		}
	}
	return totalPoints / 2
}

// bridgeSegment generates the interior points of a Brownian-bridge
// interpolation between two waypoints at path indices [startIdx, endIdx],
// excluding both endpoints, per spec §4.5 step 5.
func bridgeSegment(rng *rand.Rand, startValue, endValue float64, startIdx, endIdx, totalPoints int, volatilityScale float64, df int, low, high float64) []float64 {
	n := endIdx - startIdx
	if n <= 1 {
		return nil
	}
	dt := float64(n) / float64(totalPoints)
	current := startValue
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		remaining := n - i + 1
		drift := (endValue - current) / float64(remaining)
		noise := studentT(rng, df) * volatilityScale * math.Sqrt(dt/float64(n+1))
		next := core.Clamp(current+drift+noise, low, high)
		out = append(out, next)
		current = next
	}
	return out
}

// studentT draws one sample from a Student's t distribution with df
// degrees of freedom via Z/sqrt(V/df), Z~N(0,1), V~ChiSq(df).
func studentT(rng *rand.Rand, df int) float64 {
	if df <= 0 {
		df = 1
	}
	z := rng.NormFloat64()
	v := chiSquared(rng, df)
	if v <= 0 {
		return 0
	}
	return z / math.Sqrt(v/float64(df))
}

// chiSquared draws one sample from a chi-squared distribution with df
// (integer) degrees of freedom as the sum of df squared standard normals.
func chiSquared(rng *rand.Rand, df int) float64 {
	sum := 0.0
	for i := 0; i < df; i++ {
		z := rng.NormFloat64()
		sum += z * z
	}
	return sum
}

// newRand returns a deterministic RNG when seed is set, else one seeded
// from a non-deterministic crypto/rand source.
func newRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(secureSeed()))
}

func secureSeed() int64 {
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<62))
	if err != nil {
		return 1
	}
	return n.Int64()
}

// MightFill is the early-exit predicate that decides whether an order could
// possibly fill against a given day's bar, without walking its full path
// (spec §4.5).
func MightFill(bar core.Bar, side core.Side, kind core.OrderKind) bool {
	switch kind.Tag {
	case core.KindMarket:
		return true
	case core.KindLimit:
		if side == core.Buy {
			return bar.Low <= kind.LimitPrice
		}
		return bar.High >= kind.LimitPrice
	case core.KindStop:
		if side == core.Buy {
			return bar.High >= kind.StopPrice
		}
		return bar.Low <= kind.StopPrice
	case core.KindStopLimit:
		stopKind := core.Stop(kind.StopPrice)
		limitKind := core.Limit(kind.LimitPrice)
		return MightFill(bar, side, stopKind) && MightFill(bar, side, limitKind)
	default:
		return false
	}
}
