package curve

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Interpolation failure reasons. Callers treat both as "drop this date from
// the window" rather than as fatal build errors.
var (
	// ErrInsufficientObservations marks a date with too few distinct
	// maturities to fit a cubic spline.
	ErrInsufficientObservations = errors.New("insufficient distinct maturities for spline fit")

	// ErrOutsideSpan marks a date whose observed maturity span does not
	// cover the grid within the configured tolerance. Splines are never
	// extrapolated beyond the observed range.
	ErrOutsideSpan = errors.New("grid extends beyond observed maturity span")
)

// Interpolator converts one day's sparse (maturity, yield) observations into
// a dense yield vector on a shared maturity grid using a natural cubic
// spline.
type Interpolator struct {
	// MinObservations is the minimum number of distinct maturities required
	// before a spline is fitted.
	MinObservations int

	// SpanTolerance is how far (in years) a grid endpoint may sit outside
	// the observed maturity span before the whole date is dropped. Grid
	// points inside the tolerance band are evaluated at the nearest spline
	// endpoint, which is a clamp, not an extrapolation.
	SpanTolerance float64
}

// NewInterpolator returns an Interpolator with the standard thresholds:
// at least 4 distinct maturities and a quarter-year span tolerance.
func NewInterpolator() *Interpolator {
	return &Interpolator{
		MinObservations: 4,
		SpanTolerance:   0.25,
	}
}

// Curve fits a natural cubic spline through one day's observations and
// evaluates it at every grid point. Observations are sorted by maturity and
// duplicate maturities keep the first quote. The returned vector has
// len(grid) entries.
//
// A date that cannot produce a full vector is reported with
// ErrInsufficientObservations or ErrOutsideSpan; both mean "drop the date",
// never "abort the build".
func (ip *Interpolator) Curve(obs []Observation, grid Grid) ([]float64, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty maturity grid")
	}

	xs, ys := dedupSorted(obs)
	if len(xs) < ip.MinObservations {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientObservations, len(xs), ip.MinObservations)
	}

	lo, hi := xs[0], xs[len(xs)-1]
	if grid.Min() < lo-ip.SpanTolerance || grid.Max() > hi+ip.SpanTolerance {
		return nil, fmt.Errorf("%w: observed [%.2fy, %.2fy], grid [%.2fy, %.2fy]",
			ErrOutsideSpan, lo, hi, grid.Min(), grid.Max())
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("spline fit: %w", err)
	}

	out := make([]float64, len(grid))
	for i, m := range grid {
		out[i] = spline.Predict(clamp(m, lo, hi))
	}
	return out, nil
}

// Evaluator fits the same natural cubic spline through (grid, values) and
// returns a function evaluating it at arbitrary maturities, clamped to the
// grid range. This is how reconstructed grid curves are read back at each
// bond's exact maturity.
func (ip *Interpolator) Evaluator(grid Grid, values []float64) (func(maturity float64) float64, error) {
	if len(values) != len(grid) {
		return nil, fmt.Errorf("value count %d does not match grid length %d", len(values), len(grid))
	}
	spline := &interp.NaturalCubic{}
	if err := spline.Fit(grid, values); err != nil {
		return nil, fmt.Errorf("spline fit on grid: %w", err)
	}
	lo, hi := grid.Min(), grid.Max()
	return func(maturity float64) float64 {
		return spline.Predict(clamp(maturity, lo, hi))
	}, nil
}

// dedupSorted returns maturities and yields sorted ascending by maturity
// with duplicate maturities collapsed to their first-quoted yield.
func dedupSorted(obs []Observation) (xs, ys []float64) {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaturityYears < sorted[j].MaturityYears
	})

	xs = make([]float64, 0, len(sorted))
	ys = make([]float64, 0, len(sorted))
	for _, o := range sorted {
		if len(xs) > 0 && o.MaturityYears == xs[len(xs)-1] {
			continue
		}
		xs = append(xs, o.MaturityYears)
		ys = append(ys, o.YieldPct)
	}
	return xs, ys
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
