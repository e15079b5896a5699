package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// obsAt builds observations at the given maturities with yields from fn.
func obsAt(maturities []float64, fn func(float64) float64) []Observation {
	obs := make([]Observation, len(maturities))
	for i, m := range maturities {
		obs[i] = Observation{MaturityYears: m, YieldPct: fn(m)}
	}
	return obs
}

func denseMaturities() []float64 {
	ms := []float64{0.8}
	for m := 1.0; m <= 40.0; m += 1.0 {
		ms = append(ms, m)
	}
	ms = append(ms, 40.2)
	return ms
}

func TestInterpolator_Curve_RecoversSmoothCurve(t *testing.T) {
	ip := NewInterpolator()
	grid := DefaultGrid()

	// Linear curves are reproduced exactly by a natural cubic spline.
	linear := func(m float64) float64 { return 0.5 + 0.04*m }
	vec, err := ip.Curve(obsAt(denseMaturities(), linear), grid)
	require.NoError(t, err)
	require.Len(t, vec, len(grid))

	for i, m := range grid {
		assert.InDelta(t, linear(m), vec[i], 1e-9, "grid point %.1fy", m)
	}
}

func TestInterpolator_Curve_DuplicateMaturitiesKeepFirst(t *testing.T) {
	ip := &Interpolator{MinObservations: 4, SpanTolerance: 0.25}
	grid := Grid{1, 2, 3, 4, 5}

	obs := []Observation{
		{MaturityYears: 1, YieldPct: 0.10},
		{MaturityYears: 2, YieldPct: 0.20},
		{MaturityYears: 2, YieldPct: 9.99}, // later duplicate quote, ignored
		{MaturityYears: 3, YieldPct: 0.30},
		{MaturityYears: 4, YieldPct: 0.40},
		{MaturityYears: 5, YieldPct: 0.50},
	}
	vec, err := ip.Curve(obs, grid)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, vec[1], 1e-9, "first quote at 2y wins")
}

func TestInterpolator_Curve_InsufficientObservations(t *testing.T) {
	ip := NewInterpolator()
	grid := Grid{1, 2, 3}

	obs := []Observation{
		{MaturityYears: 1, YieldPct: 0.1},
		{MaturityYears: 3, YieldPct: 0.3},
	}
	_, err := ip.Curve(obs, grid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientObservations)
}

func TestInterpolator_Curve_DropsDateOutsideSpan(t *testing.T) {
	ip := NewInterpolator()
	grid := DefaultGrid() // out to 40y

	// Observed span stops at 10y, far short of the 40y grid point.
	short := func(m float64) float64 { return 0.5 + 0.04*m }
	obs := obsAt([]float64{1, 2, 4, 6, 8, 10}, short)

	_, err := ip.Curve(obs, grid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutsideSpan)
}

func TestInterpolator_Curve_ClampsWithinTolerance(t *testing.T) {
	ip := &Interpolator{MinObservations: 4, SpanTolerance: 0.25}
	grid := Grid{1, 2, 3, 4, 5}

	// Span [1.2, 5] misses the 1y grid point by 0.2y, inside tolerance:
	// the 1y value comes from the spline endpoint, never extrapolated.
	obs := obsAt([]float64{1.2, 2, 3, 4, 5}, func(m float64) float64 { return 0.1 * m })
	vec, err := ip.Curve(obs, grid)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, vec[0], 1e-9, "clamped to the 1.2y endpoint value")

	// Tightening the tolerance below the 0.2y gap drops the date.
	ip.SpanTolerance = 0.1
	_, err = ip.Curve(obs, grid)
	assert.ErrorIs(t, err, ErrOutsideSpan)
}

func TestInterpolator_Evaluator_MatchesGridValues(t *testing.T) {
	ip := NewInterpolator()
	grid := Grid{1, 2, 5, 10, 20, 40}
	values := []float64{0.1, 0.2, 0.5, 1.0, 1.6, 2.1}

	evalAt, err := ip.Evaluator(grid, values)
	require.NoError(t, err)

	for i, m := range grid {
		assert.InDelta(t, values[i], evalAt(m), 1e-9)
	}

	// Off-grid maturities are clamped to the grid range.
	assert.InDelta(t, values[0], evalAt(0.5), 1e-9)
	assert.InDelta(t, values[len(values)-1], evalAt(45), 1e-9)
}

func TestNormalizeBondCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234", "000001234"},
		{" 1234 ", "000001234"},
		{"123456789", "123456789"},
		{"JGB-10-367", "JGB-10-367"},
		{"", "N/A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBondCode(tt.in), "input %q", tt.in)
	}
}

func TestDefaultGrid(t *testing.T) {
	grid := DefaultGrid()
	require.NotEmpty(t, grid)
	assert.Equal(t, 1.0, grid.Min())
	assert.Equal(t, 40.0, grid.Max())
	for i := 1; i < len(grid); i++ {
		assert.Greater(t, grid[i], grid[i-1], "grid must be strictly ascending")
	}
}
