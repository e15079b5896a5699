package factor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jgbdesk/factorcurve/internal/curve"
)

// DaySlice pairs one window date with its raw bond observations.
type DaySlice struct {
	Date         time.Time
	Observations []curve.Observation
}

// Builder assembles a lookback window of interpolated daily curves into a
// matrix and extracts its principal components. The grid is fixed at
// construction and never derived from the data, so identical inputs always
// produce an identical model.
type Builder struct {
	grid   curve.Grid
	interp *curve.Interpolator
}

// NewBuilder creates a Builder over the given frozen grid.
func NewBuilder(grid curve.Grid, interp *curve.Interpolator) *Builder {
	return &Builder{grid: grid.Clone(), interp: interp}
}

// Grid returns the builder's frozen maturity grid.
func (b *Builder) Grid() curve.Grid { return b.grid }

// ValidateParams checks the request bounds shared by every build:
// lookback_days in [MinLookbackDays, MaxLookbackDays] and n_components in
// [1, MaxComponents].
func ValidateParams(lookbackDays, nComponents int) error {
	if lookbackDays < MinLookbackDays || lookbackDays > MaxLookbackDays {
		return fmt.Errorf("%w: lookback_days %d outside [%d, %d]",
			ErrInvalidParameter, lookbackDays, MinLookbackDays, MaxLookbackDays)
	}
	if nComponents <= 0 || nComponents > MaxComponents {
		return fmt.Errorf("%w: n_components %d outside [1, %d]",
			ErrInvalidParameter, nComponents, MaxComponents)
	}
	return nil
}

// Build interpolates every window date onto the grid, centers the resulting
// matrix, and eigendecomposes it via thin SVD. Days are expected
// most-recent-first; that ordering is preserved in ValidDates and Scores.
//
// Dates that fail interpolation are dropped and recorded, not fatal. The
// build fails with ErrInsufficientData when fewer than nComponents+1 dates
// survive, and with ErrInvalidParameter when nComponents exceeds the grid
// length. A component count the surviving window cannot support is
// classified as a data shortfall rather than a parameter error: the same
// request succeeds once more dates interpolate cleanly, so the caller
// should see a 422, not a 400.
func (b *Builder) Build(referenceDate time.Time, lookbackDays, nComponents int, days []DaySlice) (*Model, error) {
	if err := ValidateParams(lookbackDays, nComponents); err != nil {
		return nil, err
	}

	rows := make([][]float64, 0, len(days))
	validDates := make([]time.Time, 0, len(days))
	var dropped []DroppedDate

	for _, day := range days {
		vec, err := b.interp.Curve(day.Observations, b.grid)
		if err != nil {
			dropped = append(dropped, DroppedDate{Date: day.Date, Reason: err.Error()})
			continue
		}
		rows = append(rows, vec)
		validDates = append(validDates, day.Date)
	}

	nValid := len(rows)
	gridLen := len(b.grid)

	if nValid < nComponents+1 {
		return nil, fmt.Errorf("%w: %d valid dates after %d drops, need at least %d",
			ErrInsufficientData, nValid, len(dropped), nComponents+1)
	}
	if nComponents > gridLen {
		return nil, fmt.Errorf("%w: n_components %d exceeds grid length %d",
			ErrInvalidParameter, nComponents, gridLen)
	}

	if len(dropped) > 0 {
		log.Debug().
			Int("valid_dates", nValid).
			Int("dropped", len(dropped)).
			Msg("window interpolated with reduced coverage")
	}

	mean := columnMeans(rows, gridLen)
	centered := mat.NewDense(nValid, gridLen, nil)
	for i, row := range rows {
		for j, v := range row {
			centered.Set(i, j, v-mean[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization failed for %dx%d window matrix", nValid, gridLen)
	}

	singular := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	// Total variance comes from every singular value, not just the retained
	// ones, so the explained ratios are against the full spectrum.
	var total float64
	for _, s := range singular {
		total += s * s
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: window matrix has zero variance", ErrInsufficientData)
	}

	model := &Model{
		ReferenceDate:           referenceDate,
		LookbackDays:            lookbackDays,
		NComponents:             nComponents,
		Grid:                    b.grid,
		Components:              make([][]float64, nComponents),
		Eigenvalues:             make([]float64, nComponents),
		ExplainedVarianceRatio:  make([]float64, nComponents),
		CumulativeVarianceRatio: make([]float64, nComponents),
		MeanVector:              mean,
		ValidDates:              validDates,
		Dropped:                 dropped,
	}

	var cumulative float64
	for i := 0; i < nComponents; i++ {
		comp := make([]float64, gridLen)
		mat.Col(comp, i, &v)
		model.Components[i] = comp
		model.Eigenvalues[i] = singular[i] * singular[i] / float64(nValid-1)
		model.ExplainedVarianceRatio[i] = singular[i] * singular[i] / total
		cumulative += model.ExplainedVarianceRatio[i]
		model.CumulativeVarianceRatio[i] = cumulative
	}

	normalizeSigns(model)

	model.Scores = make([][]float64, nValid)
	for i := 0; i < nValid; i++ {
		row := centered.RawRowView(i)
		model.Scores[i] = model.Project(row)
	}

	return model, nil
}

// normalizeSigns resolves the eigenvector sign ambiguity: each component's
// loading at the longest maturity is forced positive, so rebuilding from
// identical data never flips a factor and the Level/Slope/Curvature labels
// stay stable.
func normalizeSigns(m *Model) {
	last := len(m.Grid) - 1
	for _, comp := range m.Components {
		if comp[last] < 0 {
			for j := range comp {
				comp[j] = -comp[j]
			}
		}
	}
}

func columnMeans(rows [][]float64, gridLen int) []float64 {
	mean := make([]float64, gridLen)
	col := make([]float64, len(rows))
	for j := 0; j < gridLen; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean[j] = stat.Mean(col, nil)
	}
	return mean
}
