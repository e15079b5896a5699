// Package analysis combines the factor model builder, the model cache, and
// the reconstruction engine behind one facade used by the serving layer.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/factor"
)

// ErrInsufficientCoverage means a reconstruction target date cannot be
// projected onto the model's grid. It is per-call: the model and its cache
// entry are untouched.
var ErrInsufficientCoverage = errors.New("target date cannot be interpolated on the model grid")

// BondReconstruction compares one bond's observed yield against the value
// implied by the truncated factor model. The error folds in both the
// interpolation error and the truncated-PCA error; that is the quantity the
// mispricing screen wants, not a defect.
type BondReconstruction struct {
	Maturity           float64 `json:"maturity"`
	BondCode           string  `json:"bond_code"`
	BondName           string  `json:"bond_name"`
	OriginalYield      float64 `json:"original_yield"`
	ReconstructedYield float64 `json:"reconstructed_yield"`
	Error              float64 `json:"error"`
}

// ErrorStats aggregates per-bond reconstruction errors. All values are in
// the same percentage units as the input yields.
type ErrorStats struct {
	MAE      float64 `json:"mae"`
	MSE      float64 `json:"mse"`
	RMSE     float64 `json:"rmse"`
	MaxError float64 `json:"max_error"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// ReconstructionResult is the per-date diagnostic output: one row per
// observed bond plus aggregate error statistics.
type ReconstructionResult struct {
	Date       time.Time            `json:"-"`
	Bonds      []BondReconstruction `json:"data"`
	Statistics ErrorStats           `json:"statistics"`
}

// Engine projects a target date onto an existing factor model and measures
// how well the truncated component set reproduces the actually observed
// bond yields. Engines are stateless and safe for concurrent use.
type Engine struct {
	interp *curve.Interpolator
}

// NewEngine creates a reconstruction engine using the same interpolator the
// model grid was built with.
func NewEngine(interp *curve.Interpolator) *Engine {
	return &Engine{interp: interp}
}

// Reconstruct interpolates the target date onto the model's frozen grid,
// projects it onto the components (reusing the fitted score when the date
// is one of the model's valid dates), rebuilds the dense grid curve, and
// evaluates it at each bond's exact maturity via the same spline method.
func (e *Engine) Reconstruct(model *factor.Model, date time.Time, obs []curve.Observation) (*ReconstructionResult, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations for %s", ErrInsufficientCoverage, date.Format("2006-01-02"))
	}

	score, fitted := model.ScoreFor(date)
	if !fitted {
		interpolated, err := e.interp.Curve(obs, model.Grid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientCoverage, err)
		}
		score = model.Project(model.Center(interpolated))
	}

	grid := model.ReconstructGrid(score)
	evalAt, err := e.interp.Evaluator(model.Grid, grid)
	if err != nil {
		return nil, fmt.Errorf("fit reconstructed curve: %w", err)
	}

	sorted := make([]curve.Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaturityYears < sorted[j].MaturityYears
	})

	bonds := make([]BondReconstruction, 0, len(sorted))
	errs := make([]float64, 0, len(sorted))
	for _, o := range sorted {
		reconstructed := evalAt(o.MaturityYears)
		diff := o.YieldPct - reconstructed
		bonds = append(bonds, BondReconstruction{
			Maturity:           o.MaturityYears,
			BondCode:           o.BondCode,
			BondName:           o.BondName,
			OriginalYield:      o.YieldPct,
			ReconstructedYield: reconstructed,
			Error:              diff,
		})
		errs = append(errs, diff)
	}

	return &ReconstructionResult{
		Date:       date,
		Bonds:      bonds,
		Statistics: errorStats(errs),
	}, nil
}

func errorStats(errs []float64) ErrorStats {
	var sumAbs, sumSq, maxAbs float64
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, e := range errs {
		abs := math.Abs(e)
		sumAbs += abs
		sumSq += e * e
		if abs > maxAbs {
			maxAbs = abs
		}
		if e < minVal {
			minVal = e
		}
		if e > maxVal {
			maxVal = e
		}
	}
	n := float64(len(errs))
	mse := sumSq / n
	return ErrorStats{
		MAE:      sumAbs / n,
		MSE:      mse,
		RMSE:     math.Sqrt(mse),
		MaxError: maxAbs,
		Std:      stat.PopStdDev(errs, nil),
		Min:      minVal,
		Max:      maxVal,
	}
}
