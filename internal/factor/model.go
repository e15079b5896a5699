// Package factor builds low-dimensional principal-component models of the
// yield curve from windows of interpolated daily curves.
package factor

import (
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/jgbdesk/factorcurve/internal/curve"
)

// Model is a fitted yield-curve factor model. All slices are frozen after
// Build returns; a Model is safe for concurrent readers.
//
// ValidDates and Scores are ordered most-recent-first, matching the order
// the lookback window is fetched in. Components are ordered by descending
// explained variance, so index 0 is the level factor, 1 the slope, 2 the
// curvature.
type Model struct {
	ReferenceDate time.Time
	LookbackDays  int
	NComponents   int

	Grid curve.Grid

	// Components holds one loading vector per principal component, each of
	// grid length.
	Components [][]float64

	// Eigenvalues of the centered covariance, one per retained component.
	Eigenvalues []float64

	ExplainedVarianceRatio  []float64
	CumulativeVarianceRatio []float64

	// MeanVector is the per-maturity mean of the interpolated window.
	MeanVector []float64

	// Scores holds the projection of each valid date's centered curve onto
	// the components: len(Scores) == len(ValidDates), each row NComponents
	// long.
	Scores [][]float64

	ValidDates []time.Time

	// Dropped records the window dates that were excluded and why, so
	// partial coverage degrades visibly instead of silently.
	Dropped []DroppedDate
}

// DroppedDate records one window date excluded from the model.
type DroppedDate struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// ScoreFor returns the precomputed score row for a date the model was
// fitted on, or false when the date is not one of the valid dates.
func (m *Model) ScoreFor(date time.Time) ([]float64, bool) {
	for i, d := range m.ValidDates {
		if sameDay(d, date) {
			return m.Scores[i], true
		}
	}
	return nil, false
}

// Project computes the score of an arbitrary centered curve against the
// model's components.
func (m *Model) Project(centered []float64) []float64 {
	score := make([]float64, m.NComponents)
	for i, comp := range m.Components {
		score[i] = floats.Dot(centered, comp)
	}
	return score
}

// ReconstructGrid rebuilds a dense grid curve from a score row:
// mean + score · components.
func (m *Model) ReconstructGrid(score []float64) []float64 {
	out := make([]float64, len(m.Grid))
	copy(out, m.MeanVector)
	for i, comp := range m.Components {
		floats.AddScaled(out, score[i], comp)
	}
	return out
}

// Center subtracts the model mean from an interpolated curve.
func (m *Model) Center(interpolated []float64) []float64 {
	centered := make([]float64, len(interpolated))
	floats.SubTo(centered, interpolated, m.MeanVector)
	return centered
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
