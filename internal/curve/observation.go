// Package curve holds the yield-curve primitives: daily bond observations,
// the shared maturity grid, and spline interpolation of sparse quotes onto
// that grid.
package curve

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Observation is one bond's quoted yield on one trading day. Observations
// are immutable and sourced from the data layer.
type Observation struct {
	TradeDate     time.Time `json:"trade_date"`
	BondCode      string    `json:"bond_code"`
	BondName      string    `json:"bond_name"`
	MaturityYears float64   `json:"maturity"`
	YieldPct      float64   `json:"yield"`
}

// NormalizeBondCode pads numeric JSDA bond codes to the canonical 9 digits.
// Non-numeric codes pass through trimmed; empty codes become "N/A".
func NormalizeBondCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "N/A"
	}
	if n, err := strconv.Atoi(code); err == nil {
		return fmt.Sprintf("%09d", n)
	}
	return code
}

// Grid is an ordered set of maturity points (in years) shared by every date
// in one model run. A grid is frozen for the lifetime of the model built on
// it.
type Grid []float64

// DefaultGrid returns the standard JGB maturity ladder: half-year steps out
// to 10y, then the liquid long-end benchmarks.
func DefaultGrid() Grid {
	grid := make(Grid, 0, 25)
	for m := 1.0; m <= 10.0; m += 0.5 {
		grid = append(grid, m)
	}
	grid = append(grid, 12, 15, 20, 25, 30, 40)
	return grid
}

// Min returns the shortest maturity on the grid.
func (g Grid) Min() float64 { return g[0] }

// Max returns the longest maturity on the grid.
func (g Grid) Max() float64 { return g[len(g)-1] }

// Clone returns an independent copy of the grid.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	copy(out, g)
	return out
}
