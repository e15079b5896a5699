package factor

import (
	"math"
	"time"

	"github.com/jgbdesk/factorcurve/internal/curve"
)

// syntheticWindow generates a deterministic lookback window driven by three
// known factors with strictly decreasing variance: a level shift, a slope
// tilt, and a mid-curve hump. Dates are ordered most-recent-first.
func syntheticWindow(nDays int) []DaySlice {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	maturities := syntheticMaturities()

	days := make([]DaySlice, nDays)
	for t := 0; t < nDays; t++ {
		date := end.AddDate(0, 0, -t)
		yield := syntheticYield(t)

		obs := make([]curve.Observation, len(maturities))
		for i, m := range maturities {
			obs[i] = curve.Observation{
				TradeDate:     date,
				BondCode:      "000000001",
				BondName:      "synthetic",
				MaturityYears: m,
				YieldPct:      yield(m),
			}
		}
		days[t] = DaySlice{Date: date, Observations: obs}
	}
	return days
}

func syntheticMaturities() []float64 {
	ms := []float64{0.9}
	for m := 1.0; m <= 40.0; m += 0.5 {
		ms = append(ms, m)
	}
	return ms
}

// syntheticYield returns the yield function for day t: a base upward curve
// plus level, slope, and curvature factors with amplitudes 0.30, 0.10 and
// 0.03.
func syntheticYield(t int) func(m float64) float64 {
	ft := float64(t)
	level := 0.30 * math.Sin(2*math.Pi*ft/41)
	slope := 0.10 * math.Sin(2*math.Pi*ft/17+1)
	curvature := 0.03 * math.Sin(2*math.Pi*ft/7+2)
	return func(m float64) float64 {
		base := 0.4 + 0.045*m
		hump := math.Exp(-(m - 10) * (m - 10) / 100)
		return base + level + slope*(1-m/40) + curvature*hump
	}
}
