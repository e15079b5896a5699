package analysis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/data"
	"github.com/jgbdesk/factorcurve/internal/factor"
)

// fakeSource serves a deterministic synthetic JGB history and counts window
// fetches so tests can assert how many model builds actually ran.
type fakeSource struct {
	end    time.Time
	nDays  int
	err    error
	sparse map[string]bool // dates served with only two observations

	windowFetches int32
}

func newFakeSource(nDays int) *fakeSource {
	return &fakeSource{
		end:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		nDays:  nDays,
		sparse: make(map[string]bool),
	}
}

func (f *fakeSource) BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	atomic.AddInt32(&f.windowFetches, 1)

	var dates []time.Time
	for i := 0; i < f.nDays && len(dates) < lookback; i++ {
		d := f.end.AddDate(0, 0, -i)
		if !d.After(end) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

func (f *fakeSource) ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}

	t := int(f.end.Sub(date).Hours() / 24)
	level := 0.25 * math.Sin(2*math.Pi*float64(t)/37)
	slope := 0.08 * math.Sin(2*math.Pi*float64(t)/13+1)

	var obs []curve.Observation
	for i, m := 0, 0.9; m <= 40.5; i, m = i+1, m+0.5 {
		obs = append(obs, curve.Observation{
			TradeDate:     date,
			BondCode:      fmt.Sprintf("%09d", i+1),
			BondName:      fmt.Sprintf("JGB #%d", i+1),
			MaturityYears: m,
			YieldPct:      0.4 + 0.045*m + level + slope*(1-m/40),
		})
	}
	if f.sparse[date.Format(dateLayout)] {
		obs = obs[:2]
	}
	return obs, nil
}

func newTestAnalyzer(source DataSource) *Analyzer {
	interp := curve.NewInterpolator()
	builder := factor.NewBuilder(curve.DefaultGrid(), interp)
	return NewAnalyzer(source, builder, NewEngine(interp), 30)
}

func TestAnalyzer_Analyze_ResponseShape(t *testing.T) {
	source := newFakeSource(120)
	a := newTestAnalyzer(source)

	resp, err := a.Analyze(context.Background(), source.end, 100, 3)
	require.NoError(t, err)

	require.Len(t, resp.Components, 3)
	assert.Equal(t, 1, resp.Components[0].PCNumber)
	assert.Equal(t, "Level", resp.Components[0].Label)
	assert.Equal(t, "Slope", resp.Components[1].Label)
	assert.Equal(t, "Curvature", resp.Components[2].Label)
	for _, c := range resp.Components {
		assert.Len(t, c.Loadings, len(curve.DefaultGrid()))
	}

	assert.Len(t, resp.Scores, 30, "score series truncated to the most recent 30 dates")
	assert.Equal(t, "2025-06-30", resp.Scores[0]["date"])
	assert.Contains(t, resp.Scores[0], "pc1")
	assert.Contains(t, resp.Scores[0], "pc3")

	assert.Equal(t, 100, resp.Parameters.LookbackDays)
	assert.Equal(t, 3, resp.Parameters.NComponents)
	assert.Equal(t, 100, resp.Parameters.ValidDatesCount)
	assert.Equal(t, "2025-06-30", resp.Parameters.ActualEndDate)
	assert.Equal(t, "2025-06-30", resp.Parameters.DateRange.End)
	assert.Len(t, resp.ReconstructionDates, 100)

	require.NotNil(t, resp.LatestReconstruction)
	assert.Equal(t, "2025-06-30", resp.LatestReconstruction.Date)
	assert.NotEmpty(t, resp.LatestReconstruction.Data)
	assert.Greater(t, resp.LatestReconstruction.Statistics.RMSE, 0.0)
}

func TestAnalyzer_Analyze_ConcurrentCallsBuildOnce(t *testing.T) {
	source := newFakeSource(80)
	a := newTestAnalyzer(source)

	const callers = 12
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := a.Analyze(context.Background(), source.end, 60, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&source.windowFetches),
		"concurrent identical requests trigger exactly one window fetch and build")
	assert.Equal(t, 1, a.CacheStats().Entries)
}

func TestAnalyzer_Analyze_SparseDateReducesCoverage(t *testing.T) {
	source := newFakeSource(50)
	dropped := source.end.AddDate(0, 0, -5)
	source.sparse[dropped.Format(dateLayout)] = true
	a := newTestAnalyzer(source)

	resp, err := a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)

	assert.Equal(t, 39, resp.Parameters.ValidDatesCount)
	require.Len(t, resp.Parameters.DroppedDates, 1)
	assert.True(t, resp.Parameters.DroppedDates[0].Date.Equal(dropped))
}

func TestAnalyzer_Reconstruct_CoverageFailureLeavesCacheIntact(t *testing.T) {
	source := newFakeSource(60)
	a := newTestAnalyzer(source)

	_, err := a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)
	require.Equal(t, 1, a.CacheStats().Entries)

	// A target date with only two quoted bonds, not in the model window.
	target := source.end.AddDate(0, 0, 30)
	source.sparse[target.Format(dateLayout)] = true

	_, err = a.Reconstruct(context.Background(), target, source.end, 40, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientCoverage)

	// The model and its cache entry are untouched and other dates fine.
	assert.Equal(t, 1, a.CacheStats().Entries)
	good := source.end.AddDate(0, 0, -3)
	resp, err := a.Reconstruct(context.Background(), good, source.end, 40, 3)
	require.NoError(t, err)
	assert.Equal(t, good.Format(dateLayout), resp.Date)
}

func TestAnalyzer_Reconstruct_SharesModelWithAnalyze(t *testing.T) {
	source := newFakeSource(60)
	a := newTestAnalyzer(source)

	_, err := a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)

	_, err = a.Reconstruct(context.Background(), source.end.AddDate(0, 0, -10), source.end, 40, 3)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&source.windowFetches),
		"reconstruct reuses the model analyze built")
}

func TestAnalyzer_InvalidateAll_TriggersFreshBuild(t *testing.T) {
	source := newFakeSource(60)
	a := newTestAnalyzer(source)

	_, err := a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.windowFetches))

	a.InvalidateAll()

	_, err = a.Analyze(context.Background(), source.end, 40, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&source.windowFetches),
		"post-invalidation request rebuilds from source data")
}

func TestAnalyzer_InvalidParameters(t *testing.T) {
	source := newFakeSource(60)
	a := newTestAnalyzer(source)

	_, err := a.Analyze(context.Background(), source.end, 0, 3)
	assert.ErrorIs(t, err, factor.ErrInvalidParameter)
	_, err = a.Analyze(context.Background(), source.end, 100, 0)
	assert.ErrorIs(t, err, factor.ErrInvalidParameter)
	_, err = a.Reconstruct(context.Background(), source.end, source.end, 100, 99)
	assert.ErrorIs(t, err, factor.ErrInvalidParameter)

	assert.Equal(t, int32(0), atomic.LoadInt32(&source.windowFetches),
		"parameter validation happens before any data access")
}

func TestAnalyzer_UpstreamErrorPropagatesUnchanged(t *testing.T) {
	source := newFakeSource(60)
	source.err = fmt.Errorf("%w: connection refused", data.ErrUpstreamUnavailable)
	a := newTestAnalyzer(source)

	_, err := a.Analyze(context.Background(), source.end, 40, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrUpstreamUnavailable)
	assert.Equal(t, 0, a.CacheStats().Entries, "failed builds are not cached")
}

func TestAnalyzer_Parameters(t *testing.T) {
	a := newTestAnalyzer(newFakeSource(10))
	p := a.Parameters()

	assert.Equal(t, factor.MaxLookbackDays, p.Days.Max)
	assert.Equal(t, 100, p.Days.Default)
	assert.Equal(t, factor.MaxComponents, p.Components.Max)
	assert.Equal(t, []string{"Level", "Slope", "Curvature", "PC4", "PC5"}, p.Components.Labels)
}
