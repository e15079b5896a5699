package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/factor"
	"github.com/jgbdesk/factorcurve/internal/telemetry/metrics"
)

const dateLayout = "2006-01-02"

// pcLabels names the leading principal components of a yield curve.
var pcLabels = []string{"Level", "Slope", "Curvature"}

// DataSource is what the analyzer consumes from the data layer. Calendar
// and holiday logic live behind BusinessDays, outside the core.
type DataSource interface {
	// ObservationsForDate returns every usable bond observation for one
	// trading day.
	ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error)

	// BusinessDays returns up to lookback trading days ending at end,
	// ordered most-recent-first.
	BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error)
}

// Analyzer is the public facade over the factor engine: it builds or
// fetches cached models and serves per-date reconstruction diagnostics.
// Analyzers have no internal threads; all concurrency comes from the
// serving layer and is absorbed by the cache's single-flight discipline.
type Analyzer struct {
	source  DataSource
	builder *factor.Builder
	engine  *Engine
	cache   *ModelCache

	// scoreSeriesLimit bounds the score time series embedded in an
	// analysis response; the full reconstruction date list is still
	// returned so older dates can be fetched individually.
	scoreSeriesLimit int
}

// NewAnalyzer wires the facade. A scoreSeriesLimit of 0 means no truncation.
func NewAnalyzer(source DataSource, builder *factor.Builder, engine *Engine, scoreSeriesLimit int) *Analyzer {
	return &Analyzer{
		source:           source,
		builder:          builder,
		engine:           engine,
		cache:            NewModelCache(),
		scoreSeriesLimit: scoreSeriesLimit,
	}
}

// Analyze builds or fetches the factor model keyed by (endDate, lookback,
// components) and returns its summary plus a reconstruction for the window's
// most recent valid date. Idempotent; the only side effect is cache
// population.
func (a *Analyzer) Analyze(ctx context.Context, endDate time.Time, lookbackDays, nComponents int) (*AnalysisResponse, error) {
	if err := factor.ValidateParams(lookbackDays, nComponents); err != nil {
		return nil, err
	}

	entry, err := a.modelEntry(ctx, endDate, lookbackDays, nComponents)
	if err != nil {
		return nil, err
	}
	model := entry.Model()

	latest := model.ValidDates[0]
	latestRecon, err := a.cachedReconstruction(ctx, entry, latest)
	if err != nil {
		return nil, fmt.Errorf("reconstruct latest date %s: %w", latest.Format(dateLayout), err)
	}

	return buildAnalysisResponse(model, latestRecon, a.scoreSeriesLimit), nil
}

// Reconstruct fetches the same-keyed model (building it if absent) and
// returns the reconstruction for targetDate, which may be any date with
// observations, not only one the model was fitted on.
func (a *Analyzer) Reconstruct(ctx context.Context, targetDate, endDate time.Time, lookbackDays, nComponents int) (*ReconstructionResponse, error) {
	if err := factor.ValidateParams(lookbackDays, nComponents); err != nil {
		return nil, err
	}

	entry, err := a.modelEntry(ctx, endDate, lookbackDays, nComponents)
	if err != nil {
		return nil, err
	}

	result, err := a.cachedReconstruction(ctx, entry, targetDate)
	if err != nil {
		return nil, err
	}
	return reconstructionResponse(result), nil
}

// InvalidateAll clears the model cache. Must run strictly after the
// upstream data refresh completes.
func (a *Analyzer) InvalidateAll() {
	a.cache.InvalidateAll()
}

// CacheStats exposes model-cache activity for the health endpoint.
func (a *Analyzer) CacheStats() CacheStats {
	return a.cache.Stats()
}

func (a *Analyzer) modelEntry(ctx context.Context, endDate time.Time, lookbackDays, nComponents int) (*Entry, error) {
	key := NewKey(endDate, lookbackDays, nComponents)
	return a.cache.GetOrBuild(key, func() (*factor.Model, error) {
		start := time.Now()
		model, err := a.buildModel(ctx, endDate, lookbackDays, nComponents)
		metrics.ObserveBuild(time.Since(start), err)
		return model, err
	})
}

func (a *Analyzer) buildModel(ctx context.Context, endDate time.Time, lookbackDays, nComponents int) (*factor.Model, error) {
	dates, err := a.source.BusinessDays(ctx, endDate, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("list business days: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no business days at or before %s",
			factor.ErrInsufficientData, endDate.Format(dateLayout))
	}

	days := make([]factor.DaySlice, 0, len(dates))
	for _, d := range dates {
		obs, err := a.source.ObservationsForDate(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("observations for %s: %w", d.Format(dateLayout), err)
		}
		days = append(days, factor.DaySlice{Date: d, Observations: obs})
	}

	model, err := a.builder.Build(endDate, lookbackDays, nComponents, days)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("end_date", endDate.Format(dateLayout)).
		Int("lookback_days", lookbackDays).
		Int("n_components", nComponents).
		Int("valid_dates", len(model.ValidDates)).
		Int("dropped_dates", len(model.Dropped)).
		Float64("cumulative_variance", model.CumulativeVarianceRatio[len(model.CumulativeVarianceRatio)-1]).
		Msg("factor model built")

	return model, nil
}

func (a *Analyzer) cachedReconstruction(ctx context.Context, entry *Entry, date time.Time) (*ReconstructionResult, error) {
	return entry.Reconstruction(date, func() (*ReconstructionResult, error) {
		obs, err := a.source.ObservationsForDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("observations for %s: %w", date.Format(dateLayout), err)
		}
		start := time.Now()
		result, err := a.engine.Reconstruct(entry.Model(), date, obs)
		metrics.ObserveReconstruction(time.Since(start), err)
		return result, err
	})
}

// PCLabel returns the conventional name of a principal component, 1-based.
func PCLabel(pcNumber int) string {
	if pcNumber >= 1 && pcNumber <= len(pcLabels) {
		return pcLabels[pcNumber-1]
	}
	return fmt.Sprintf("PC%d", pcNumber)
}
