// Package app assembles the service from configuration: data source
// decorators, the factor engine, the analyzer facade, and the optional
// maintenance scheduler.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jgbdesk/factorcurve/internal/analysis"
	"github.com/jgbdesk/factorcurve/internal/config"
	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/data"
	"github.com/jgbdesk/factorcurve/internal/factor"
	"github.com/jgbdesk/factorcurve/internal/scheduler"
)

// App owns the wired service components.
type App struct {
	Analyzer  *analysis.Analyzer
	Store     *data.Store
	Scheduler *scheduler.Scheduler

	obsCache *data.CachedSource
}

// New wires the service. The source chain is store -> redis read-through
// (when enabled) -> circuit breaker; the analyzer only ever sees the
// outermost decorator.
func New(cfg config.Config) (*App, error) {
	store, err := data.NewStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	var source data.Source = store
	var obsCache *data.CachedSource
	if cfg.Redis.Enabled {
		obsCache = data.NewCachedSource(store, cfg.Redis)
		source = obsCache
		log.Info().Str("addr", cfg.Redis.Addr).Msg("observation cache enabled")
	}
	source = data.NewBreakerSource(source, cfg.Breaker)

	grid := curve.DefaultGrid()
	if len(cfg.Analysis.Grid) > 0 {
		grid = curve.Grid(cfg.Analysis.Grid)
	}
	interp := &curve.Interpolator{
		MinObservations: cfg.Analysis.MinObservations,
		SpanTolerance:   cfg.Analysis.SpanTolerance,
	}

	builder := factor.NewBuilder(grid, interp)
	engine := analysis.NewEngine(interp)
	analyzer := analysis.NewAnalyzer(source, builder, engine, cfg.Analysis.ScoreSeriesLimit)

	app := &App{
		Analyzer: analyzer,
		Store:    store,
		obsCache: obsCache,
	}

	if cfg.Scheduler.Enabled {
		app.Scheduler = scheduler.New(cfg.Scheduler, scheduler.Jobs{
			FlushObservations: app.flushObservations,
			InvalidateModels:  analyzer.InvalidateAll,
		})
	}

	return app, nil
}

// Close releases the app's connections.
func (a *App) Close() {
	if a.obsCache != nil {
		if err := a.obsCache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing observation cache")
		}
	}
	if err := a.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}

func (a *App) flushObservations(ctx context.Context) error {
	if a.obsCache == nil {
		return nil
	}
	return a.obsCache.Flush(ctx)
}
