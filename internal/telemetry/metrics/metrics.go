// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ModelBuildDuration tracks factor model build latency by outcome.
	ModelBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factorcurve_model_build_seconds",
			Help:    "Duration of factor model builds in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"result"},
	)

	// ReconstructionDuration tracks per-date reconstruction latency.
	ReconstructionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factorcurve_reconstruction_seconds",
			Help:    "Duration of per-date reconstructions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"result"},
	)

	// CacheHits counts model and reconstruction cache hits by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorcurve_cache_hits_total",
			Help: "Cache hits by cache tier",
		},
		[]string{"cache"},
	)

	// CacheMisses counts model and reconstruction cache misses by tier.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorcurve_cache_misses_total",
			Help: "Cache misses by cache tier",
		},
		[]string{"cache"},
	)

	// CachedModels reports how many factor models are currently resident.
	CachedModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factorcurve_cached_models",
			Help: "Number of factor models currently held in the model cache",
		},
	)

	// UpstreamErrors counts data-layer failures by source.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorcurve_upstream_errors_total",
			Help: "Data layer errors by source",
		},
		[]string{"source"},
	)
)

// ObserveBuild records one model build with its outcome label.
func ObserveBuild(d time.Duration, err error) {
	ModelBuildDuration.WithLabelValues(resultLabel(err)).Observe(d.Seconds())
}

// ObserveReconstruction records one reconstruction with its outcome label.
func ObserveReconstruction(d time.Duration, err error) {
	ReconstructionDuration.WithLabelValues(resultLabel(err)).Observe(d.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
