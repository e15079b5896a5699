package data

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/telemetry/metrics"
)

// BreakerConfig tunes the circuit breaker in front of the observation
// source.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests"`
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    2,
	}
}

// BreakerSource wraps a Source with a circuit breaker so a struggling
// database fails fast instead of stacking up slow model builds. An open
// breaker surfaces as ErrUpstreamUnavailable; the core never retries it.
type BreakerSource struct {
	inner Source
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps inner with a circuit breaker.
func NewBreakerSource(inner Source, cfg BreakerConfig) *BreakerSource {
	settings := gobreaker.Settings{
		Name:        "bond-data",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("data source breaker state changed")
		},
	}
	return &BreakerSource{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

// ObservationsForDate executes the wrapped call through the breaker.
func (b *BreakerSource) ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ObservationsForDate(ctx, date)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return v.([]curve.Observation), nil
}

// BusinessDays executes the wrapped call through the breaker.
func (b *BreakerSource) BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.BusinessDays(ctx, end, lookback)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return v.([]time.Time), nil
}

func (b *BreakerSource) wrap(err error) error {
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		metrics.UpstreamErrors.WithLabelValues("breaker").Inc()
		return fmt.Errorf("%w: circuit breaker open: %v", ErrUpstreamUnavailable, err)
	default:
		metrics.UpstreamErrors.WithLabelValues("store").Inc()
		return err
	}
}
