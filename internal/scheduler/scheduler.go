// Package scheduler runs the daily cache maintenance: once the upstream
// collection pipeline has refreshed bond_data, the observation cache is
// flushed and the model cache invalidated, in that order.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Config controls the maintenance schedule.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Spec is a standard 5-field cron expression. The default fires on
	// weekday evenings, after the JSDA publication and collection window;
	// invalidating before the upstream refresh completes would rebuild
	// models from stale data.
	Spec string `yaml:"spec"`

	// FlushTimeout bounds the observation-cache flush.
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

// DefaultConfig schedules maintenance at 18:30 on weekdays.
func DefaultConfig() Config {
	return Config{
		Spec:         "30 18 * * 1-5",
		FlushTimeout: 30 * time.Second,
	}
}

// Jobs are the maintenance steps, executed in declaration order.
type Jobs struct {
	// FlushObservations drops cached per-date observations so re-collected
	// days are re-read. Optional.
	FlushObservations func(ctx context.Context) error

	// InvalidateModels clears the factor model cache. Required.
	InvalidateModels func()
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron *cron.Cron
	cfg  Config
	jobs Jobs
}

// New creates a scheduler; call Start to begin the loop.
func New(cfg Config, jobs Jobs) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		cfg:  cfg,
		jobs: jobs,
	}
}

// Start registers the maintenance job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Spec, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("spec", s.cfg.Spec).Msg("maintenance scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes one maintenance pass: observation flush first, model
// invalidation second. A failed flush does not block invalidation; the
// model cache must never outlive a data refresh, while a stale observation
// entry only costs a redundant Postgres read.
func (s *Scheduler) RunOnce() {
	start := time.Now()

	if s.jobs.FlushObservations != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
		if err := s.jobs.FlushObservations(ctx); err != nil {
			log.Error().Err(err).Msg("observation cache flush failed")
		}
		cancel()
	}

	s.jobs.InvalidateModels()

	log.Info().Dur("duration", time.Since(start)).Msg("daily cache maintenance complete")
}
