// Package config loads service configuration from YAML with environment
// overrides for deployment secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jgbdesk/factorcurve/internal/data"
	httpserver "github.com/jgbdesk/factorcurve/internal/interfaces/http"
	"github.com/jgbdesk/factorcurve/internal/scheduler"
)

// AnalysisConfig tunes the factor engine.
type AnalysisConfig struct {
	// Grid overrides the default maturity ladder when non-empty. Must be
	// strictly ascending.
	Grid []float64 `yaml:"grid"`

	MinObservations int     `yaml:"min_observations"`
	SpanTolerance   float64 `yaml:"span_tolerance_years"`

	// ScoreSeriesLimit caps the score time series in analysis responses.
	ScoreSeriesLimit int `yaml:"score_series_limit"`
}

// Config is the root service configuration.
type Config struct {
	Server    httpserver.ServerConfig `yaml:"server"`
	Database  data.Config             `yaml:"database"`
	Redis     data.RedisConfig        `yaml:"redis"`
	Breaker   data.BreakerConfig      `yaml:"breaker"`
	Analysis  AnalysisConfig          `yaml:"analysis"`
	Scheduler scheduler.Config        `yaml:"scheduler"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   httpserver.DefaultServerConfig(),
		Database: data.DefaultConfig(),
		Redis:    data.DefaultRedisConfig(),
		Breaker:  data.DefaultBreakerConfig(),
		Analysis: AnalysisConfig{
			MinObservations:  4,
			SpanTolerance:    0.25,
			ScoreSeriesLimit: 30,
		},
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. FACTORCURVE_PG_DSN and FACTORCURVE_REDIS_ADDR
// exist so secrets stay out of config files.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if dsn := os.Getenv("FACTORCURVE_PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("FACTORCURVE_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("FACTORCURVE_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i := 1; i < len(c.Analysis.Grid); i++ {
		if c.Analysis.Grid[i] <= c.Analysis.Grid[i-1] {
			return fmt.Errorf("analysis.grid must be strictly ascending at index %d", i)
		}
	}
	if c.Analysis.MinObservations < 2 {
		return fmt.Errorf("analysis.min_observations must be at least 2")
	}
	if c.Analysis.SpanTolerance < 0 {
		return fmt.Errorf("analysis.span_tolerance_years must not be negative")
	}
	return nil
}
