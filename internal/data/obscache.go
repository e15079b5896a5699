package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jgbdesk/factorcurve/internal/curve"
	"github.com/jgbdesk/factorcurve/internal/telemetry/metrics"
)

// Source is the observation interface the cache and breaker wrap. The
// Postgres Store satisfies it, as does any decorated source.
type Source interface {
	ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error)
	BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error)
}

// RedisConfig holds settings for the observation read-through cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultRedisConfig returns the cache defaults: disabled until configured,
// 24h TTL once a trading day's observations are final.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		TTL:  24 * time.Hour,
	}
}

// redisCmdable is the slice of the go-redis client the cache uses. Tests
// substitute an in-memory fake.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// CachedSource is a Redis read-through decorator over a Source. Per-date
// observation slices are immutable once the day is collected, so they cache
// safely; the business-day list is always passed through because it must
// reflect the newest collected day.
//
// Redis failures degrade to the inner source with a warning; the cache is
// an optimization, never a dependency.
type CachedSource struct {
	inner     Source
	client    redisCmdable
	ttl       time.Duration
	keyPrefix string
}

// NewCachedSource wraps inner with a Redis read-through observation cache.
func NewCachedSource(inner Source, cfg RedisConfig) *CachedSource {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &CachedSource{
		inner:     inner,
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: "factorcurve:obs:",
	}
}

// Close releases the Redis client.
func (c *CachedSource) Close() error { return c.client.Close() }

// ObservationsForDate serves from Redis when possible and falls back to the
// inner source, populating the cache on the way out.
func (c *CachedSource) ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error) {
	key := c.keyPrefix + date.Format("2006-01-02")

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var obs []curve.Observation
		if jsonErr := json.Unmarshal(payload, &obs); jsonErr == nil {
			metrics.CacheHits.WithLabelValues("observations").Inc()
			return obs, nil
		}
		log.Warn().Str("key", key).Msg("corrupt cached observation payload, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("observation cache read failed, falling back to store")
	}
	metrics.CacheMisses.WithLabelValues("observations").Inc()

	obs, err := c.inner.ObservationsForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	if len(obs) > 0 {
		if payload, jsonErr := json.Marshal(obs); jsonErr == nil {
			if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
				log.Warn().Err(setErr).Str("key", key).Msg("observation cache write failed")
			}
		}
	}
	return obs, nil
}

// BusinessDays always hits the inner source.
func (c *CachedSource) BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error) {
	return c.inner.BusinessDays(ctx, end, lookback)
}

// Flush drops every cached observation day. Called by the maintenance
// scheduler alongside model invalidation so a re-collected day is re-read.
func (c *CachedSource) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan observation cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("flush observation cache: %w", err)
	}
	log.Info().Int("keys", len(keys)).Msg("observation cache flushed")
	return nil
}
