package analysis

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jgbdesk/factorcurve/internal/factor"
	"github.com/jgbdesk/factorcurve/internal/telemetry/metrics"
)

// Key identifies one factor model: the window end date, the lookback length,
// and the component count. Identical keys always describe identical models
// as long as the upstream data has not changed.
type Key struct {
	EndDate      string
	LookbackDays int
	NComponents  int
}

// NewKey builds a cache key from request parameters.
func NewKey(endDate time.Time, lookbackDays, nComponents int) Key {
	return Key{
		EndDate:      endDate.Format("2006-01-02"),
		LookbackDays: lookbackDays,
		NComponents:  nComponents,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d", k.EndDate, k.LookbackDays, k.NComponents)
}

// CacheStats summarizes model-cache activity for the health endpoint.
type CacheStats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Builds        int64 `json:"builds"`
	Invalidations int64 `json:"invalidations"`
}

// ModelCache memoizes built factor models per key with build-once-per-key
// semantics: concurrent callers that miss on the same key block on a single
// in-flight build and share its result. A failed build is never cached, so
// the next request retries cleanly.
//
// The cache is the process's only shared mutable analytic state. It starts
// empty and is cleared once daily by InvalidateAll, which the scheduler
// must call strictly after the upstream data refresh finishes.
type ModelCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	group   singleflight.Group

	// generation fences in-flight builds against InvalidateAll: a build
	// that started before an invalidation must not repopulate the fresh
	// map with a model derived from pre-refresh data.
	generation int64

	hits          int64
	misses        int64
	builds        int64
	invalidations int64
}

// NewModelCache returns an empty model cache.
func NewModelCache() *ModelCache {
	return &ModelCache{entries: make(map[Key]*Entry)}
}

// GetOrBuild returns the cached entry for key, or runs build exactly once
// for all concurrent callers and caches its result. Errors from build are
// propagated to every waiter and leave the cache unchanged.
func (c *ModelCache) GetOrBuild(key Key, build func() (*factor.Model, error)) (*Entry, error) {
	c.mu.RLock()
	entry := c.entries[key]
	c.mu.RUnlock()
	if entry != nil {
		c.count(&c.hits)
		metrics.CacheHits.WithLabelValues("model").Inc()
		return entry, nil
	}

	c.count(&c.misses)
	metrics.CacheMisses.WithLabelValues("model").Inc()

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A flight that finished between the miss and Do may already have
		// populated the entry.
		c.mu.RLock()
		if entry := c.entries[key]; entry != nil {
			c.mu.RUnlock()
			return entry, nil
		}
		gen := c.generation
		c.mu.RUnlock()

		c.count(&c.builds)
		model, err := build()
		if err != nil {
			return nil, err
		}

		entry := newEntry(model)
		c.mu.Lock()
		// An invalidation during the build means the model was built from
		// data that has since been refreshed; serve it to the current
		// waiters but leave the fresh map empty so the next request
		// rebuilds.
		stale := c.generation != gen
		if !stale {
			c.entries[key] = entry
		}
		size := len(c.entries)
		c.mu.Unlock()

		metrics.CachedModels.Set(float64(size))
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// InvalidateAll clears every cached model and its nested reconstructions.
// It is intended to run once daily, after the upstream data refresh job
// completes; clearing earlier would let the next build read stale source
// data.
func (c *ModelCache) InvalidateAll() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[Key]*Entry)
	c.generation++
	c.invalidations++
	c.mu.Unlock()

	metrics.CachedModels.Set(0)
	log.Info().Int("evicted_models", n).Msg("model cache invalidated")
}

// Stats returns a snapshot of cache activity.
func (c *ModelCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:       len(c.entries),
		Hits:          c.hits,
		Misses:        c.misses,
		Builds:        c.builds,
		Invalidations: c.invalidations,
	}
}

func (c *ModelCache) count(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// Entry is one cached factor model plus its nested per-date reconstruction
// results. Reconstructions follow the same build-once-per-date guarantee as
// the outer model cache.
type Entry struct {
	model *factor.Model

	mu     sync.RWMutex
	recons map[string]*ReconstructionResult
	group  singleflight.Group
}

func newEntry(model *factor.Model) *Entry {
	return &Entry{
		model:  model,
		recons: make(map[string]*ReconstructionResult),
	}
}

// Model returns the cached factor model. The model is immutable.
func (e *Entry) Model() *factor.Model { return e.model }

// Reconstruction returns the cached result for date, or runs compute exactly
// once for all concurrent callers. A failed compute is not cached and never
// poisons the entry.
func (e *Entry) Reconstruction(date time.Time, compute func() (*ReconstructionResult, error)) (*ReconstructionResult, error) {
	key := date.Format("2006-01-02")

	e.mu.RLock()
	result := e.recons[key]
	e.mu.RUnlock()
	if result != nil {
		metrics.CacheHits.WithLabelValues("reconstruction").Inc()
		return result, nil
	}
	metrics.CacheMisses.WithLabelValues("reconstruction").Inc()

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		e.mu.RLock()
		if result := e.recons[key]; result != nil {
			e.mu.RUnlock()
			return result, nil
		}
		e.mu.RUnlock()

		result, err := compute()
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.recons[key] = result
		e.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReconstructionResult), nil
}
