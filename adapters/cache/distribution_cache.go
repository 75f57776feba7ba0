// Package cache keeps built PrecomputedDistributions so that repeated queries
// against the same margins and nuisance value skip the population enumeration.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"goexact/adapters/stats/exact"
	"goexact/domain/contingency"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultNumCounters = 1e5       // admission counters, ~10x expected entries
	defaultMaxCost     = 256 << 20 // bytes of cached log/linear sequences
	defaultBufferItems = 64
)

// Config configures the distribution cache.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// DistributionCache is a bounded cache of PrecomputedDistribution keyed by
// (n, n1, pi). Entries are immutable once built and safe to share.
type DistributionCache struct {
	cache  *ristretto.Cache
	hits   atomic.Int64
	misses atomic.Int64
	mu     sync.RWMutex
	closed bool
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewDistributionCache creates a cache; a nil config uses the defaults.
func NewDistributionCache(config *Config) (*DistributionCache, error) {
	cfg := applyDefaults(config)
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &DistributionCache{cache: c}, nil
}

func applyDefaults(config *Config) Config {
	cfg := Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	}
	if config == nil {
		return cfg
	}
	if config.NumCounters > 0 {
		cfg.NumCounters = config.NumCounters
	}
	if config.MaxCost > 0 {
		cfg.MaxCost = config.MaxCost
	}
	if config.BufferItems > 0 {
		cfg.BufferItems = config.BufferItems
	}
	return cfg
}

// Key identifies a distribution. pi is formatted with full precision so two
// nuisance values only share an entry when they are bitwise equal.
func Key(m contingency.TableMargins, pi float64) string {
	return strconv.Itoa(m.N) + ":" + strconv.Itoa(m.N1) + ":" + strconv.FormatFloat(pi, 'g', -1, 64)
}

// Get returns the distribution for (m, pi), building and storing it on a miss.
// A distribution the admission policy rejects is still returned.
func (dc *DistributionCache) Get(m contingency.TableMargins, pi float64) (*exact.PrecomputedDistribution, error) {
	key := Key(m, pi)

	dc.mu.RLock()
	closed := dc.closed
	dc.mu.RUnlock()

	if !closed {
		if v, ok := dc.cache.Get(key); ok {
			if d, ok := v.(*exact.PrecomputedDistribution); ok && d.Matches(m, pi) {
				dc.hits.Add(1)
				return d, nil
			}
		}
	}
	dc.misses.Add(1)

	d, err := exact.NewPrecomputedDistribution(m, pi)
	if err != nil {
		return nil, err
	}
	if !closed {
		dc.cache.Set(key, d, cost(d))
	}
	return d, nil
}

// each entry holds two float64 sequences plus the prefix sums
func cost(d *exact.PrecomputedDistribution) int64 {
	return int64(d.Len())*24 + 128
}

// Wait blocks until pending writes are visible to Get.
func (dc *DistributionCache) Wait() {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	if !dc.closed {
		dc.cache.Wait()
	}
}

// Stats returns hit and miss counts.
func (dc *DistributionCache) Stats() Stats {
	return Stats{Hits: dc.hits.Load(), Misses: dc.misses.Load()}
}

// Close releases the cache. Get keeps working afterwards, uncached.
func (dc *DistributionCache) Close() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return
	}
	dc.closed = true
	dc.cache.Close()
}
