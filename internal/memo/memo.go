// Package memo provides short-lived, per-pipeline-run memoization so that
// a user or beatmap looked up twice within a single fan-out does one HTTP
// round trip instead of two.
package memo

import (
	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

// Cache memoizes arbitrary (kind, id) -> value lookups for the lifetime of
// one pipeline run. kind disambiguates key spaces that share an integer ID
// domain (e.g. a userID and a beatmapID that happen to collide numerically).
type Cache[V any] struct {
	underlying otter.Cache[uint64, V]
}

// New builds a Cache sized for a single run's worth of lookups. capacity is
// an upper bound on distinct entries, not a hard limit on run size — otter
// evicts least-valuable entries past it, which only costs a redundant
// upstream call, never correctness.
func New[V any](capacity int) (*Cache[V], error) {
	c, err := otter.MustBuilder[uint64, V](capacity).Build()
	if err != nil {
		return nil, err
	}
	return &Cache[V]{underlying: c}, nil
}

// Key derives a cache key from a kind tag and an integer ID via xxh3, which
// is fast enough to hash on every lookup without becoming the bottleneck.
func Key(kind string, id int64) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(kind)
	_, _ = h.Write([]byte{
		byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24),
		byte(id >> 32), byte(id >> 40), byte(id >> 48), byte(id >> 56),
	})
	return h.Sum64()
}

// Get returns the memoized value for key, if present.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	return c.underlying.Get(key)
}

// Set memoizes value under key for the remainder of the run.
func (c *Cache[V]) Set(key uint64, value V) {
	c.underlying.Set(key, value)
}

// ResultMap is a concurrent-safe accumulator for fan-out results keyed by
// an integer ID (e.g. userID -> user object), used in place of a
// mutex-guarded map where the aggregation is genuinely a map.
type ResultMap[K comparable, V any] struct {
	m *xsync.Map[K, V]
}

// NewResultMap builds an empty ResultMap.
func NewResultMap[K comparable, V any]() *ResultMap[K, V] {
	return &ResultMap[K, V]{m: xsync.NewMap[K, V]()}
}

// Store records value under key.
func (r *ResultMap[K, V]) Store(key K, value V) {
	r.m.Store(key, value)
}

// Load retrieves the value stored under key, if any.
func (r *ResultMap[K, V]) Load(key K) (V, bool) {
	return r.m.Load(key)
}

// Len reports the number of entries currently stored.
func (r *ResultMap[K, V]) Len() int {
	return r.m.Size()
}

// Range iterates every (key, value) pair; iteration order is unspecified,
// matching the spec's "fan-out internal ordering is immaterial" guarantee.
func (r *ResultMap[K, V]) Range(f func(key K, value V) bool) {
	r.m.Range(f)
}
