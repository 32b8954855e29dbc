// Package cache implements the byte-bounded, TTL-aware segment cache and
// its low-priority prefetcher, spec §4.3. It never talks to the Remote
// Blob Client directly; callers supply a FetchFunc closure.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Key identifies one cached segment or subtitle file.
type Key struct {
	VideoID string
	Ordinal int
}

func (k Key) flightKey() string {
	return fmt.Sprintf("%s/%d", k.VideoID, k.Ordinal)
}

// Value is the full bytes of a segment plus its media type, spec §4.3
// "Keys and values".
type Value struct {
	Data        []byte
	ContentType string
}

func (v Value) size() int64 {
	return int64(len(v.Data))
}

// Backend is implemented by every interchangeable cache storage strategy
// (memory, disk, redis).
type Backend interface {
	Get(key Key) (Value, bool)
	Set(key Key, value Value)
	Delete(key Key)
	Len() int
	Bytes() int64
	Evictions() int64
}

// FetchFunc retrieves a segment from the Remote Blob Client on a cache
// miss.
type FetchFunc func(ctx context.Context, key Key) (Value, error)

// Stats mirrors spec §4.3's read-only observability counters.
type Stats struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	BytesServed      int64
	CurrentSize      int64
	CurrentEntries   int64
	PrefetchSuccess  int64
	PrefetchFailures int64
}

// Cache wraps a Backend with single-flight fetch deduplication and
// counters.
type Cache struct {
	backend Backend
	group   singleflight.Group

	hits, misses     atomic.Int64
	bytesServed      atomic.Int64
	prefetchSuccess  atomic.Int64
	prefetchFailures atomic.Int64
}

func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// Get returns the cached value for key, fetching it via fetch on a miss.
// At most one in-flight fetch exists per key at a time; concurrent callers
// for the same key share the result, spec §4.3 "Single-flight".
func (c *Cache) Get(ctx context.Context, key Key, fetch FetchFunc) (Value, error) {
	if v, ok := c.backend.Get(key); ok {
		c.hits.Add(1)
		c.bytesServed.Add(v.size())
		return v, nil
	}

	c.misses.Add(1)

	v, err, _ := c.group.Do(key.flightKey(), func() (interface{}, error) {
		fetched, err := fetch(ctx, key)
		if err != nil {
			return Value{}, err
		}
		c.backend.Set(key, fetched)
		return fetched, nil
	})
	if err != nil {
		return Value{}, err
	}

	value := v.(Value)
	c.bytesServed.Add(value.size())
	return value, nil
}

// Peek reports whether key is already present without fetching it.
func (c *Cache) Peek(key Key) bool {
	_, ok := c.backend.Get(key)
	return ok
}

// Stats snapshots the current observability counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Evictions:        c.backend.Evictions(),
		BytesServed:      c.bytesServed.Load(),
		CurrentSize:      c.backend.Bytes(),
		CurrentEntries:   int64(c.backend.Len()),
		PrefetchSuccess:  c.prefetchSuccess.Load(),
		PrefetchFailures: c.prefetchFailures.Load(),
	}
}

// Clear drops every cache entry, spec §4.5 "/api/system/cache/clear", for
// backends that implement Clear (memory, disk). The redis backend has no
// Clear method, so for it this is a no-op.
func (c *Cache) Clear() {
	if clearer, ok := c.backend.(interface{ Clear() }); ok {
		clearer.Clear()
	}
}
