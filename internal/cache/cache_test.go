package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheGetFetchesOnceAndDeduplicatesConcurrentMiss(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))

	var fetchCount int32
	fetch := func(ctx context.Context, key Key) (Value, error) {
		atomic.AddInt32(&fetchCount, 1)
		return Value{Data: []byte("segment-bytes")}, nil
	}

	var wg sync.WaitGroup
	key := Key{VideoID: "v1", Ordinal: 0}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), key, fetch); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if fetchCount != 1 {
		t.Fatalf("expected exactly 1 fetch across concurrent misses, got %d", fetchCount)
	}

	stats := c.Stats()
	if stats.Misses < 1 {
		t.Fatalf("expected at least 1 miss recorded, got %d", stats.Misses)
	}
}

func TestCacheGetHitsAfterPopulated(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))
	key := Key{VideoID: "v1", Ordinal: 0}

	fetch := func(ctx context.Context, key Key) (Value, error) {
		return Value{Data: []byte("abc")}, nil
	}

	if _, err := c.Get(context.Background(), key, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Get(context.Background(), key, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := c.Stats()
	if stats.Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestCacheClear(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))
	key := Key{VideoID: "v1", Ordinal: 0}
	fetch := func(ctx context.Context, key Key) (Value, error) {
		return Value{Data: []byte("abc")}, nil
	}
	if _, err := c.Get(context.Background(), key, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Clear()
	if c.Peek(key) {
		t.Fatal("expected cache to be empty after Clear")
	}
}
