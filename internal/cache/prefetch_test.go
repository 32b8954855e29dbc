package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPrefetcherWarmsUpcomingOrdinals(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))

	var mu sync.Mutex
	fetched := map[int]bool{}
	fetch := func(ctx context.Context, key Key) (Value, error) {
		mu.Lock()
		fetched[key.Ordinal] = true
		mu.Unlock()
		return Value{Data: []byte("x")}, nil
	}

	p := NewPrefetcher(c, fetch, 2, 3, 8)
	p.Trigger(context.Background(), "v1", 0, 10)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(fetched)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, ord := range []int{1, 2, 3} {
		if !fetched[ord] {
			t.Fatalf("expected ordinal %d to be prefetched, fetched=%v", ord, fetched)
		}
	}
}

func TestPrefetcherSkipsAlreadyCachedKey(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))
	c.backend.Set(Key{VideoID: "v1", Ordinal: 1}, Value{Data: []byte("cached")})

	var fetchCount int
	var mu sync.Mutex
	fetch := func(ctx context.Context, key Key) (Value, error) {
		mu.Lock()
		fetchCount++
		mu.Unlock()
		return Value{Data: []byte("x")}, nil
	}

	p := NewPrefetcher(c, fetch, 1, 1, 4)
	p.Trigger(context.Background(), "v1", 0, 10)

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fetchCount != 0 {
		t.Fatalf("expected already-cached ordinal to be skipped, got %d fetch calls", fetchCount)
	}
}

func TestPrefetcherDoesNotExceedTotalSegments(t *testing.T) {
	c := New(NewMemoryBackend(1000, 0))

	var mu sync.Mutex
	var maxOrdinalSeen int
	fetch := func(ctx context.Context, key Key) (Value, error) {
		mu.Lock()
		if key.Ordinal > maxOrdinalSeen {
			maxOrdinalSeen = key.Ordinal
		}
		mu.Unlock()
		return Value{Data: []byte("x")}, nil
	}

	p := NewPrefetcher(c, fetch, 2, 5, 8)
	p.Trigger(context.Background(), "v1", 8, 10)

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if maxOrdinalSeen >= 10 {
		t.Fatalf("expected prefetch to stay under totalSegments=10, saw ordinal %d", maxOrdinalSeen)
	}
}
