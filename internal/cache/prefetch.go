package cache

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// prefetchJob describes one ordinal to warm.
type prefetchJob struct {
	ctx context.Context
	key Key
}

// Prefetcher runs a fixed-size worker pool that warms upcoming segments
// on a cache miss, spec §4.3 "Prefetch policy". It is structurally
// disjoint from the goroutine-per-request model foreground fetches use,
// so a saturated prefetch pool never delays a foreground fetch: jobs are
// dropped, not queued, once the pool's job channel is full.
type Prefetcher struct {
	cache  *Cache
	fetch  FetchFunc
	jobs   chan prefetchJob
	logger zerolog.Logger

	lookahead int
}

// NewPrefetcher starts workerCount goroutines draining a buffered job
// channel. lookahead is N, the number of sequential ordinals enqueued on
// each trigger.
func NewPrefetcher(cache *Cache, fetch FetchFunc, workerCount, lookahead, queueDepth int) *Prefetcher {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = workerCount
	}

	p := &Prefetcher{
		cache:     cache,
		fetch:     fetch,
		jobs:      make(chan prefetchJob, queueDepth),
		logger:    log.With().Str("module", "prefetcher").Logger(),
		lookahead: lookahead,
	}

	for i := 0; i < workerCount; i++ {
		go p.worker()
	}

	return p
}

func (p *Prefetcher) worker() {
	for job := range p.jobs {
		if p.cache.Peek(job.key) {
			continue
		}

		_, err, _ := p.cache.group.Do(job.key.flightKey(), func() (interface{}, error) {
			v, err := p.fetch(job.ctx, job.key)
			if err != nil {
				return Value{}, err
			}
			p.cache.backend.Set(job.key, v)
			return v, nil
		})

		if err != nil {
			p.cache.prefetchFailures.Add(1)
			p.logger.Debug().Err(err).Str("video_id", job.key.VideoID).Int("ordinal", job.key.Ordinal).Msg("prefetch failed")
			continue
		}
		p.cache.prefetchSuccess.Add(1)
	}
}

// Trigger enqueues the next N sequential ordinals after fromOrdinal for
// videoID, up to totalSegments-1. Non-blocking: if the job queue is full
// a job is simply skipped, per "prefetch must never block foreground
// fetches".
func (p *Prefetcher) Trigger(ctx context.Context, videoID string, fromOrdinal, totalSegments int) {
	for i := 1; i <= p.lookahead; i++ {
		ordinal := fromOrdinal + i
		if ordinal >= totalSegments {
			break
		}
		key := Key{VideoID: videoID, Ordinal: ordinal}

		select {
		case p.jobs <- prefetchJob{ctx: ctx, key: key}:
		default:
			// pool saturated; drop the job rather than block the caller
		}
	}
}
