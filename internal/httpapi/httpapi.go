// Package httpapi mounts the Streaming HTTP Server's routes, spec §4.5,
// on a chi.Router: video/upload management, HLS playback, and system
// endpoints. It is the thin translation layer between HTTP and the
// catalog/store/cache/hls packages. It never talks to the transcoder; it
// reaches the blob client only through the Downloader interface, to fill
// a cache miss and for the health check.
package httpapi

import (
	"context"
	"io"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/cache"
	"github.com/stashcast/stashcast/internal/catalog"
	"github.com/stashcast/stashcast/internal/config"
	"github.com/stashcast/stashcast/internal/planner"
	"github.com/stashcast/stashcast/internal/store"
)

// videoTrack is the only media track this system ever stores: one video
// variant per video, per spec §4.4 "exactly one video variant".
const videoTrack = "video"

// Downloader is the subset of the Remote Blob Client the API needs to
// serve segment/subtitle bytes on a cache miss.
type Downloader interface {
	Download(ctx context.Context, accountID, handle string) (io.ReadCloser, int64, error)
	Ping(ctx context.Context, accountID string) error
}

// API glues the HTTP surface to the catalog, store, cache, and blob
// client.
type API struct {
	store      *store.Store
	catalog    *catalog.Coordinator
	segments   *cache.Cache
	subtitles  *cache.Cache
	prefetcher *cache.Prefetcher
	blob       Downloader
	accounts   []config.Account
	cfg        *config.Server
	plannerCfg config.Planner
	jobs       *jobRegistry
	logger     zerolog.Logger
}

// New builds an API instance. prefetcher may be nil, disabling the
// read-ahead trigger on segment requests.
func New(st *store.Store, cat *catalog.Coordinator, segments, subtitles *cache.Cache, prefetcher *cache.Prefetcher, blob Downloader, accounts []config.Account, cfg *config.Server, plannerCfg config.Planner) *API {
	return &API{
		store:      st,
		catalog:    cat,
		segments:   segments,
		subtitles:  subtitles,
		prefetcher: prefetcher,
		blob:       blob,
		accounts:   accounts,
		cfg:        cfg,
		plannerCfg: plannerCfg,
		jobs:       newJobRegistry(),
		logger:     log.With().Str("module", "httpapi").Logger(),
	}
}

// Routes mounts the management API plus the supplemented health and
// subtitle-listing endpoints onto r. It excludes the streaming routes,
// which the caller mounts separately (typically behind permissive CORS)
// via StreamRoutes.
func (a *API) Routes(r chi.Router) {
	r.Get("/api/videos", a.listVideos)
	r.Get("/api/videos/{id}", a.getVideo)
	r.Delete("/api/videos/{id}", a.deleteVideo)
	r.Get("/api/videos/{id}/subtitles", a.listSubtitles)

	r.Post("/api/upload", a.upload)
	r.Get("/api/upload/{job}/progress", a.uploadProgress)

	r.Get("/api/system/cache/stats", a.cacheStats)
	r.Post("/api/system/cache/clear", a.cacheClear)
	r.Get("/api/system/health", a.health)
}

// StreamRoutes mounts the HLS playback routes of spec §4.4/§4.5, meant
// to be served with permissive CORS so browser players on other origins
// can fetch playlists and segments.
func (a *API) StreamRoutes(r chi.Router) {
	r.Get("/{id}/master.m3u8", a.masterPlaylist)
	r.Get("/{id}/{track}/playlist.m3u8", a.mediaPlaylist)
	r.Get("/{id}/{track}/{segment}", a.segment)
	r.Get("/{id}/subtitles/{lang}", a.subtitle)
}

func (a *API) plannerOptions() planner.Options {
	return planner.Options{
		MaxSegmentBytes: a.plannerCfg.MaxSegmentBytes,
		MinDuration:     a.plannerCfg.MinSegmentDuration,
		MaxDuration:     a.plannerCfg.MaxSegmentDuration,
		Budget:          time.Duration(a.plannerCfg.PlannerBudgetSecs) * time.Second,
		ScratchDir:      a.plannerCfg.ScratchDir,
	}
}
