// Package stashcast wires the Metadata Store, Remote Blob Client,
// Transcoder Driver, Segment Planner, Upload Distributor, Segment Cache,
// Catalog Coordinator and Streaming HTTP Server into one running
// process, following the teacher repo's singleton Main/Service pattern
// so cmd/serve.go has one object to register config groups against and
// hand off to.
package stashcast

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stashcast/stashcast/internal/blobclient"
	"github.com/stashcast/stashcast/internal/cache"
	"github.com/stashcast/stashcast/internal/catalog"
	"github.com/stashcast/stashcast/internal/config"
	"github.com/stashcast/stashcast/internal/distributor"
	"github.com/stashcast/stashcast/internal/httpapi"
	"github.com/stashcast/stashcast/internal/planner"
	"github.com/stashcast/stashcast/internal/server"
	"github.com/stashcast/stashcast/internal/store"
	"github.com/stashcast/stashcast/internal/transcoder"
)

// Service is the process-wide Main instance, populated at package init
// and handed to every cmd/*.go subcommand that needs to register config
// flags against it before Cobra parses argv.
var Service *Main

func init() {
	Service = &Main{
		ServerConfig:      &config.Server{},
		StoreConfig:       &config.Store{},
		PlannerConfig:     &config.Planner{},
		DistributorConfig: &config.Distributor{},
		CacheConfig:       &config.Cache{},
		AccountsConfig:    &config.Accounts{},
	}
}

// Main owns every long-lived component and the config groups that build
// them, spec §4.9's process boundary.
type Main struct {
	ServerConfig      *config.Server
	StoreConfig       *config.Store
	PlannerConfig     *config.Planner
	DistributorConfig *config.Distributor
	CacheConfig       *config.Cache
	AccountsConfig    *config.Accounts

	logger zerolog.Logger

	store       *store.Store
	blob        *blobclient.Client
	planner     *planner.Planner
	distributor *distributor.Distributor
	segments    *cache.Cache
	subtitles   *cache.Cache
	prefetcher  *cache.Prefetcher
	catalog     *catalog.Coordinator
	api         *httpapi.API
	srv         *server.Server
}

// Preflight sets up the module logger. It runs once cobra has parsed
// flags but before Start, mirroring the teacher's Preflight/Start split.
func (m *Main) Preflight() {
	m.logger = log.With().Str("service", "main").Logger()
}

// Start builds every component from the resolved config groups in
// dependency order and starts the HTTP server. It panics on any
// unrecoverable startup error, matching the teacher's fail-fast startup.
func (m *Main) Start() {
	if err := m.AccountsConfig.Validate(); err != nil {
		m.logger.Panic().Err(err).Msg("invalid accounts configuration")
	}

	var err error
	m.store, err = store.Open(m.StoreConfig.DBPath)
	if err != nil {
		m.logger.Panic().Err(err).Msg("unable to open metadata store")
	}

	m.blob, err = blobclient.New(m.AccountsConfig.List)
	if err != nil {
		m.logger.Panic().Err(err).Msg("unable to build remote blob client")
	}

	driver := transcoder.New(transcoder.FFmpegConfig{
		FFmpegBinary:  m.PlannerConfig.FFmpegBinary,
		FFprobeBinary: m.PlannerConfig.FFprobeBinary,
		HardwareAccel: m.PlannerConfig.HardwareAccel,
	})
	m.planner = planner.New(driver)

	m.distributor = distributor.New(m.blob, m.AccountsConfig.List, m.DistributorConfig.UploadConcurrency, m.DistributorConfig.UploadRetries)

	m.segments, err = m.buildCache("segments")
	if err != nil {
		m.logger.Panic().Err(err).Msg("unable to build segment cache")
	}
	m.subtitles, err = m.buildCache("subtitles")
	if err != nil {
		m.logger.Panic().Err(err).Msg("unable to build subtitle cache")
	}

	if m.CacheConfig.PreloadSegments > 0 {
		m.prefetcher = cache.NewPrefetcher(m.segments, m.segmentFetchFunc(), m.CacheConfig.MaxConcurrentPreloads, m.CacheConfig.PreloadSegments, m.CacheConfig.MaxConcurrentPreloads*2)
	}

	m.catalog = catalog.New(m.store, m.planner, m.distributor, m.blob, m.PlannerConfig.ScratchDir)

	resumeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.catalog.Resume(resumeCtx); err != nil {
		m.logger.Error().Err(err).Msg("resume scan reported an error, continuing startup")
	}

	m.api = httpapi.New(m.store, m.catalog, m.segments, m.subtitles, m.prefetcher, m.blob, m.AccountsConfig.List, m.ServerConfig, *m.PlannerConfig)

	m.srv = server.New(m.ServerConfig)
	m.srv.Mount(func(r *chi.Mux) { m.api.Routes(r) })

	streamRouter := chi.NewRouter()
	m.api.StreamRoutes(streamRouter)
	m.srv.MountCORS("/hls", streamRouter)

	m.srv.Start()
}

// buildCache constructs the cache backend selected by CacheConfig.Type
// (memory | disk | redis), spec §4.3 "Backends", using a distinct
// subdirectory/key-prefix per named cache so segments and subtitles
// never collide when sharing an on-disk or redis backend.
func (m *Main) buildCache(name string) (*cache.Cache, error) {
	ttl := time.Duration(m.CacheConfig.TTLSeconds) * time.Second

	switch m.CacheConfig.Type {
	case "disk":
		dir := m.CacheConfig.Dir
		if dir == "" {
			return nil, fmt.Errorf("cache-dir is required when cache-type=disk")
		}
		backend, err := cache.NewDiskBackend(filepath.Join(dir, name), m.CacheConfig.SizeBytes, ttl)
		if err != nil {
			return nil, err
		}
		return cache.New(backend), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: m.CacheConfig.RedisAddr})
		return cache.New(cache.NewRedisBackend(client, name+":", ttl)), nil
	default:
		return cache.New(cache.NewMemoryBackend(m.CacheConfig.SizeBytes, ttl)), nil
	}
}

// segmentFetchFunc looks up the (account, handle) for a prefetch
// ordinal and downloads it through the blob client, the same path the
// foreground cache miss in internal/httpapi takes.
func (m *Main) segmentFetchFunc() cache.FetchFunc {
	return func(ctx context.Context, key cache.Key) (cache.Value, error) {
		seg, err := m.store.GetSegment(ctx, key.VideoID, key.Ordinal)
		if err != nil {
			return cache.Value{}, err
		}
		rc, _, err := m.blob.Download(ctx, seg.AccountID, seg.Handle)
		if err != nil {
			return cache.Value{}, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return cache.Value{}, err
		}
		return cache.Value{Data: data, ContentType: "video/MP2T"}, nil
	}
}

// Shutdown drains the HTTP server and closes the metadata store.
func (m *Main) Shutdown() {
	if m.srv != nil {
		if err := m.srv.Shutdown(); err != nil {
			m.logger.Err(err).Msg("server shutdown with an error")
		} else {
			m.logger.Debug().Msg("server shutdown")
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Err(err).Msg("metadata store close with an error")
		}
	}
}

// ServeCommand is the cobra Run function for the "serve" subcommand.
func (m *Main) ServeCommand(cmd *cobra.Command, args []string) {
	m.logger.Info().Msg("starting stashcast server")
	m.Start()
	m.logger.Info().Msg("stashcast ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	m.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	m.Shutdown()
	m.logger.Info().Msg("shutdown complete")
}
