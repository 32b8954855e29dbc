// Package server wraps a chi router and http.Server with the
// bind/TLS/proxy/pprof/graceful-shutdown behavior of spec §6, grounded
// on go-transcode's internal/server package.
package server

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/config"
)

const pprofPath = "/debug/pprof"

// Server owns the chi mux and the underlying http.Server.
type Server struct {
	logger zerolog.Logger
	config *config.Server
	router *chi.Mux
	server *http.Server
}

// New builds a Server with the standard middleware stack: request ID,
// optional real-IP trust, zerolog request logging, panic recovery, and
// an optional pprof mount.
func New(cfg *config.Server) *Server {
	logger := log.With().Str("module", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)

	if cfg.Proxy {
		router.Use(middleware.RealIP)
	}

	router.Use(middleware.RequestLogger(&logFormatter{logger}))
	router.Use(middleware.Recoverer)

	if cfg.PProf {
		withPProf(router)
		logger.Info().Msgf("pprof endpoint mounted at %s", pprofPath)
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	return &Server{
		logger: logger,
		config: cfg,
		router: router,
		server: &http.Server{
			Addr:              cfg.Bind,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Mount lets the caller register routes on the underlying chi.Mux.
func (s *Server) Mount(fn func(r *chi.Mux)) {
	fn(s.router)
}

// MountCORS wraps the given handler with the HLS playback CORS policy,
// spec §4.5's "streaming routes are served with permissive CORS so
// browser-based players on other origins can fetch playlists/segments".
func (s *Server) MountCORS(pattern string, h http.Handler) {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Range", "Content-Type"},
	})
	s.router.Mount(pattern, c.Handler(h))
}

// Start begins serving in the background, choosing TLS if a cert/key
// pair is configured.
func (s *Server) Start() {
	if s.config.Cert != "" && s.config.Key != "" {
		s.logger.Warn().Msg("serving TLS directly; prefer a reverse proxy in production")
		go func() {
			if err := s.server.ListenAndServeTLS(s.config.Cert, s.config.Key); err != nil && err != http.ErrServerClosed {
				s.logger.Panic().Err(err).Msg("unable to start https server")
			}
		}()
		s.logger.Info().Msgf("https listening on %s", s.server.Addr)
		return
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Panic().Err(err).Msg("unable to start http server")
		}
	}()
	s.logger.Info().Msgf("http listening on %s", s.server.Addr)
}

// Shutdown drains in-flight requests for up to ShutdownGraceSeconds
// before forcibly closing, spec §6.
func (s *Server) Shutdown() error {
	grace := time.Duration(s.config.ShutdownGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func withPProf(r *chi.Mux) {
	r.Route(pprofPath, func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/{action}", func(w http.ResponseWriter, r *http.Request) {
			switch chi.URLParam(r, "action") {
			case "cmdline":
				pprof.Cmdline(w, r)
			case "profile":
				pprof.Profile(w, r)
			case "symbol":
				pprof.Symbol(w, r)
			case "trace":
				pprof.Trace(w, r)
			default:
				pprof.Handler(chi.URLParam(r, "action")).ServeHTTP(w, r)
			}
		})
	})
}
