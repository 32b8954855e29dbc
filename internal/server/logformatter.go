package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

// logFormatter adapts chi's request logging middleware to zerolog, the
// same shape as go-transcode's server logger but structured instead of
// printf-style.
type logFormatter struct {
	logger zerolog.Logger
}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{
		logger:    f.logger,
		method:    r.Method,
		path:      r.URL.Path,
		requestID: middleware.GetReqID(r.Context()),
	}
}

type logEntry struct {
	logger    zerolog.Logger
	method    string
	path      string
	requestID string
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.Info().
		Str("request_id", e.requestID).
		Str("method", e.method).
		Str("path", e.path).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("http request")
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Str("request_id", e.requestID).
		Str("method", e.method).
		Str("path", e.path).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("http handler panicked")
}
