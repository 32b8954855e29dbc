package httpapi

import (
	"net/http"

	"github.com/stashcast/stashcast/internal/hls"
)

// resolveBaseURL implements spec §4.5 "Public vs local base URL": prefer
// the configured public domain (with FORCE_HTTPS), otherwise fall back to
// the request's own Host header.
func (a *API) resolveBaseURL(r *http.Request) hls.BaseURL {
	scheme := "http"
	if a.cfg.ForceHTTPS || r.TLS != nil {
		scheme = "https"
	}

	host := a.cfg.PublicDomain
	if host == "" {
		host = r.Host
	}

	return hls.BaseURL{Absolute: true, Scheme: scheme, Host: host}
}
