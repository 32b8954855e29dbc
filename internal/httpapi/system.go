package httpapi

import "net/http"

type cacheStatsResponse struct {
	Segments cacheCounters `json:"segments"`
	Subtitles cacheCounters `json:"subtitles"`
}

type cacheCounters struct {
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
	Evictions        int64 `json:"evictions"`
	BytesServed      int64 `json:"bytes_served"`
	CurrentSize      int64 `json:"current_size_bytes"`
	CurrentEntries   int64 `json:"current_entries"`
	PrefetchSuccess  int64 `json:"prefetch_success"`
	PrefetchFailures int64 `json:"prefetch_failures"`
}

// cacheStats serves GET /api/system/cache/stats, spec §4.5.
func (a *API) cacheStats(w http.ResponseWriter, r *http.Request) {
	segStats := a.segments.Stats()
	subStats := a.subtitles.Stats()

	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Segments:  cacheCounters(segStats),
		Subtitles: cacheCounters(subStats),
	})
}

// cacheClear serves POST /api/system/cache/clear, spec §4.5.
func (a *API) cacheClear(w http.ResponseWriter, r *http.Request) {
	a.segments.Clear()
	a.subtitles.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	OK       bool            `json:"ok"`
	Accounts map[string]bool `json:"accounts"`
}

// health serves GET /api/system/health, supplemented from the original's
// container/CLI healthcheck endpoint.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if _, _, err := a.store.ListVideos(r.Context(), 0, 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false})
		return
	}

	accounts := make(map[string]bool, len(a.accounts))
	ok := true
	for _, acct := range a.accounts {
		err := a.blob.Ping(r.Context(), acct.ID)
		accounts[acct.ID] = err == nil
		if err != nil {
			ok = false
		}
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{OK: ok, Accounts: accounts})
}
