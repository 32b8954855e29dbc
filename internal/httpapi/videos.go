package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/stashcast/stashcast/internal/store"
)

const (
	defaultPageLimit = 25
	maxPageLimit     = 200
)

type videoSummary struct {
	VideoID       string  `json:"video_id"`
	Filename      string  `json:"filename"`
	Status        string  `json:"status"`
	DurationSecs  float64 `json:"duration_secs"`
	TotalSegments int     `json:"total_segments"`
	TotalBytes    int64   `json:"total_bytes"`
}

type subtitleSummary struct {
	Language          string `json:"language"`
	Title             string `json:"title"`
	IsDefault         bool   `json:"is_default"`
	IsForced          bool   `json:"is_forced"`
	IsHearingImpaired bool   `json:"is_hearing_impaired"`
}

type videoDetail struct {
	videoSummary
	Container   string            `json:"container"`
	VideoCodec  string            `json:"video_codec"`
	AudioCodec  string            `json:"audio_codec"`
	ErrorDetail string            `json:"error_detail,omitempty"`
	Subtitles   []subtitleSummary `json:"subtitles"`
}

func toSummary(v store.Video) videoSummary {
	return videoSummary{
		VideoID:       v.VideoID,
		Filename:      v.Filename,
		Status:        string(v.Status),
		DurationSecs:  v.DurationSecs,
		TotalSegments: v.TotalSegments,
		TotalBytes:    v.TotalBytes,
	}
}

func toSubtitleSummaries(tracks []store.SubtitleTrack) []subtitleSummary {
	out := make([]subtitleSummary, len(tracks))
	for i, t := range tracks {
		out[i] = subtitleSummary{
			Language:          t.Language,
			Title:             t.Title,
			IsDefault:         t.IsDefault,
			IsForced:          t.IsForced,
			IsHearingImpaired: t.IsHearingImpaired,
		}
	}
	return out
}

// listVideos serves GET /api/videos, spec §4.5.
func (a *API) listVideos(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxPageLimit {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	videos, total, err := a.store.ListVideos(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]videoSummary, len(videos))
	for i, v := range videos {
		summaries[i] = toSummary(v)
	}

	writeJSON(w, http.StatusOK, struct {
		Videos []videoSummary `json:"videos"`
		Total  int64          `json:"total"`
	}{summaries, total})
}

// getVideo serves GET /api/videos/{id}, spec §4.5.
func (a *API) getVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	video, err := a.store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := videoDetail{
		videoSummary: toSummary(*video),
		Container:    video.Container,
		VideoCodec:   video.VideoCodec,
		AudioCodec:   video.AudioCodec,
		ErrorDetail:  video.ErrorDetail,
		Subtitles:    toSubtitleSummaries(video.SubtitleTracks),
	}
	writeJSON(w, http.StatusOK, detail)
}

// listSubtitles serves GET /api/videos/{id}/subtitles, supplemented from
// the original's dedicated subtitle listing endpoint.
func (a *API) listSubtitles(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	video, err := a.store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubtitleSummaries(video.SubtitleTracks))
}

// deleteVideo serves DELETE /api/videos/{id}, spec §4.9 "Delete". The
// database rows are gone by the time this returns. The response's job_id
// field carries the deleted video's id; the best-effort remote cleanup
// runs in a background goroutine that is not registered as a job, so the
// caller has no way to observe it.
func (a *API) deleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if err := a.catalog.Delete(r.Context(), videoID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}{JobID: videoID, Status: "deleted"})
}
