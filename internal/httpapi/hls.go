package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/cache"
	"github.com/stashcast/stashcast/internal/hls"
	"github.com/stashcast/stashcast/internal/store"
)

// masterPlaylist serves GET /hls/{id}/master.m3u8, spec §4.4/§4.5.
func (a *API) masterPlaylist(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	video, err := a.store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, err)
		return
	}
	if video.Status != store.StatusActive {
		writeError(w, apperr.New(apperr.NotFound, "video is not yet active"))
		return
	}

	base := a.resolveBaseURL(r)
	variant := hls.VideoVariant{Track: videoTrack, BandwidthBps: estimateBandwidth(video)}

	var subtitles []hls.SubtitleRendition
	if len(video.SubtitleTracks) > 0 {
		variant.SubtitlesGroup = "subs"
		for _, t := range video.SubtitleTracks {
			subtitles = append(subtitles, hls.SubtitleRendition{
				Language: t.Language,
				Name:     t.Title,
				Default:  t.IsDefault,
				Forced:   t.IsForced,
			})
		}
	}

	playlist := hls.BuildMaster(videoID, variant, nil, subtitles, base)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write([]byte(playlist))
}

func estimateBandwidth(v *store.Video) int {
	if v.DurationSecs <= 0 {
		return 0
	}
	return int(float64(v.TotalBytes) * 8 / v.DurationSecs)
}

// mediaPlaylist serves GET /hls/{id}/{track}/playlist.m3u8, spec §4.4.
func (a *API) mediaPlaylist(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	video, err := a.store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, err)
		return
	}
	if video.Status != store.StatusActive {
		writeError(w, apperr.New(apperr.NotFound, "video is not yet active"))
		return
	}
	if len(video.Segments) != video.TotalSegments {
		_ = a.store.MarkError(r.Context(), videoID, "segment count does not match recorded total")
		writeError(w, apperr.New(apperr.IntegrityViolation, "segment count does not match recorded total"))
		return
	}

	segs := make([]hls.Segment, len(video.Segments))
	for i, s := range video.Segments {
		segs[i] = hls.Segment{Ordinal: s.Ordinal, Filename: s.Filename, Duration: s.Duration}
	}

	playlist := hls.BuildMedia(videoID, chi.URLParam(r, "track"), segs, a.resolveBaseURL(r))
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write([]byte(playlist))
}

// segment serves GET /hls/{id}/{track}/{segment}, spec §4.5 "Segment
// request handling".
func (a *API) segment(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "segment")

	seg, err := a.store.GetSegmentByFilename(r.Context(), videoID, filename)
	if err != nil {
		writeError(w, err)
		return
	}

	key := cache.Key{VideoID: videoID, Ordinal: seg.Ordinal}
	a.serveFromCache(w, r, a.segments, key, seg.AccountID, seg.Handle, "video/MP2T")

	if a.prefetcher != nil {
		if video, err := a.store.GetVideo(r.Context(), videoID); err == nil {
			a.prefetcher.Trigger(context.WithoutCancel(r.Context()), videoID, seg.Ordinal, video.TotalSegments)
		}
	}
}

// subtitle serves GET /hls/{id}/subtitles/{lang}, spec §4.5.
func (a *API) subtitle(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	lang := chi.URLParam(r, "lang")

	track, err := a.store.GetSubtitleTrack(r.Context(), videoID, lang)
	if err != nil {
		writeError(w, err)
		return
	}

	key := cache.Key{VideoID: videoID, Ordinal: -(track.TrackIndex + 1)}
	a.serveFromCache(w, r, a.subtitles, key, track.AccountID, track.Handle, subtitleContentType(track.Codec))
}

func subtitleContentType(codec string) string {
	switch codec {
	case "vtt", "webvtt":
		return "text/vtt"
	case "srt":
		return "application/x-subrip"
	default:
		return "application/octet-stream"
	}
}

// serveFromCache resolves key through cache, fetching from the blob
// client on a miss, and writes the result with periodic Flush calls. On a
// miss the whole object is read into memory and cached before the first
// byte is written to the client; only the write to the client is chunked.
func (a *API) serveFromCache(w http.ResponseWriter, r *http.Request, c *cache.Cache, key cache.Key, accountID, handle, contentType string) {
	value, err := c.Get(r.Context(), key, func(ctx context.Context, _ cache.Key) (cache.Value, error) {
		rc, _, err := a.blob.Download(ctx, accountID, handle)
		if err != nil {
			return cache.Value{}, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return cache.Value{}, apperr.Wrap(apperr.FetchFailed, err, "unable to read segment stream")
		}
		return cache.Value{Data: data, ContentType: contentType}, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", value.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	body := value.Data
	status := http.StatusOK
	if rangeHeader != "" {
		if start, end, ok := parseRange(rangeHeader, len(value.Data)); ok {
			body = value.Data[start : end+1]
			status = http.StatusPartialContent
			w.Header().Set("Content-Range", contentRangeHeader(start, end, len(value.Data)))
		}
	}

	w.WriteHeader(status)
	streamWithFlush(w, bytes.NewReader(body))
}
