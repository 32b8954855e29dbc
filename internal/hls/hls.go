// Package hls generates HLS master and media playlists as pure functions
// of metadata, spec §4.4. It holds no state and never touches disk or the
// network.
package hls

import (
	"fmt"
	"math"
	"strings"
)

// BaseURL selects how playlist/segment URIs are rendered: relative
// (path-only, for players resolving against the playlist's own URL) or
// absolute (fully qualified), spec §4.4 "URI schemes".
type BaseURL struct {
	Absolute bool
	Scheme   string
	Host     string
}

func (b BaseURL) join(path string) string {
	if !b.Absolute {
		return path
	}
	return fmt.Sprintf("%s://%s%s", b.Scheme, b.Host, path)
}

func (b BaseURL) MediaPlaylistURI(videoID, track string) string {
	return b.join(fmt.Sprintf("/hls/%s/%s/playlist.m3u8", videoID, track))
}

func (b BaseURL) SegmentURI(videoID, track string, filename string) string {
	return b.join(fmt.Sprintf("/hls/%s/%s/%s", videoID, track, filename))
}

func (b BaseURL) SubtitleURI(videoID, lang string) string {
	return b.join(fmt.Sprintf("/hls/%s/subtitles/%s", videoID, lang))
}

// AudioRendition is one EXT-X-MEDIA:TYPE=AUDIO entry.
type AudioRendition struct {
	Track    string
	Language string
	Name     string
	Default  bool
}

// SubtitleRendition is one EXT-X-MEDIA:TYPE=SUBTITLES entry.
type SubtitleRendition struct {
	Language string
	Name     string
	Default  bool
	Forced   bool
}

// VideoVariant describes the single video variant a master playlist
// advertises, spec §4.4 "exactly one video variant".
type VideoVariant struct {
	Track          string
	BandwidthBps   int
	Width, Height  int
	AudioGroup     string
	SubtitlesGroup string
}

// BuildMaster produces a master playlist listing exactly one video
// variant, any audio renditions, and subtitle media entries, spec §4.4.
func BuildMaster(videoID string, variant VideoVariant, audio []AudioRendition, subtitles []SubtitleRendition, base BaseURL) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, a := range audio {
		def := "NO"
		if a.Default {
			def = "YES"
		}
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=%q,NAME=%q,LANGUAGE=%q,DEFAULT=%s,AUTOSELECT=YES,URI=%q\n",
			variant.AudioGroup, a.Name, a.Language, def, base.MediaPlaylistURI(videoID, a.Track))
	}

	for _, s := range subtitles {
		def := "NO"
		if s.Default {
			def = "YES"
		}
		forced := "NO"
		if s.Forced {
			forced = "YES"
		}
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=%q,NAME=%q,LANGUAGE=%q,DEFAULT=%s,FORCED=%s,AUTOSELECT=YES,URI=%q\n",
			variant.SubtitlesGroup, s.Name, s.Language, def, forced, base.SubtitleURI(videoID, s.Language))
	}

	attrs := fmt.Sprintf("BANDWIDTH=%d,RESOLUTION=%dx%d", variant.BandwidthBps, variant.Width, variant.Height)
	if variant.AudioGroup != "" {
		attrs += fmt.Sprintf(",AUDIO=%q", variant.AudioGroup)
	}
	if variant.SubtitlesGroup != "" {
		attrs += fmt.Sprintf(",SUBTITLES=%q", variant.SubtitlesGroup)
	}
	fmt.Fprintf(&b, "#EXT-X-STREAM-INF:%s\n", attrs)
	b.WriteString(base.MediaPlaylistURI(videoID, variant.Track))
	b.WriteString("\n")

	return b.String()
}

// Segment is the minimal shape BuildMedia needs from a stored segment row.
type Segment struct {
	Ordinal  int
	Filename string
	Duration float64
}

// BuildMedia produces a media playlist with EXT-X-VERSION:3,
// EXT-X-TARGETDURATION rounded up to the longest segment, a single
// EXT-X-MEDIA-SEQUENCE:0, one EXTINF/URI pair per segment in ordinal
// order, and a terminating EXT-X-ENDLIST, spec §4.4 "Media playlist".
// Every video served by this system is fully processed before it becomes
// playable (§9), so the playlist is always a VOD (ended) playlist.
func BuildMedia(videoID, track string, segments []Segment, base BaseURL) string {
	var b strings.Builder

	target := 0.0
	for _, s := range segments {
		if s.Duration > target {
			target = s.Duration
		}
	}

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(target)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for _, s := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n", s.Duration)
		b.WriteString(base.SegmentURI(videoID, track, s.Filename))
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}
