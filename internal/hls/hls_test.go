package hls

import (
	"strings"
	"testing"
)

func TestBuildMediaTargetDurationRoundsUpToLongestSegment(t *testing.T) {
	segs := []Segment{
		{Ordinal: 0, Filename: "seg-00000.ts", Duration: 9.6},
		{Ordinal: 1, Filename: "seg-00001.ts", Duration: 4.1},
	}
	playlist := BuildMedia("video1", "video", segs, BaseURL{})

	if !strings.Contains(playlist, "#EXT-X-TARGETDURATION:10\n") {
		t.Fatalf("expected target duration 10, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "#EXT-X-MEDIA-SEQUENCE:0\n") {
		t.Fatalf("expected media sequence 0, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "#EXT-X-ENDLIST\n") {
		t.Fatalf("expected terminating ENDLIST, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "/hls/video1/video/seg-00000.ts") {
		t.Fatalf("expected relative segment URI, got:\n%s", playlist)
	}
}

func TestBuildMediaAbsoluteBaseURL(t *testing.T) {
	segs := []Segment{{Ordinal: 0, Filename: "seg-00000.ts", Duration: 6}}
	base := BaseURL{Absolute: true, Scheme: "https", Host: "cdn.example.com"}

	playlist := BuildMedia("video1", "video", segs, base)
	if !strings.Contains(playlist, "https://cdn.example.com/hls/video1/video/seg-00000.ts") {
		t.Fatalf("expected absolute segment URI, got:\n%s", playlist)
	}
}

func TestBuildMasterListsExactlyOneVideoVariant(t *testing.T) {
	variant := VideoVariant{Track: "video", BandwidthBps: 2_000_000, Width: 1920, Height: 1080}
	playlist := BuildMaster("video1", variant, nil, nil, BaseURL{})

	if strings.Count(playlist, "#EXT-X-STREAM-INF:") != 1 {
		t.Fatalf("expected exactly one video variant, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "RESOLUTION=1920x1080") {
		t.Fatalf("expected resolution attribute, got:\n%s", playlist)
	}
}

func TestBuildMasterIncludesSubtitlesAndAudio(t *testing.T) {
	variant := VideoVariant{Track: "video", BandwidthBps: 1000, AudioGroup: "aud", SubtitlesGroup: "subs"}
	audio := []AudioRendition{{Track: "audio-eng", Language: "eng", Name: "English", Default: true}}
	subs := []SubtitleRendition{{Language: "fre", Name: "French", Forced: false}}

	playlist := BuildMaster("video1", variant, audio, subs, BaseURL{})

	if !strings.Contains(playlist, `TYPE=AUDIO`) || !strings.Contains(playlist, `LANGUAGE="eng"`) {
		t.Fatalf("expected audio rendition, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, `TYPE=SUBTITLES`) || !strings.Contains(playlist, `LANGUAGE="fre"`) {
		t.Fatalf("expected subtitle rendition, got:\n%s", playlist)
	}
}

