package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/transcoder"
)

// fakeDriver lets tests script Probe/Segment/Reencode without touching a
// real ffmpeg binary.
type fakeDriver struct {
	info          *transcoder.MediaInfo
	probeErr      error
	segmentByDur  map[float64][]transcoder.Segment
	segmentErr    error
	reencodeSizes map[string]int64
	subtitleErr   error
}

func (f *fakeDriver) Probe(ctx context.Context, path string) (*transcoder.MediaInfo, error) {
	return f.info, f.probeErr
}

func (f *fakeDriver) Segment(ctx context.Context, path, outputDir string, targetDuration float64, opts transcoder.SegmentOptions) ([]transcoder.Segment, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	segs, ok := f.segmentByDur[targetDuration]
	if !ok {
		return nil, apperr.New(apperr.TranscodeFailed, "no fixture for duration")
	}
	out := make([]transcoder.Segment, len(segs))
	for i, s := range segs {
		s.Path = filepath.Join(outputDir, s.Filename)
		out[i] = s
	}
	return out, nil
}

func (f *fakeDriver) Reencode(ctx context.Context, srcPath, outputPath string, targetBitrateKbps int) error {
	size := f.reencodeSizes[srcPath]
	return os.WriteFile(outputPath, make([]byte, size), 0o644)
}

func (f *fakeDriver) ExtractSubtitle(ctx context.Context, path string, streamIndex int, outputPath string) error {
	if f.subtitleErr != nil {
		return f.subtitleErr
	}
	return os.WriteFile(outputPath, []byte("WEBVTT\n"), 0o644)
}

func compatibleInfo() *transcoder.MediaInfo {
	return &transcoder.MediaInfo{VideoCodec: "h264", AudioCodec: "aac"}
}

func TestPlanFlagsIncompatibleContainerForFullTranscode(t *testing.T) {
	drv := &fakeDriver{info: &transcoder.MediaInfo{VideoCodec: "vp9", AudioCodec: "opus"}}
	pl := New(drv)

	result, err := pl.Plan(context.Background(), "in.mkv", t.TempDir(), Options{MaxSegmentBytes: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.FullTranscode {
		t.Fatal("expected FullTranscode=true for incompatible container")
	}
}

func TestPlanPicksFirstZeroOversizeDuration(t *testing.T) {
	drv := &fakeDriver{
		info: compatibleInfo(),
		segmentByDur: map[float64][]transcoder.Segment{
			30: {{Ordinal: 0, Filename: "a.ts", Bytes: 5000, Duration: 30}},
			25: {{Ordinal: 0, Filename: "b.ts", Bytes: 400, Duration: 25}},
		},
	}
	pl := New(drv)

	result, err := pl.Plan(context.Background(), "in.mp4", t.TempDir(), Options{MaxSegmentBytes: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChosenDuration != 25 {
		t.Fatalf("expected duration 25 (first zero-oversize candidate), got %v", result.ChosenDuration)
	}
	if len(result.Segments) != 1 || result.Segments[0].Bytes != 400 {
		t.Fatalf("unexpected segments: %+v", result.Segments)
	}
}

func TestPlanReencodesOversizeSegment(t *testing.T) {
	drv := &fakeDriver{
		info: compatibleInfo(),
		segmentByDur: map[float64][]transcoder.Segment{
			2: {{Ordinal: 0, Filename: "big.ts", Bytes: 5000, Duration: 2}},
		},
		reencodeSizes: map[string]int64{},
	}
	// only offer the smallest candidate so the search settles on it quickly
	pl := New(drv)

	dir := t.TempDir()
	drv.reencodeSizes[filepath.Join(dir, "pass-2000ms", "big.ts")] = 500

	result, err := pl.Plan(context.Background(), "in.mp4", dir, Options{
		MaxSegmentBytes: 1000,
		MinDuration:     2,
		MaxDuration:     2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected one resolved segment, got %d", len(result.Segments))
	}
	if result.Segments[0].Bytes != 500 {
		t.Fatalf("expected re-encoded size 500, got %d", result.Segments[0].Bytes)
	}
}

func TestPlanFailsWithPlanOversizeWhenSplitStillOversize(t *testing.T) {
	drv := &fakeDriver{
		info: compatibleInfo(),
		segmentByDur: map[float64][]transcoder.Segment{
			2: {{Ordinal: 0, Filename: "big.ts", Bytes: 5000, Duration: 2}},
			1: {
				{Ordinal: 0, Filename: "half-a.ts", Bytes: 5000, Duration: 1},
				{Ordinal: 0, Filename: "half-b.ts", Bytes: 5000, Duration: 1},
			},
		},
		reencodeSizes: map[string]int64{},
	}
	pl := New(drv)
	dir := t.TempDir()

	drv.reencodeSizes[filepath.Join(dir, "pass-2000ms", "big.ts")] = 5000
	drv.reencodeSizes[filepath.Join(dir, "pass-2000ms", "half-a.ts")] = 5000
	drv.reencodeSizes[filepath.Join(dir, "pass-2000ms", "half-b.ts")] = 5000

	_, err := pl.Plan(context.Background(), "in.mp4", dir, Options{
		MaxSegmentBytes: 1000,
		MinDuration:     2,
		MaxDuration:     2,
	})
	if err == nil {
		t.Fatal("expected PLAN_OVERSIZE error")
	}
	if apperr.KindOf(err) != apperr.PlanOversize {
		t.Fatalf("expected PlanOversize kind, got %v", apperr.KindOf(err))
	}
}

func TestPlanCarriesProbedInfoAndExtractsSubtitles(t *testing.T) {
	info := compatibleInfo()
	info.Duration = 30 * 1e9 // 30s, in time.Duration nanoseconds
	info.SubtitleTracks = []transcoder.SubtitleTrack{
		{Index: 2, Codec: "subrip", Language: "en", Title: "English"},
	}
	drv := &fakeDriver{
		info: info,
		segmentByDur: map[float64][]transcoder.Segment{
			30: {{Ordinal: 0, Filename: "a.ts", Bytes: 400, Duration: 30}},
		},
	}
	pl := New(drv)

	result, err := pl.Plan(context.Background(), "in.mp4", t.TempDir(), Options{MaxSegmentBytes: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Info == nil || result.Info.VideoCodec != "h264" {
		t.Fatalf("expected probed MediaInfo to be carried on the result, got %+v", result.Info)
	}
	if len(result.Subtitles) != 1 {
		t.Fatalf("expected 1 extracted subtitle, got %d", len(result.Subtitles))
	}
	sub := result.Subtitles[0]
	if sub.Language != "en" || sub.Title != "English" || sub.Codec != "vtt" {
		t.Fatalf("unexpected subtitle metadata: %+v", sub)
	}
	if _, err := os.Stat(sub.Path); err != nil {
		t.Fatalf("expected extracted subtitle file to exist: %v", err)
	}
}

func TestPlanSkipsSubtitleTrackWhenExtractionFails(t *testing.T) {
	info := compatibleInfo()
	info.SubtitleTracks = []transcoder.SubtitleTrack{{Index: 2, Codec: "dvb_subtitle"}}
	drv := &fakeDriver{
		info: info,
		segmentByDur: map[float64][]transcoder.Segment{
			30: {{Ordinal: 0, Filename: "a.ts", Bytes: 400, Duration: 30}},
		},
		subtitleErr: apperr.New(apperr.TranscodeFailed, "unsupported codec"),
	}
	pl := New(drv)

	result, err := pl.Plan(context.Background(), "in.mp4", t.TempDir(), Options{MaxSegmentBytes: 1000})
	if err != nil {
		t.Fatalf("subtitle extraction failure must not fail the whole plan: %v", err)
	}
	if len(result.Subtitles) != 0 {
		t.Fatalf("expected the unextractable track to be skipped, got %+v", result.Subtitles)
	}
}

func TestFilterScheduleRespectsBounds(t *testing.T) {
	got := filterSchedule(5, 20)
	want := []float64{20, 15, 10, 8, 6, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
