// Package planner turns a probed source video into a final list of
// on-disk transport-stream segments that all satisfy a configured byte
// cap, spec §4.1. It drives the transcoder.Driver capability interface
// and never shells out to ffmpeg itself.
package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/transcoder"
)

// candidateDurations is the geometric schedule the optimal-duration search
// walks, descending from 30s to 2s as named in spec §4.1.
var candidateDurations = []float64{30, 25, 20, 15, 10, 8, 6, 5, 3, 2}

const reencodeSafety = 0.9

// Options parameterizes a Plan call, sourced from config.Planner.
type Options struct {
	MaxSegmentBytes int64
	MinDuration     float64
	MaxDuration     float64
	Budget          time.Duration
	ScratchDir      string
}

// Result is the planner's final answer for one video.
type Result struct {
	FullTranscode  bool
	Segments       []transcoder.Segment
	ChosenDuration float64
	Info           *transcoder.MediaInfo
	Subtitles      []SubtitleFile
}

// SubtitleFile is one subtitle track extracted to a local WebVTT file,
// ready for the distributor to upload, spec §3 "Subtitle Track".
type SubtitleFile struct {
	Language          string
	Title             string
	Codec             string
	IsDefault         bool
	IsForced          bool
	IsHearingImpaired bool
	Path              string
	Filename          string
}

// Planner runs the probe/search/reencode-overflow sequence of spec §4.1.
type Planner struct {
	driver transcoder.Driver
	logger zerolog.Logger
}

func New(driver transcoder.Driver) *Planner {
	return &Planner{driver: driver, logger: log.With().Str("module", "planner").Logger()}
}

// Plan produces a final segment list for sourcePath, satisfying
// Options.MaxSegmentBytes, using workDir as scratch space for candidate
// segmentation passes.
func (p *Planner) Plan(ctx context.Context, sourcePath, workDir string, opts Options) (*Result, error) {
	info, err := p.driver.Probe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	subtitles := p.extractSubtitles(ctx, sourcePath, workDir, info)

	if !info.CompatibleContainer() {
		return &Result{FullTranscode: true, Info: info, Subtitles: subtitles}, nil
	}

	schedule := filterSchedule(opts.MinDuration, opts.MaxDuration)
	if len(schedule) == 0 {
		schedule = candidateDurations
	}

	deadline := time.Now().Add(opts.Budget)

	var bestDir string
	var bestSegments []transcoder.Segment
	var bestOversize int
	var bestDuration float64
	haveBest := false

	for _, d := range schedule {
		if opts.Budget > 0 && time.Now().After(deadline) {
			p.logger.Warn().Msg("planner budget exceeded, accepting current best")
			break
		}

		passDir := filepath.Join(workDir, fmt.Sprintf("pass-%dms", int(d*1000)))
		if err := os.MkdirAll(passDir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.TranscodeFailed, err, "unable to create scratch pass directory")
		}

		segs, err := p.driver.Segment(ctx, sourcePath, passDir, d, transcoder.SegmentOptions{CopyOnly: true})
		if err != nil {
			return nil, err
		}

		oversize := countOversize(segs, opts.MaxSegmentBytes)

		if !haveBest || oversize < bestOversize || (oversize == bestOversize && d > bestDuration) {
			if haveBest {
				os.RemoveAll(bestDir)
			}
			bestDir = passDir
			bestSegments = segs
			bestOversize = oversize
			bestDuration = d
			haveBest = true
		} else {
			os.RemoveAll(passDir)
		}

		if oversize == 0 {
			break
		}
	}

	if !haveBest {
		return nil, apperr.New(apperr.PlanOversize, "no candidate duration produced a segmentation")
	}

	final, err := p.resolveOverflow(ctx, bestSegments, bestDuration, opts)
	if err != nil {
		return nil, err
	}

	renumber(final)

	return &Result{Segments: final, ChosenDuration: bestDuration, Info: info, Subtitles: subtitles}, nil
}

// extractSubtitles converts every subtitle stream Probe found to a
// standalone WebVTT file under workDir. A track that ffmpeg cannot convert
// (bitmap codecs like PGS/DVB) is logged and skipped rather than failing
// the whole plan, since a video with a missing subtitle track is still
// playable.
func (p *Planner) extractSubtitles(ctx context.Context, sourcePath, workDir string, info *transcoder.MediaInfo) []SubtitleFile {
	var out []SubtitleFile
	for _, st := range info.SubtitleTracks {
		outPath := filepath.Join(workDir, fmt.Sprintf("sub-%d.vtt", st.Index))
		if err := p.driver.ExtractSubtitle(ctx, sourcePath, st.Index, outPath); err != nil {
			p.logger.Warn().Err(err).Int("stream_index", st.Index).Msg("unable to extract subtitle track, skipping")
			continue
		}
		out = append(out, SubtitleFile{
			Language:          st.Language,
			Title:             st.Title,
			Codec:             "vtt",
			IsDefault:         st.IsDefault,
			IsForced:          st.IsForced,
			IsHearingImpaired: st.IsHearingImpaired,
			Path:              outPath,
			Filename:          filepath.Base(outPath),
		})
	}
	return out
}

// renumber reassigns a dense 0..n-1 ordinal sequence in place, preserving
// playback order. The split-overflow path in reencodeOne can otherwise
// leave the final segment list with duplicate ordinals (a split segment
// and the following untouched segment can both carry the original
// ordinal) or gaps, violating the "ordinals are dense" invariant of §3
// and tripping the segments table's (video_id, ordinal) primary key on
// insert.
func renumber(segs []transcoder.Segment) {
	for i := range segs {
		segs[i].Ordinal = i
	}
}

// resolveOverflow re-encodes each still-oversize segment at a computed
// target bitrate, recursing (halve duration, split once) on segments that
// remain oversize after re-encode, per spec §4.1's "Re-encode overflow".
func (p *Planner) resolveOverflow(ctx context.Context, segs []transcoder.Segment, duration float64, opts Options) ([]transcoder.Segment, error) {
	final := make([]transcoder.Segment, 0, len(segs))

	for _, seg := range segs {
		if seg.Bytes <= opts.MaxSegmentBytes {
			final = append(final, seg)
			continue
		}

		resolved, err := p.reencodeOne(ctx, seg, duration, opts, false)
		if err != nil {
			return nil, err
		}
		final = append(final, resolved...)
	}

	return final, nil
}

// reencodeOne re-encodes a single oversize segment at the computed target
// bitrate B = (C * 8 * safety) / d. If still oversize it splits once by
// halving the duration and recursing, then fails with PLAN_OVERSIZE.
func (p *Planner) reencodeOne(ctx context.Context, seg transcoder.Segment, duration float64, opts Options, alreadySplit bool) ([]transcoder.Segment, error) {
	bitrateKbps := int((float64(opts.MaxSegmentBytes) * 8 * reencodeSafety) / duration / 1000)
	if bitrateKbps < 1 {
		bitrateKbps = 1
	}

	outPath := seg.Path + ".reencoded.ts"
	if err := p.driver.Reencode(ctx, seg.Path, outPath, bitrateKbps); err != nil {
		return nil, err
	}

	stat, err := os.Stat(outPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.TranscodeFailed, err, "reencoded segment missing")
	}

	if stat.Size() <= opts.MaxSegmentBytes {
		return []transcoder.Segment{{
			Ordinal:  seg.Ordinal,
			Path:     outPath,
			Filename: filepath.Base(outPath),
			Duration: seg.Duration,
			Bytes:    stat.Size(),
		}}, nil
	}

	if alreadySplit {
		return nil, apperr.New(apperr.PlanOversize, fmt.Sprintf("segment %d still oversize after split re-encode", seg.Ordinal))
	}

	halfDir := filepath.Dir(seg.Path)
	splitSegs, err := p.driver.Segment(ctx, seg.Path, halfDir, duration/2, transcoder.SegmentOptions{
		CopyOnly:         false,
		VideoBitrateKbps: bitrateKbps,
		AudioBitrateKbps: 128,
		SegmentPrefix:    fmt.Sprintf("split-%d", seg.Ordinal),
		StartOrdinal:     seg.Ordinal,
	})
	if err != nil {
		return nil, err
	}

	var out []transcoder.Segment
	for _, s := range splitSegs {
		if s.Bytes > opts.MaxSegmentBytes {
			resolved, err := p.reencodeOne(ctx, s, duration/2, opts, true)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func countOversize(segs []transcoder.Segment, cap int64) int {
	n := 0
	for _, s := range segs {
		if s.Bytes > cap {
			n++
		}
	}
	return n
}

func filterSchedule(min, max float64) []float64 {
	if min <= 0 && max <= 0 {
		return nil
	}
	var out []float64
	for _, d := range candidateDurations {
		if max > 0 && d > max {
			continue
		}
		if min > 0 && d < min {
			continue
		}
		out = append(out, d)
	}
	return out
}
