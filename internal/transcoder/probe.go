package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/procio"
)

// probeOutput mirrors the subset of `ffprobe -show_format -show_streams
// -of json` fields this driver reads, generalizing teacher's hlsvod/probe.go
// ProbeVideo/ProbeAudio (which only looked at width/height/duration and
// keyframe timestamps) into full container/codec/track probing.
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index       int    `json:"index"`
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		BitRate     string `json:"bit_rate"`
		Disposition struct {
			Default         int `json:"default"`
			Forced          int `json:"forced"`
			HearingImpaired int `json:"hearing_impaired"`
		} `json:"disposition"`
		Tags struct {
			Language string `json:"language"`
			Title    string `json:"title"`
		} `json:"tags"`
	} `json:"streams"`
}

// Probe runs ffprobe against path and returns its container/codec/track
// metadata, spec §4.7.
func (d *ffmpegDriver) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, d.config.FFprobeBinary, args...)
	var stdout bytes.Buffer
	capture := procio.NewTailCapture(d.logger, 50)
	cmd.Stdout = &stdout
	cmd.Stderr = capture
	prepareCommand(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }

	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrap(apperr.ProbeFailed, err, capture.Tail())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, apperr.Wrap(apperr.ProbeFailed, err, "unable to parse ffprobe output")
	}

	info := &MediaInfo{Container: out.Format.FormatName}
	if out.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	if out.Format.BitRate != "" {
		if br, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
			info.BitrateBps = br
		}
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
			bitrate, _ := strconv.ParseInt(s.BitRate, 10, 64)
			info.AudioTracks = append(info.AudioTracks, AudioTrack{
				Index:    s.Index,
				Codec:    s.CodecName,
				Language: s.Tags.Language,
				Bitrate:  bitrate,
			})
		case "subtitle":
			info.SubtitleTracks = append(info.SubtitleTracks, SubtitleTrack{
				Index:             s.Index,
				Codec:             s.CodecName,
				Language:          s.Tags.Language,
				Title:             s.Tags.Title,
				IsDefault:         s.Disposition.Default == 1,
				IsForced:          s.Disposition.Forced == 1,
				IsHearingImpaired: s.Disposition.HearingImpaired == 1,
			})
		}
	}

	if info.Duration == 0 {
		return nil, apperr.New(apperr.ProbeFailed, fmt.Sprintf("no duration reported for %s", path))
	}

	return info, nil
}
