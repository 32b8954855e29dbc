package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/procio"
)

// Segment runs ffmpeg's segment muxer against path, producing
// "<prefix>-%05d.ts" files in outputDir at the given target duration.
// It generalizes teacher's hlsvod/transcode.go TranscodeSegments (which
// took an explicit list of keyframe-aligned break times) into a plain
// periodic split driven by targetDuration, matching spec §4.1's "copy-only
// segmentation pass for candidate durations" search step; the same
// entry point re-encodes when opts.CopyOnly is false, which the planner
// uses to split a segment that is still oversize after re-encode.
func (d *ffmpegDriver) Segment(ctx context.Context, path, outputDir string, targetDuration float64, opts SegmentOptions) ([]Segment, error) {
	prefix := opts.SegmentPrefix
	if prefix == "" {
		prefix = "seg"
	}

	args := []string{"-loglevel", "warning", "-i", path}

	if opts.CopyOnly {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:v", d.videoEncoder(),
			"-preset", "faster",
			"-b:v", fmt.Sprintf("%dk", opts.VideoBitrateKbps),
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", opts.AudioBitrateKbps),
		)
	}

	outPattern := filepath.Join(outputDir, fmt.Sprintf("%s-%%05d.ts", prefix))
	args = append(args,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%.6f", targetDuration),
		"-segment_start_number", strconv.Itoa(opts.StartOrdinal),
		"-segment_format", "mpegts",
		"-reset_timestamps", "1",
		"-segment_list_type", "csv",
		"-segment_list", "pipe:1",
		outPattern,
	)

	cmd := exec.CommandContext(ctx, d.config.FFmpegBinary, args...)
	prepareCommand(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.TranscodeFailed, err, "unable to attach stdout pipe")
	}
	capture := procio.NewTailCapture(d.logger, 80)
	cmd.Stderr = capture

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.TranscodeFailed, err, "unable to start ffmpeg")
	}

	var results []Segment
	scanner := bufio.NewScanner(stdout)
	ordinal := opts.StartOrdinal
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// csv segment list format: filename,start_time,end_time
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		filename := strings.Trim(parts[0], `"`)
		start, _ := strconv.ParseFloat(parts[1], 64)
		end, _ := strconv.ParseFloat(parts[2], 64)

		segPath := filepath.Join(outputDir, filepath.Base(filename))
		info, statErr := os.Stat(segPath)
		var size int64
		if statErr == nil {
			size = info.Size()
		}

		results = append(results, Segment{
			Ordinal:  ordinal,
			Path:     segPath,
			Filename: filepath.Base(filename),
			Duration: end - start,
			Bytes:    size,
		})
		ordinal++
	}

	if err := cmd.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.TranscodeFailed, err, capture.Tail())
	}

	return results, nil
}

// Reencode re-encodes one already-segmented .ts file at targetBitrateKbps,
// spec §4.1 "re-encode each still-oversize segment individually".
func (d *ffmpegDriver) Reencode(ctx context.Context, srcPath, outputPath string, targetBitrateKbps int) error {
	args := []string{
		"-loglevel", "warning",
		"-y",
		"-i", srcPath,
		"-c:v", d.videoEncoder(),
		"-preset", "faster",
		"-b:v", fmt.Sprintf("%dk", targetBitrateKbps),
		"-c:a", "aac",
		"-f", "mpegts",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, d.config.FFmpegBinary, args...)
	prepareCommand(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }
	capture := procio.NewTailCapture(d.logger, 60)
	cmd.Stderr = capture

	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.TranscodeFailed, err, capture.Tail())
	}
	return nil
}
