package transcoder

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/stashcast/stashcast/internal/apperr"
	"github.com/stashcast/stashcast/internal/procio"
)

// ExtractSubtitle demuxes the subtitle stream at streamIndex out of path
// and converts it to a single WebVTT file at outputPath. Only single-entry
// (non-segmented) subtitles are in scope, spec §9(c); bitmap subtitle
// codecs ffmpeg cannot convert to text (e.g. PGS, DVB) fail here and the
// caller is expected to skip that track rather than fail the whole ingest.
func (d *ffmpegDriver) ExtractSubtitle(ctx context.Context, path string, streamIndex int, outputPath string) error {
	args := []string{
		"-loglevel", "warning",
		"-y",
		"-i", path,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "webvtt",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, d.config.FFmpegBinary, args...)
	prepareCommand(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }
	capture := procio.NewTailCapture(d.logger, 40)
	cmd.Stderr = capture

	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.TranscodeFailed, err, capture.Tail())
	}
	return nil
}
