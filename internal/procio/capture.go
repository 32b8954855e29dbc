// Package procio provides small io.Writer adapters for capturing and
// logging the output of the ffmpeg/ffprobe child processes the transcoder
// driver launches.
package procio

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogWriter forwards each line written to it as a warning-level log entry.
type LogWriter struct {
	logger zerolog.Logger
}

func NewLogWriter(l zerolog.Logger) LogWriter {
	return LogWriter{logger: l}
}

func (l LogWriter) Write(p []byte) (int, error) {
	l.logger.Warn().Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

// TailCapture logs every line written to it (like LogWriter) while also
// retaining the last maxLines lines, so a failed subprocess's stderr can be
// attached to the TRANSCODE_FAILED/PROBE_FAILED error it produced (spec §4.7).
type TailCapture struct {
	logger   zerolog.Logger
	maxLines int

	mu    sync.Mutex
	lines []string
}

func NewTailCapture(l zerolog.Logger, maxLines int) *TailCapture {
	return &TailCapture{logger: l, maxLines: maxLines}
}

func (t *TailCapture) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line != "" {
		t.logger.Warn().Msg(line)

		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > t.maxLines {
			t.lines = t.lines[len(t.lines)-t.maxLines:]
		}
		t.mu.Unlock()
	}
	return len(p), nil
}

// Tail returns the captured lines joined by newlines.
func (t *TailCapture) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
