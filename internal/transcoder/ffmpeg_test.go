package transcoder

import "testing"

func TestVideoEncoderSelection(t *testing.T) {
	cases := []struct {
		accel string
		want  string
	}{
		{"", "libx264"},
		{"none", "libx264"},
		{"auto", "libx264"},
		{"h264_nvenc", "h264_nvenc"},
		{"h264_qsv", "h264_qsv"},
	}
	for _, c := range cases {
		d := &ffmpegDriver{config: FFmpegConfig{HardwareAccel: c.accel}}
		if got := d.videoEncoder(); got != c.want {
			t.Errorf("videoEncoder(%q) = %q, want %q", c.accel, got, c.want)
		}
	}
}

func TestNewDefaultsBinaries(t *testing.T) {
	drv := New(FFmpegConfig{}).(*ffmpegDriver)
	if drv.config.FFmpegBinary != "ffmpeg" {
		t.Errorf("expected default ffmpeg binary, got %q", drv.config.FFmpegBinary)
	}
	if drv.config.FFprobeBinary != "ffprobe" {
		t.Errorf("expected default ffprobe binary, got %q", drv.config.FFprobeBinary)
	}
}
