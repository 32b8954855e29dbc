package transcoder

import "testing"

func TestMediaInfoHasVideo(t *testing.T) {
	m := &MediaInfo{}
	if m.HasVideo() {
		t.Fatal("expected no video for empty codec")
	}
	m.VideoCodec = "h264"
	if !m.HasVideo() {
		t.Fatal("expected video once VideoCodec is set")
	}
}

func TestMediaInfoCompatibleContainer(t *testing.T) {
	cases := []struct {
		name  string
		video string
		audio string
		want  bool
	}{
		{"h264+aac", "h264", "aac", true},
		{"hevc+mp3", "hevc", "mp3", true},
		{"audio only", "", "aac", true},
		{"vp9 rejected", "vp9", "aac", false},
		{"opus rejected", "h264", "opus", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := &MediaInfo{VideoCodec: c.video, AudioCodec: c.audio}
			if got := m.CompatibleContainer(); got != c.want {
				t.Fatalf("CompatibleContainer() = %v, want %v", got, c.want)
			}
		})
	}
}
