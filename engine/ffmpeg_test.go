package engine

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		got := parseFrameRate(tt.raw)
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0.000"},
		{1.5, "1.500"},
		{12.3456, "12.346"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.sec); got != tt.want {
			t.Errorf("FormatSeconds(%v) = %s, want %s", tt.sec, got, tt.want)
		}
	}
}

func TestProbeParsesKeyValues(t *testing.T) {
	runner := &recordingRunner{duration: "7.250"}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	duration, err := ff.ProbeDuration(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if duration != 7.25 {
		t.Errorf("duration %v, want 7.25", duration)
	}

	args := strings.Join(runner.calls[0], " ")
	if !strings.Contains(args, "-show_entries format=duration") {
		t.Errorf("probe args missing entries: %s", args)
	}
}

func TestProbeVideoParsesStream(t *testing.T) {
	runner := &probeRunner{outputs: map[string]string{
		"clip.mp4": "width=1080\nheight=1920\nr_frame_rate=30000/1001\nduration=9.500\n",
	}}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	width, height, fps, duration, err := ff.ProbeVideo(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("ProbeVideo: %v", err)
	}
	if width != 1080 || height != 1920 {
		t.Errorf("geometry %dx%d, want 1080x1920", width, height)
	}
	if math.Abs(fps-29.97) > 0.01 {
		t.Errorf("fps %v, want 29.97", fps)
	}
	if duration != 9.5 {
		t.Errorf("duration %v, want 9.5", duration)
	}
}

func TestProbeVideoBadDuration(t *testing.T) {
	runner := &probeRunner{outputs: map[string]string{
		"clip.mp4": "width=1080\nheight=1920\nr_frame_rate=30/1\nduration=N/A\n",
	}}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	if _, _, _, _, err := ff.ProbeVideo(context.Background(), "clip.mp4"); err == nil {
		t.Fatal("expected parse error for N/A duration")
	}
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("x", 5000)
	got := truncateOutput([]byte(long))
	if len(got) > 2100 {
		t.Errorf("truncated output still %d bytes", len(got))
	}
	short := "frame=1"
	if truncateOutput([]byte(short)) != short {
		t.Error("short output should pass through unchanged")
	}
}
