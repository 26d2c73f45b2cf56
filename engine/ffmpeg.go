package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Runner abstracts external command execution so tests can substitute
// fakes for ffmpeg/ffprobe.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner executes commands via os/exec and captures combined
// output for error reporting.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %v, output: %s", name, err, truncateOutput(output))
	}
	return output, nil
}

func truncateOutput(b []byte) string {
	const max = 2048
	if len(b) <= max {
		return string(b)
	}
	return string(b[len(b)-max:])
}

// FFmpeg shells media work out to ffmpeg/ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Runner      Runner
}

// NewFFmpeg builds an FFmpeg helper with the default exec runner.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Runner: ExecRunner{}}
}

// Exec runs one ffmpeg invocation to completion.
func (f *FFmpeg) Exec(ctx context.Context, args ...string) error {
	_, err := f.Runner.Run(ctx, f.FFmpegPath, args...)
	return err
}

// Probe runs ffprobe over the named entries and returns the key=value
// pairs it prints.
func (f *FFmpeg) Probe(ctx context.Context, path string, selectStream, entries string) (map[string]string, error) {
	args := []string{"-v", "error"}
	if selectStream != "" {
		args = append(args, "-select_streams", selectStream)
	}
	args = append(args,
		"-show_entries", entries,
		"-of", "default=noprint_wrappers=1",
		path,
	)
	output, err := f.Runner.Run(ctx, f.FFprobePath, args...)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if key, value, ok := strings.Cut(line, "="); ok {
			values[key] = value
		}
	}
	return values, nil
}

// ProbeDuration returns the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	values, err := f.Probe(ctx, path, "", "format=duration")
	if err != nil {
		return 0, err
	}
	duration, err := strconv.ParseFloat(values["duration"], 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	return duration, nil
}

// ProbeVideo returns the first video stream's geometry and frame rate
// together with the container duration.
func (f *FFmpeg) ProbeVideo(ctx context.Context, path string) (width, height int, fps, duration float64, err error) {
	values, err := f.Probe(ctx, path, "v:0", "stream=width,height,r_frame_rate:format=duration")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	width, _ = strconv.Atoi(values["width"])
	height, _ = strconv.Atoi(values["height"])
	fps = parseFrameRate(values["r_frame_rate"])
	duration, err = strconv.ParseFloat(values["duration"], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	return width, height, fps, duration, nil
}

// ProbeAudio returns the first audio stream's sample rate and channel
// count together with the container duration.
func (f *FFmpeg) ProbeAudio(ctx context.Context, path string) (sampleRate, channels int, duration float64, err error) {
	values, err := f.Probe(ctx, path, "a:0", "stream=sample_rate,channels:format=duration")
	if err != nil {
		return 0, 0, 0, err
	}
	sampleRate, _ = strconv.Atoi(values["sample_rate"])
	channels, _ = strconv.Atoi(values["channels"])
	duration, err = strconv.ParseFloat(values["duration"], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	return sampleRate, channels, duration, nil
}

// DecodePCM streams the file as mono signed 16-bit little-endian PCM at
// the requested sample rate. The returned reader must be closed; large
// files never sit in memory whole.
func (f *FFmpeg) DecodePCM(ctx context.Context, path string, sampleRate int) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-v", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	return &pcmStream{reader: stdout, cmd: cmd}, nil
}

// pcmStream wraps the ffmpeg stdout pipe and reaps the process on
// close.
type pcmStream struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
}

func (s *pcmStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *pcmStream) Close() error {
	s.reader.Close()
	return s.cmd.Wait()
}

func parseFrameRate(raw string) float64 {
	// ffprobe prints r_frame_rate as a fraction like "30000/1001".
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		fps, _ := strconv.ParseFloat(raw, 64)
		return fps
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// FormatSeconds renders a seconds value the way ffmpeg arguments expect
// it, with millisecond precision.
func FormatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
