package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/initya/InstaAutReel/models"
)

func fadeSelector(duration float64) TransitionSelector {
	return func(boundary, boundaryCount int) models.TransitionSpec {
		return models.TransitionSpec{Style: models.StyleFade, Duration: duration}
	}
}

// planTimeline builds segments with enough spare source for padding.
func planTimeline(durations ...float64) models.Timeline {
	timeline := make(models.Timeline, len(durations))
	for i, d := range durations {
		timeline[i] = models.Segment{
			Clip:     testClip(fmt.Sprintf("clip%d", i), 10),
			Offset:   2,
			Duration: d,
		}
	}
	return timeline
}

func TestBuildPlanForcesEdgeCuts(t *testing.T) {
	timeline := planTimeline(3, 3, 3, 3)
	plan := buildPlan(timeline, fadeSelector(0.4))

	if len(plan.Transitions) != 3 {
		t.Fatalf("got %d transitions, want 3", len(plan.Transitions))
	}
	if plan.Transitions[0].Style != models.StyleCut {
		t.Errorf("first boundary is %s, want cut", plan.Transitions[0].Style)
	}
	if plan.Transitions[2].Style != models.StyleCut {
		t.Errorf("last boundary is %s, want cut", plan.Transitions[2].Style)
	}
	if plan.Transitions[1].Style != models.StyleFade {
		t.Errorf("middle boundary is %s, want fade", plan.Transitions[1].Style)
	}
}

func TestBuildPlanPreservesOutputDuration(t *testing.T) {
	timeline := planTimeline(3, 2.5, 4, 3, 2)
	plan := buildPlan(timeline, fadeSelector(0.4))

	if diff := math.Abs(plan.outputDuration() - timeline.TotalDuration()); diff > 1e-9 {
		t.Fatalf("output duration %.6f, timeline %.6f", plan.outputDuration(), timeline.TotalDuration())
	}
}

func TestBuildPlanPadsTransitionNeighbors(t *testing.T) {
	timeline := planTimeline(3, 3, 3, 3)
	plan := buildPlan(timeline, fadeSelector(0.4))

	left := plan.Segments[1]
	right := plan.Segments[2]
	if math.Abs(left.TailPad-0.2) > 1e-9 {
		t.Errorf("left tail pad %.3f, want 0.2", left.TailPad)
	}
	// The right neighbor slides its trim start earlier instead of
	// consuming tail material.
	if math.Abs(right.Offset-1.8) > 1e-9 || math.Abs(right.HeadPad-0.2) > 1e-9 {
		t.Errorf("right offset %.3f head pad %.3f, want 1.8 and 0.2", right.Offset, right.HeadPad)
	}
	if right.TailPad != 0 {
		t.Errorf("right tail pad %.3f, want 0", right.TailPad)
	}
	if math.Abs(left.renderLength()-3.2) > 1e-9 {
		t.Errorf("left render length %.3f, want 3.2", left.renderLength())
	}
}

func TestBuildPlanFallsBackToCutWhenUnaffordable(t *testing.T) {
	timeline := planTimeline(3, 3, 3, 3, 3)
	// Segment 2 consumes its whole clip: no spare on either side.
	timeline[2].Clip = testClip("tight", 3)
	timeline[2].Offset = 0

	plan := buildPlan(timeline, fadeSelector(0.4))

	// Boundaries 1 and 2 touch the tight segment and must degrade.
	if plan.Transitions[1].Style != models.StyleCut {
		t.Errorf("boundary 1 is %s, want cut", plan.Transitions[1].Style)
	}
	if plan.Transitions[2].Style != models.StyleCut {
		t.Errorf("boundary 2 is %s, want cut", plan.Transitions[2].Style)
	}
	if diff := math.Abs(plan.outputDuration() - timeline.TotalDuration()); diff > 1e-9 {
		t.Errorf("output duration drifted by %.6f", diff)
	}
}

func TestBuildPlanLoopedSegmentAffordsPadding(t *testing.T) {
	timeline := planTimeline(3, 3, 3, 3)
	timeline[2] = models.Segment{Clip: testClip("short", 1), Offset: 0, Duration: 3, Loops: 3}

	plan := buildPlan(timeline, fadeSelector(0.4))
	if plan.Transitions[1].Style != models.StyleFade {
		t.Fatalf("boundary 1 is %s, want fade", plan.Transitions[1].Style)
	}
}

func TestBuildFilterComplexCutsOnly(t *testing.T) {
	timeline := planTimeline(3, 3, 3)
	plan := buildPlan(timeline, fadeSelector(0.4)) // both boundaries are edges

	got := buildFilterComplex(plan)
	want := "[0:v][1:v]concat=n=2:v=1:a=0[x0];[x0][2:v]concat=n=2:v=1:a=0[v]"
	if got != want {
		t.Fatalf("filter graph:\n got %s\nwant %s", got, want)
	}
}

func TestBuildFilterComplexXfadeOffsets(t *testing.T) {
	timeline := planTimeline(3, 3, 3, 3)
	plan := buildPlan(timeline, fadeSelector(0.4))

	got := buildFilterComplex(plan)

	// The fade at boundary 1 starts 0.4s before the end of the first
	// two rendered segments.
	offset := plan.Segments[0].renderLength() + plan.Segments[1].renderLength() - 0.4
	wantFade := fmt.Sprintf("xfade=transition=fade:duration=0.400:offset=%s", FormatSeconds(offset))
	if !strings.Contains(got, wantFade) {
		t.Errorf("filter graph %q missing %q", got, wantFade)
	}
	if !strings.HasSuffix(got, "[v]") {
		t.Errorf("filter graph %q does not end in [v]", got)
	}
	if strings.Count(got, "concat") != 2 {
		t.Errorf("filter graph %q should concat at both edge boundaries", got)
	}
}

// recordingRunner captures every command invocation and fakes ffprobe
// output.
type recordingRunner struct {
	calls    [][]string
	names    []string
	duration string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.names = append(r.names, name)
	r.calls = append(r.calls, append([]string{}, args...))
	if name == "ffprobe" {
		return []byte("duration=" + r.duration + "\n"), nil
	}
	return nil, nil
}

func TestComposeRendersAndJoins(t *testing.T) {
	runner := &recordingRunner{duration: "6.000"}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	c := NewCompositor(ff, models.DefaultConfig())
	timeline := planTimeline(3, 3)

	var progress []int
	c.OnSegment = func(done, total int) { progress = append(progress, done) }

	out, err := c.Compose(context.Background(), timeline, 6, fadeSelector(0.4), t.TempDir())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if filepath.Base(out) != "silent.mp4" {
		t.Errorf("output %s, want silent.mp4", out)
	}

	// Two segment renders, one join, one duration probe.
	if len(runner.names) != 4 {
		t.Fatalf("got %d commands, want 4: %v", len(runner.names), runner.names)
	}
	if runner.names[3] != "ffprobe" {
		t.Errorf("last command %s, want ffprobe", runner.names[3])
	}

	render := strings.Join(runner.calls[0], " ")
	if !strings.Contains(render, "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920") {
		t.Errorf("render args missing portrait normalize: %s", render)
	}
	if !strings.Contains(render, "-an") {
		t.Errorf("render args should drop audio: %s", render)
	}

	join := strings.Join(runner.calls[2], " ")
	if !strings.Contains(join, "-filter_complex") {
		t.Errorf("join args missing filter graph: %s", join)
	}

	if len(progress) != 2 || progress[1] != 2 {
		t.Errorf("progress callbacks = %v, want [1 2]", progress)
	}
}

func TestComposeRejectsTimelineDrift(t *testing.T) {
	runner := &recordingRunner{duration: "6.000"}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	c := NewCompositor(ff, models.DefaultConfig())
	timeline := planTimeline(3, 3)

	_, err := c.Compose(context.Background(), timeline, 8, fadeSelector(0.4), t.TempDir())
	if err == nil {
		t.Fatal("expected drift error")
	}
	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("error %T, want RenderError", err)
	}
}

func TestComposeEmptyTimeline(t *testing.T) {
	c := NewCompositor(NewFFmpeg("ffmpeg", "ffprobe"), models.DefaultConfig())
	if _, err := c.Compose(context.Background(), nil, 0, fadeSelector(0.4), t.TempDir()); err == nil {
		t.Fatal("expected error for empty timeline")
	}
}

func TestMuxArgs(t *testing.T) {
	runner := &recordingRunner{duration: "6.000"}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.Runner = runner

	c := NewCompositor(ff, models.DefaultConfig())
	if err := c.Mux(context.Background(), "silent.mp4", "voice.wav", "out.mp4"); err != nil {
		t.Fatalf("Mux: %v", err)
	}

	args := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"-map 0:v", "-map 1:a", "-c:v copy", "-c:a aac", "-shortest"} {
		if !strings.Contains(args, want) {
			t.Errorf("mux args missing %q: %s", want, args)
		}
	}
}
