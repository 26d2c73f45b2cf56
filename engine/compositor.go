package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/initya/InstaAutReel/models"
	"github.com/initya/InstaAutReel/utils"
)

// TransitionSelector picks the transition for one internal boundary.
// The compositor forces hard cuts at the first and last boundary no
// matter what the selector returns.
type TransitionSelector func(boundary, boundaryCount int) models.TransitionSpec

// RandomTransitions returns a seeded selector drawing uniformly from
// the closed style set. The same seed reproduces the same choices.
func RandomTransitions(seed int64, duration float64) TransitionSelector {
	rng := rand.New(rand.NewSource(seed))
	return func(boundary, boundaryCount int) models.TransitionSpec {
		style := models.TransitionStyles[rng.Intn(len(models.TransitionStyles))]
		return models.TransitionSpec{Style: style, Duration: duration}
	}
}

// plannedSegment is one segment together with the extra source material
// consumed by the xfade overlaps on its sides. The rendered length is
// Duration+HeadPad+TailPad; after overlaps the visible contribution is
// exactly Duration again.
type plannedSegment struct {
	Segment models.Segment
	Offset  float64 // source trim start after head padding
	HeadPad float64
	TailPad float64
}

func (p plannedSegment) renderLength() float64 {
	return p.Segment.Duration + p.HeadPad + p.TailPad
}

// renderPlan is the full compositing schedule: padded segment trims and
// one transition per internal boundary.
type renderPlan struct {
	Segments    []plannedSegment
	Transitions []models.TransitionSpec
}

// outputDuration is the post-overlap length of the composited stream.
func (p renderPlan) outputDuration() float64 {
	var total float64
	for _, seg := range p.Segments {
		total += seg.renderLength()
	}
	for _, tr := range p.Transitions {
		total -= tr.Duration
	}
	return total
}

// buildPlan assigns a transition to every internal boundary and spreads
// each transition's overlap as half-duration pads onto its neighbors.
// Boundaries whose neighbors cannot afford the padding fall back to
// cuts, and the first and last boundary are always cuts.
func buildPlan(timeline models.Timeline, selector TransitionSelector) renderPlan {
	n := len(timeline)
	plan := renderPlan{
		Segments:    make([]plannedSegment, n),
		Transitions: make([]models.TransitionSpec, 0, n-1),
	}
	for i, seg := range timeline {
		plan.Segments[i] = plannedSegment{Segment: seg, Offset: seg.Offset}
	}

	for b := 0; b < n-1; b++ {
		spec := selector(b, n-1)
		if b == 0 || b == n-2 || spec.Style == models.StyleCut || spec.Duration <= 0 {
			plan.Transitions = append(plan.Transitions, models.TransitionSpec{Style: models.StyleCut})
			continue
		}

		left := &plan.Segments[b]
		right := &plan.Segments[b+1]
		pad := spec.Duration / 2

		if spareTail(left) < pad || spareTotal(right) < pad {
			plan.Transitions = append(plan.Transitions, models.TransitionSpec{Style: models.StyleCut})
			continue
		}

		left.TailPad += pad
		// Prefer sliding the right trim earlier; spill over to its
		// tail when the offset runs out.
		shift := math.Min(pad, right.Offset)
		right.Offset -= shift
		right.HeadPad += shift
		right.TailPad += pad - shift
		plan.Transitions = append(plan.Transitions, spec)
	}

	return plan
}

// sourceLength is the total material a segment's input provides,
// counting stream_loop repeats.
func sourceLength(p *plannedSegment) float64 {
	return float64(p.Segment.Loops+1) * p.Segment.Clip.Duration
}

// spareTail is how much extra source the segment can append after its
// current trim.
func spareTail(p *plannedSegment) float64 {
	return sourceLength(p) - p.Offset - p.renderLength()
}

// spareTotal is the extra source available on either side of the trim.
func spareTotal(p *plannedSegment) float64 {
	return sourceLength(p) - p.renderLength()
}

// buildFilterComplex chains the rendered segment inputs with xfade at
// transition boundaries and concat at cuts. Offsets are derived from
// the running output length so overlaps land exactly on the planned
// boundaries.
func buildFilterComplex(plan renderPlan) string {
	var filters []string
	current := "[0:v]"
	length := plan.Segments[0].renderLength()

	for b, tr := range plan.Transitions {
		next := fmt.Sprintf("[%d:v]", b+1)
		out := fmt.Sprintf("[x%d]", b)
		if b == len(plan.Transitions)-1 {
			out = "[v]"
		}

		if tr.Style == models.StyleCut {
			filters = append(filters, fmt.Sprintf("%s%sconcat=n=2:v=1:a=0%s", current, next, out))
			length += plan.Segments[b+1].renderLength()
		} else {
			offset := length - tr.Duration
			filters = append(filters, fmt.Sprintf("%s%sxfade=transition=%s:duration=%s:offset=%s%s",
				current, next, tr.Style, FormatSeconds(tr.Duration), FormatSeconds(offset), out))
			length += plan.Segments[b+1].renderLength() - tr.Duration
		}
		current = out
	}

	return strings.Join(filters, ";")
}

// Compositor stitches timeline segments into one continuous silent
// video normalized to the target portrait resolution.
type Compositor struct {
	FFmpeg *FFmpeg
	Config models.ReelConfig

	// OnSegment, when set, is called after each intermediate render.
	OnSegment func(done, total int)
}

func NewCompositor(ff *FFmpeg, cfg models.ReelConfig) *Compositor {
	return &Compositor{FFmpeg: ff, Config: cfg}
}

// Compose renders every segment to a normalized intermediate clip, then
// joins them with the selected transitions in a single filter graph.
// The result is video-only; the narration is muxed on by Mux once the
// silent render has succeeded.
func (c *Compositor) Compose(ctx context.Context, timeline models.Timeline, trackDuration float64, selector TransitionSelector, workDir string) (string, error) {
	if len(timeline) == 0 {
		return "", &RenderError{Err: fmt.Errorf("empty timeline")}
	}
	if diff := math.Abs(timeline.TotalDuration() - trackDuration); diff > c.Config.FrameDuration() {
		return "", &RenderError{Err: fmt.Errorf("timeline length %.3f drifts %.3fs from audio %.3f",
			timeline.TotalDuration(), diff, trackDuration)}
	}

	if err := utils.EnsureDir(workDir); err != nil {
		return "", &RenderError{Err: err}
	}

	plan := buildPlan(timeline, selector)

	segPaths := make([]string, len(plan.Segments))
	for i, seg := range plan.Segments {
		segPath := filepath.Join(workDir, fmt.Sprintf("seg_%03d.mp4", i))
		if err := c.renderSegment(ctx, seg, segPath); err != nil {
			return "", err
		}
		segPaths[i] = segPath
		if c.OnSegment != nil {
			c.OnSegment(i+1, len(plan.Segments))
		}
	}

	silentPath := filepath.Join(workDir, "silent.mp4")
	if err := c.joinSegments(ctx, plan, segPaths, silentPath); err != nil {
		return "", err
	}

	if actual, err := c.FFmpeg.ProbeDuration(ctx, silentPath); err == nil {
		log.Printf("composited %d segments, %.2fs (planned %.2fs)", len(segPaths), actual, plan.outputDuration())
		if math.Abs(actual-trackDuration) > 0.5 {
			return "", &RenderError{Path: silentPath, Err: fmt.Errorf(
				"rendered duration %.2fs does not match audio %.2fs", actual, trackDuration)}
		}
	}

	return silentPath, nil
}

// renderSegment trims and normalizes one segment: aspect-fill
// scale+crop to the target portrait frame, constant fps, no audio.
func (c *Compositor) renderSegment(ctx context.Context, seg plannedSegment, outPath string) error {
	clip := seg.Segment.Clip
	args := []string{"-y"}
	if seg.Segment.Loops > 0 {
		args = append(args, "-stream_loop", strconv.Itoa(seg.Segment.Loops))
	}
	if seg.Offset > 0 {
		args = append(args, "-ss", FormatSeconds(seg.Offset))
	}
	args = append(args,
		"-i", clip.Path,
		"-t", FormatSeconds(seg.renderLength()),
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d",
			c.Config.Width, c.Config.Height, c.Config.Width, c.Config.Height, c.Config.FPS),
		"-an",
		"-c:v", "libx264",
		"-preset", c.Config.Preset,
		"-crf", strconv.Itoa(c.Config.CRF),
		"-pix_fmt", "yuv420p",
		outPath,
	)

	if err := c.FFmpeg.Exec(ctx, args...); err != nil {
		return &RenderError{Path: clip.Path, Err: err}
	}
	return nil
}

// joinSegments runs the single xfade/concat filter graph over all
// intermediates.
func (c *Compositor) joinSegments(ctx context.Context, plan renderPlan, segPaths []string, outPath string) error {
	if len(segPaths) == 1 {
		if err := c.FFmpeg.Exec(ctx, "-y", "-i", segPaths[0], "-c", "copy", outPath); err != nil {
			return &RenderError{Path: segPaths[0], Err: err}
		}
		return nil
	}

	args := []string{"-y"}
	for _, path := range segPaths {
		args = append(args, "-i", path)
	}
	args = append(args,
		"-filter_complex", buildFilterComplex(plan),
		"-map", "[v]",
		"-an",
		"-c:v", "libx264",
		"-preset", c.Config.Preset,
		"-crf", strconv.Itoa(c.Config.CRF),
		"-pix_fmt", "yuv420p",
		outPath,
	)

	if err := c.FFmpeg.Exec(ctx, args...); err != nil {
		return &RenderError{Path: outPath, Err: err}
	}
	return nil
}

// Mux copies the silent video stream and encodes the narration onto it.
// Keeping this separate from Compose isolates video-only failures from
// audio muxing failures.
func (c *Compositor) Mux(ctx context.Context, silentPath, audioPath, outPath string) error {
	err := c.FFmpeg.Exec(ctx,
		"-y",
		"-i", silentPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	)
	if err != nil {
		return &RenderError{Path: outPath, Err: err}
	}
	return nil
}
