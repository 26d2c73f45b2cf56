package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/initya/InstaAutReel/models"
)

// Aligner turns transcript segments into caption cues and burns them
// into the rendered reel.
type Aligner struct {
	FFmpeg *FFmpeg
	Config models.ReelConfig
}

func NewAligner(ff *FFmpeg, cfg models.ReelConfig) *Aligner {
	return &Aligner{FFmpeg: ff, Config: cfg}
}

// Align converts transcript segments into short, ordered,
// non-overlapping cues. Long segments are split into word groups with
// proportional timing, near-touching cues are seamed together to avoid
// flicker, and everything is clipped to the video duration.
func (a *Aligner) Align(segments []models.TranscriptSegment, videoDuration float64) []models.SubtitleCue {
	var cues []models.SubtitleCue
	for _, seg := range segments {
		cues = append(cues, splitSegment(seg, a.Config.Subtitles.MaxWords)...)
	}

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })

	out := cues[:0]
	for _, cue := range cues {
		if cue.Start >= videoDuration {
			break
		}
		if cue.End > videoDuration {
			cue.End = videoDuration
		}

		if len(out) > 0 {
			prev := &out[len(out)-1]
			// Overlaps are clamped; sub-threshold gaps are closed so
			// captions do not flicker off and back on.
			if cue.Start < prev.End || cue.Start-prev.End < a.Config.SubtitleMergeGap {
				prev.End = cue.Start
				if prev.End <= prev.Start {
					out = out[:len(out)-1]
				}
			}
		}

		if cue.End > cue.Start {
			out = append(out, cue)
		}
	}
	return out
}

// splitSegment breaks one transcript segment into cues of at most
// maxWords words, distributing the segment's time span proportionally
// by word position.
func splitSegment(seg models.TranscriptSegment, maxWords int) []models.SubtitleCue {
	text := strings.TrimSpace(seg.Text)
	if text == "" || seg.End <= seg.Start {
		return nil
	}

	words := strings.Fields(text)
	if maxWords < 1 {
		maxWords = 1
	}
	if len(words) <= maxWords {
		return []models.SubtitleCue{{Start: seg.Start, End: seg.End, Text: text}}
	}

	// Ceiling split so no cue ever exceeds the word limit.
	groups := (len(words) + maxWords - 1) / maxWords
	perGroup := (len(words) + groups - 1) / groups

	span := seg.End - seg.Start
	var cues []models.SubtitleCue
	for i := 0; i < len(words); i += perGroup {
		group := words[i:min(i+perGroup, len(words))]
		start := seg.Start + span*float64(i)/float64(len(words))
		end := seg.Start + span*float64(i+len(group))/float64(len(words))
		cues = append(cues, models.SubtitleCue{Start: start, End: end, Text: strings.Join(group, " ")})
	}
	return cues
}

// WriteSRT emits the standard timestamped cue file used for soft
// subtitles.
func (a *Aligner) WriteSRT(cues []models.SubtitleCue, path string) error {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(cue.Start), srtTimestamp(cue.End), cue.Text)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// srtTimestamp renders seconds as the SRT HH:MM:SS,mmm form.
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// Burn renders the cues permanently into the video pixels with the
// fixed caption style. Failures come back as AlignmentError so the
// orchestrator can degrade to the caption file alone.
func (a *Aligner) Burn(ctx context.Context, videoPath, srtPath, outPath string) error {
	style := fmt.Sprintf("FontSize=%d,PrimaryColour=&H%s,OutlineColour=&H%s,Outline=2,Alignment=%s",
		a.Config.Subtitles.FontSize,
		ffmpegColorHex(a.Config.Subtitles.FontColor),
		ffmpegColorHex(a.Config.Subtitles.OutlineColor),
		subtitleAlignment(a.Config.Subtitles.Position),
	)

	err := a.FFmpeg.Exec(ctx,
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), style),
		"-c:v", "libx264",
		"-crf", "23",
		"-c:a", "copy",
		outPath,
	)
	if err != nil {
		return &AlignmentError{Err: err}
	}
	return nil
}

// subtitleAlignment maps the position keyword to an ASS alignment code.
func subtitleAlignment(position string) string {
	switch strings.ToLower(position) {
	case "top":
		return "8"
	case "center":
		return "5"
	default:
		return "2" // bottom center
	}
}

// ffmpegColorHex converts color names to the hex form force_style
// expects.
func ffmpegColorHex(color string) string {
	switch strings.ToLower(color) {
	case "white":
		return "ffffff"
	case "black":
		return "000000"
	case "red":
		return "ff0000"
	case "green":
		return "00ff00"
	case "blue":
		return "0000ff"
	case "yellow":
		return "ffff00"
	default:
		if strings.HasPrefix(color, "#") && len(color) == 7 {
			return color[1:]
		}
		return "ffffff"
	}
}

// escapeFilterPath escapes characters the subtitles filter treats
// specially in paths.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
