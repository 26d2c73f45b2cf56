package models

import "time"

// AudioTrack is an immutable handle to the narration waveform. It is
// probed once per pipeline run and read-only afterwards.
type AudioTrack struct {
	Path       string  `json:"path"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration"` // seconds
}

// BeatMap is an ordered list of beat timestamps in seconds. Timestamps
// are strictly increasing, the first is >= 0 and the last is <= the
// track duration.
type BeatMap []float64

// VideoClip is a downloaded source file registered with the clip
// library. Clips are read-only once registered.
type VideoClip struct {
	ID       string  `json:"id"`
	Keyword  string  `json:"keyword"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
}

// Segment is the trimmed portion of one clip assigned to one beat
// interval. When the clip is shorter than the interval, Loops holds the
// number of extra passes over the source needed to fill it.
type Segment struct {
	Clip     *VideoClip `json:"clip"`
	Offset   float64    `json:"offset"`   // trim start within the clip
	Duration float64    `json:"duration"` // interval length, used verbatim
	Loops    int        `json:"loops,omitempty"`
}

// Timeline is the ordered segment sequence whose durations sum to the
// audio track duration.
type Timeline []Segment

// TotalDuration returns the summed segment durations.
func (t Timeline) TotalDuration() float64 {
	var sum float64
	for _, seg := range t {
		sum += seg.Duration
	}
	return sum
}

// TransitionStyle names one entry of the closed transition set. The
// values are ffmpeg xfade transition names, except StyleCut which means
// a hard cut with no overlap.
type TransitionStyle string

const (
	StyleCut        TransitionStyle = "cut"
	StyleFade       TransitionStyle = "fade"
	StyleDissolve   TransitionStyle = "dissolve"
	StyleWipeLeft   TransitionStyle = "wipeleft"
	StyleWipeRight  TransitionStyle = "wiperight"
	StyleSlideUp    TransitionStyle = "slideup"
	StyleSlideDown  TransitionStyle = "slidedown"
	StyleCircleOpen TransitionStyle = "circleopen"
)

// TransitionStyles is the selectable pool for internal boundaries.
var TransitionStyles = []TransitionStyle{
	StyleFade,
	StyleDissolve,
	StyleWipeLeft,
	StyleWipeRight,
	StyleSlideUp,
	StyleSlideDown,
	StyleCircleOpen,
}

// TransitionSpec is the transition chosen for one segment boundary.
type TransitionSpec struct {
	Style    TransitionStyle `json:"style"`
	Duration float64         `json:"duration"`
}

// SubtitleCue is one caption line. Cues are ordered by start, never
// overlap, and end no later than the video does.
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptSegment is a (text, start, end) triple supplied by the
// upstream transcription collaborator.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Reel is the final output artifact set. It is created only after all
// stages succeed and is immutable once written.
type Reel struct {
	VideoPath      string    `json:"video_path"`
	CaptionPath    string    `json:"caption_path"`
	AudioPath      string    `json:"audio_path"`
	Duration       float64   `json:"duration"`
	CaptionsBurned bool      `json:"captions_burned"`
	CreatedAt      time.Time `json:"created_at"`
}

// Progress is one progress event emitted by the orchestrator.
type Progress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}
