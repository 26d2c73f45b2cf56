package engine

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/initya/InstaAutReel/models"
)

// offsetBuffer keeps a little spare source material after a trim so the
// compositor can extend transitioned segments.
const offsetBuffer = 0.5

// Sequencer assigns clip segments to beat-delimited time slots.
type Sequencer struct {
	Config models.ReelConfig
}

func NewSequencer(cfg models.ReelConfig) *Sequencer {
	return &Sequencer{Config: cfg}
}

// Sequence derives intervals from consecutive beats, plus a head
// interval from zero to the first beat and a tail from the last beat to
// track end, then fills each with the next pool clip in round-robin
// order. Interval boundaries are used verbatim, so segment durations
// sum to the track duration without drift. The same seed reproduces the
// same timeline.
func (s *Sequencer) Sequence(beats models.BeatMap, trackDuration float64, pool []*models.VideoClip, seed int64) (models.Timeline, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("clip pool is empty")
	}
	if err := validateBeats(beats, trackDuration); err != nil {
		return nil, err
	}

	boundaries := make([]float64, 0, len(beats)+2)
	boundaries = append(boundaries, 0)
	boundaries = append(boundaries, beats...)
	if beats[len(beats)-1] < trackDuration {
		boundaries = append(boundaries, trackDuration)
	}

	rng := rand.New(rand.NewSource(seed))
	timeline := make(models.Timeline, 0, len(boundaries)-1)
	clipIdx := 0

	for i := 1; i < len(boundaries); i++ {
		duration := boundaries[i] - boundaries[i-1]
		if duration <= 0 {
			// Zero-width head interval when the first beat sits at 0.
			continue
		}

		clip := pool[clipIdx%len(pool)]
		clipIdx++

		timeline = append(timeline, makeSegment(clip, duration, rng))
	}

	return timeline, nil
}

// makeSegment trims a clip to the interval duration from a random
// offset, looping the clip content when it is shorter than the slot.
func makeSegment(clip *models.VideoClip, duration float64, rng *rand.Rand) models.Segment {
	if clip.Duration < duration {
		// Trim from a random point within the first loop so reuses of
		// the same clip do not start on the same frame, and loop
		// enough source to cover the offset, the slot, and the spare
		// the compositor may consume for transition overlaps.
		offset := rng.Float64() * clip.Duration
		loops := int(math.Ceil((offset+duration+offsetBuffer)/clip.Duration)) - 1
		return models.Segment{Clip: clip, Offset: offset, Duration: duration, Loops: loops}
	}

	maxStart := clip.Duration - duration - offsetBuffer
	if maxStart < 0 {
		maxStart = clip.Duration - duration
	}
	offset := 0.0
	if maxStart > 0 {
		offset = rng.Float64() * maxStart
	}
	return models.Segment{Clip: clip, Offset: offset, Duration: duration}
}

func validateBeats(beats models.BeatMap, trackDuration float64) error {
	if len(beats) == 0 {
		return fmt.Errorf("beat map is empty")
	}
	if beats[0] < 0 {
		return fmt.Errorf("first beat %.3f is negative", beats[0])
	}
	for i := 1; i < len(beats); i++ {
		if beats[i] <= beats[i-1] {
			return fmt.Errorf("beats not strictly increasing at index %d", i)
		}
	}
	if beats[len(beats)-1] > trackDuration {
		return fmt.Errorf("last beat %.3f past track end %.3f", beats[len(beats)-1], trackDuration)
	}
	return nil
}
