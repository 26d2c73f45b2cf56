package engine

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/initya/InstaAutReel/models"
)

// Analysis constants. 22050 Hz mono with a 1024-sample window and half
// overlap gives ~43 onset frames per second, plenty for cut points.
const (
	analysisRate = 22050
	frameSize    = 1024
	hopSize      = 512
)

// Analyzer extracts a beat map from the narration track.
type Analyzer struct {
	FFmpeg *FFmpeg
	Config models.ReelConfig
}

func NewAnalyzer(ff *FFmpeg, cfg models.ReelConfig) *Analyzer {
	return &Analyzer{FFmpeg: ff, Config: cfg}
}

// Analyze decodes the track as streamed PCM, computes a spectral-flux
// onset envelope and picks beats from it. A track with fewer than two
// detectable onsets gets the uniform fallback map so downstream stages
// always receive a usable map; only a track shorter than the configured
// minimum is an error.
func (a *Analyzer) Analyze(ctx context.Context, track models.AudioTrack) (models.BeatMap, error) {
	if track.Duration < a.Config.MinAudioSeconds {
		return nil, &AnalysisError{
			Reason: "track shorter than " + FormatSeconds(a.Config.MinAudioSeconds) + "s",
		}
	}

	pcm, err := a.FFmpeg.DecodePCM(ctx, track.Path, analysisRate)
	if err != nil {
		return nil, &AnalysisError{Reason: err.Error()}
	}
	defer pcm.Close()

	envelope, err := OnsetEnvelope(pcm)
	if err != nil {
		return nil, &AnalysisError{Reason: err.Error()}
	}

	beats := PickBeats(envelope, float64(hopSize)/float64(analysisRate), a.Config.MinBeatSpacing)

	// Drop anything past the track end; the tail interval covers it.
	trimmed := beats[:0]
	for _, b := range beats {
		if b <= track.Duration {
			trimmed = append(trimmed, b)
		}
	}
	beats = trimmed

	if len(beats) < 2 {
		return UniformBeats(track.Duration, a.Config.FallbackBeatInterval), nil
	}
	return beats, nil
}

// OnsetEnvelope reads s16le mono PCM and returns one half-wave
// rectified spectral flux value per hop. The stream is consumed
// incrementally so memory stays bounded by the window size.
func OnsetEnvelope(r io.Reader) ([]float64, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	window := hannWindow(frameSize)
	frame := make([]float64, frameSize)
	prevMag := make([]float64, frameSize/2)
	mag := make([]float64, frameSize/2)
	re := make([]float64, frameSize)
	im := make([]float64, frameSize)

	var envelope []float64
	filled := 0
	raw := make([]byte, 2)

	for {
		_, err := io.ReadFull(br, raw)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}

		sample := float64(int16(binary.LittleEndian.Uint16(raw))) / 32768.0
		frame[filled] = sample
		filled++

		if filled < frameSize {
			continue
		}

		for i := 0; i < frameSize; i++ {
			re[i] = frame[i] * window[i]
			im[i] = 0
		}
		fft(re, im)

		var flux float64
		for i := 0; i < frameSize/2; i++ {
			mag[i] = math.Hypot(re[i], im[i])
			if diff := mag[i] - prevMag[i]; diff > 0 {
				flux += diff
			}
		}
		envelope = append(envelope, flux)
		prevMag, mag = mag, prevMag

		// Slide by one hop.
		copy(frame, frame[hopSize:])
		filled = frameSize - hopSize
	}

	return envelope, nil
}

// PickBeats selects local envelope maxima above an adaptive threshold
// and thins them to the minimum spacing, keeping the first of each
// cluster.
func PickBeats(envelope []float64, frameDur, minSpacing float64) models.BeatMap {
	if len(envelope) < 3 {
		return nil
	}

	// Threshold window of about one second on each side.
	halfWindow := int(1.0 / frameDur)
	if halfWindow < 1 {
		halfWindow = 1
	}

	var beats models.BeatMap
	lastBeat := math.Inf(-1)

	for i := 1; i < len(envelope)-1; i++ {
		if envelope[i] <= envelope[i-1] || envelope[i] < envelope[i+1] {
			continue
		}

		lo := i - halfWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + halfWindow
		if hi > len(envelope) {
			hi = len(envelope)
		}

		var mean float64
		for _, v := range envelope[lo:hi] {
			mean += v
		}
		mean /= float64(hi - lo)

		var variance float64
		for _, v := range envelope[lo:hi] {
			variance += (v - mean) * (v - mean)
		}
		stddev := math.Sqrt(variance / float64(hi-lo))

		if envelope[i] <= mean+1.5*stddev || envelope[i] == 0 {
			continue
		}

		t := float64(i) * frameDur
		if t-lastBeat < minSpacing {
			continue
		}
		beats = append(beats, t)
		lastBeat = t
	}

	return beats
}

// UniformBeats synthesizes evenly spaced beats so degenerate audio
// still produces a non-empty map. This is the recovery path for silent
// or near-silent tracks.
func UniformBeats(duration, interval float64) models.BeatMap {
	var beats models.BeatMap
	for t := interval; t < duration; t += interval {
		beats = append(beats, t)
	}
	if len(beats) == 0 {
		beats = append(beats, duration/2)
	}
	return beats
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// fft runs an in-place radix-2 Cooley-Tukey transform. Lengths are
// fixed powers of two here so no general-size handling is needed.
func fft(re, im []float64) {
	n := len(re)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe := math.Cos(angle)
		wIm := math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := 0; k < half; k++ {
				evenRe := re[start+k]
				evenIm := im[start+k]
				oddRe := re[start+k+half]*curRe - im[start+k+half]*curIm
				oddIm := re[start+k+half]*curIm + im[start+k+half]*curRe

				re[start+k] = evenRe + oddRe
				im[start+k] = evenIm + oddIm
				re[start+k+half] = evenRe - oddRe
				im[start+k+half] = evenIm - oddIm

				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
