package engine

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// clickTrack synthesizes s16le mono PCM: near-silence with short loud
// bursts at the given times.
func clickTrack(seconds float64, clickTimes []float64) []byte {
	total := int(seconds * analysisRate)
	samples := make([]int16, total)
	for _, t := range clickTimes {
		start := int(t * analysisRate)
		for i := 0; i < analysisRate/20 && start+i < total; i++ {
			v := int16(26000)
			if i%2 == 1 {
				v = -26000
			}
			samples[start+i] = v
		}
	}
	buf := make([]byte, 2*total)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func TestOnsetEnvelopeDetectsClicks(t *testing.T) {
	clicks := []float64{0.5, 1.5, 2.5}
	pcm := clickTrack(3.0, clicks)

	envelope, err := OnsetEnvelope(bytes.NewReader(pcm))
	if err != nil {
		t.Fatalf("OnsetEnvelope: %v", err)
	}
	if len(envelope) == 0 {
		t.Fatal("empty envelope")
	}

	frameDur := float64(hopSize) / float64(analysisRate)
	beats := PickBeats(envelope, frameDur, 0.5)
	if len(beats) < 2 {
		t.Fatalf("expected at least 2 beats, got %v", beats)
	}

	for _, b := range beats {
		nearest := math.Inf(1)
		for _, c := range clicks {
			if d := math.Abs(b - c); d < nearest {
				nearest = d
			}
		}
		if nearest > 0.25 {
			t.Errorf("beat %.3f is %.3fs from any click", b, nearest)
		}
	}
}

func TestPickBeatsEnforcesMinSpacing(t *testing.T) {
	frameDur := float64(hopSize) / float64(analysisRate)
	envelope := make([]float64, 200)
	for i := range envelope {
		envelope[i] = 0.1
	}
	envelope[50] = 10 // kept
	envelope[60] = 10 // within 0.5s of the first peak, dropped
	envelope[120] = 10

	beats := PickBeats(envelope, frameDur, 0.5)
	want := []float64{50 * frameDur, 120 * frameDur}
	if len(beats) != len(want) {
		t.Fatalf("beats = %v, want times %v", beats, want)
	}
	for i := range want {
		if math.Abs(beats[i]-want[i]) > 1e-9 {
			t.Errorf("beat %d = %.4f, want %.4f", i, beats[i], want[i])
		}
	}
	for i := 1; i < len(beats); i++ {
		if beats[i]-beats[i-1] < 0.5 {
			t.Errorf("beats %.3f and %.3f closer than min spacing", beats[i-1], beats[i])
		}
	}
}

func TestPickBeatsShortEnvelope(t *testing.T) {
	if beats := PickBeats([]float64{1, 2}, 0.02, 0.5); beats != nil {
		t.Fatalf("expected nil for short envelope, got %v", beats)
	}
}

func TestPickBeatsIgnoresSilence(t *testing.T) {
	envelope := make([]float64, 300)
	if beats := PickBeats(envelope, 0.02, 0.5); len(beats) != 0 {
		t.Fatalf("expected no beats in silence, got %v", beats)
	}
}

func TestUniformBeats(t *testing.T) {
	beats := UniformBeats(10, 2)
	want := []float64{2, 4, 6, 8}
	if len(beats) != len(want) {
		t.Fatalf("beats = %v, want %v", beats, want)
	}
	for i := range want {
		if math.Abs(beats[i]-want[i]) > 1e-9 {
			t.Errorf("beat %d = %v, want %v", i, beats[i], want[i])
		}
	}
}

func TestUniformBeatsShortTrack(t *testing.T) {
	beats := UniformBeats(1.5, 2)
	if len(beats) != 1 || math.Abs(beats[0]-0.75) > 1e-9 {
		t.Fatalf("beats = %v, want single midpoint beat", beats)
	}
}

func TestFFTImpulse(t *testing.T) {
	n := 16
	re := make([]float64, n)
	im := make([]float64, n)
	re[0] = 1

	fft(re, im)
	for i := 0; i < n; i++ {
		if math.Abs(re[i]-1) > 1e-12 || math.Abs(im[i]) > 1e-12 {
			t.Fatalf("bin %d = (%v, %v), want (1, 0)", i, re[i], im[i])
		}
	}
}

func TestFFTSingleTone(t *testing.T) {
	n := 64
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		re[i] = math.Cos(2 * math.Pi * 4 * float64(i) / float64(n))
	}

	fft(re, im)
	for i := 0; i <= n/2; i++ {
		mag := math.Hypot(re[i], im[i])
		if i == 4 {
			if math.Abs(mag-float64(n)/2) > 1e-9 {
				t.Errorf("bin 4 magnitude = %v, want %v", mag, float64(n)/2)
			}
		} else if mag > 1e-9 {
			t.Errorf("bin %d magnitude = %v, want 0", i, mag)
		}
	}
}
