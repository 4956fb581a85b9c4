package analysis_test

import (
	"testing"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
)

func TestVisualizer_Update(t *testing.T) {
	v := analysis.NewVisualizer(analysis.VisualizerConfig{SpeechThreshold: 0.01})

	s := v.Update(sine(1600, 440, 0.3), testRate, 100*time.Millisecond)
	if len(s.Spectrum) != 32 {
		t.Fatalf("len(Spectrum) = %d, want 32", len(s.Spectrum))
	}
	if !s.SpeechDetected {
		t.Error("SpeechDetected = false, want true for a loud tone")
	}
	if s.Timestamp != 100*time.Millisecond {
		t.Errorf("Timestamp = %v, want 100ms", s.Timestamp)
	}
	if !approx(s.Level, 0.3/1.41421356, 1e-3) {
		t.Errorf("Level = %v, want RMS of tone", s.Level)
	}

	quiet := analysis.NewVisualizer(analysis.VisualizerConfig{SpeechThreshold: 0.01})
	if s := quiet.Update(make([]float32, 1600), testRate, 0); s.SpeechDetected {
		t.Error("SpeechDetected = true for silence")
	}
}

func TestVisualizer_Smoothing(t *testing.T) {
	v := analysis.NewVisualizer(analysis.VisualizerConfig{SmoothingWindow: 5})
	loud := constant(320, 0.5)

	for range 5 {
		v.Update(loud, testRate, 0)
	}
	s := v.Update(make([]float32, 320), testRate, 0)
	// Four loud chunks and one silent chunk remain in the window.
	if !approx(s.Level, 0.4, 1e-6) {
		t.Errorf("smoothed Level = %v, want 0.4", s.Level)
	}
	for i, m := range s.Spectrum {
		if !approx(m, 0.4, 1e-6) {
			t.Fatalf("Spectrum[%d] = %v, want 0.4", i, m)
		}
	}

	v.Reset()
	s = v.Update(make([]float32, 320), testRate, 0)
	if s.Level != 0 {
		t.Errorf("Level after Reset = %v, want 0", s.Level)
	}
}

func TestVisualizer_PeakFrequency(t *testing.T) {
	v := analysis.NewVisualizer(analysis.VisualizerConfig{})
	samples := make([]float32, 320)
	// Band 3 covers indices [30, 40).
	for i := 30; i < 40; i++ {
		samples[i] = 0.7
	}
	s := v.Update(samples, testRate, 0)
	if want := 3 * 8000.0 / 32; s.PeakFrequency != want {
		t.Errorf("PeakFrequency = %v, want %v", s.PeakFrequency, want)
	}
}

func TestVisualizer_VoiceBandCheck(t *testing.T) {
	samples := make([]float32, 320)
	// Band 20 maps to 5000 Hz, outside the voice band.
	for i := 200; i < 210; i++ {
		samples[i] = 0.9
	}

	plain := analysis.NewVisualizer(analysis.VisualizerConfig{SpeechThreshold: 0.01})
	if s := plain.Update(samples, testRate, 0); !s.SpeechDetected {
		t.Error("without voice band check: SpeechDetected = false, want true")
	}

	checked := analysis.NewVisualizer(analysis.VisualizerConfig{SpeechThreshold: 0.01, VoiceBandCheck: true})
	if s := checked.Update(samples, testRate, 0); s.SpeechDetected {
		t.Error("with voice band check: SpeechDetected = true, want false")
	}
}

func TestVisualizer_EmptyChunk(t *testing.T) {
	v := analysis.NewVisualizer(analysis.VisualizerConfig{})
	s := v.Update(nil, testRate, time.Second)
	if s.Level != 0 || len(s.Spectrum) != 32 || s.SpeechDetected {
		t.Errorf("empty chunk sample = %+v, want zeroed", s)
	}
}
