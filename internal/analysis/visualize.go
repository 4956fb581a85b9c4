package analysis

import (
	"math"
	"sync"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// VisualizerSample is one reduced frame for live display.
type VisualizerSample struct {
	// Level is the smoothed RMS level of the chunk.
	Level float64

	// Spectrum holds one smoothed magnitude per band. It is an index-range
	// approximation, not an FFT.
	Spectrum []float64

	// PeakFrequency is the nominal frequency of the loudest band, in Hz.
	PeakFrequency float64

	SpeechDetected bool
	Timestamp      time.Duration
}

// VisualizerConfig tunes the visualisation reduction.
type VisualizerConfig struct {
	// Bands is the number of spectrum bands. Defaults to 32.
	Bands int

	// SmoothingWindow is the number of recent samples averaged into the
	// output. Defaults to 5.
	SmoothingWindow int

	// SpeechThreshold is compared against the raw chunk level.
	SpeechThreshold float64

	// VoiceBandCheck additionally requires VoiceBandRatio of the band energy
	// to fall inside [VoiceLowHz, VoiceHighHz] before flagging speech.
	VoiceBandCheck bool
	VoiceBandRatio float64
	VoiceLowHz     float64
	VoiceHighHz    float64
}

// DefaultVisualizerConfig returns the default reduction settings.
func DefaultVisualizerConfig() VisualizerConfig {
	return VisualizerConfig{
		Bands:           32,
		SmoothingWindow: 5,
		SpeechThreshold: 0.1,
		VoiceBandRatio:  0.3,
		VoiceLowHz:      80,
		VoiceHighHz:     1000,
	}
}

// Visualizer reduces audio chunks to display samples. It keeps a short
// history for smoothing and is safe for concurrent use.
type Visualizer struct {
	cfg VisualizerConfig

	mu      sync.Mutex
	levels  []float64
	spectra [][]float64
}

// NewVisualizer creates a Visualizer, filling unset fields from
// [DefaultVisualizerConfig].
func NewVisualizer(cfg VisualizerConfig) *Visualizer {
	def := DefaultVisualizerConfig()
	if cfg.Bands <= 0 {
		cfg.Bands = def.Bands
	}
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = def.SmoothingWindow
	}
	if cfg.VoiceBandRatio <= 0 {
		cfg.VoiceBandRatio = def.VoiceBandRatio
	}
	if cfg.VoiceLowHz <= 0 && cfg.VoiceHighHz <= 0 {
		cfg.VoiceLowHz, cfg.VoiceHighHz = def.VoiceLowHz, def.VoiceHighHz
	}
	return &Visualizer{cfg: cfg}
}

// SetSpeechThreshold updates the speech threshold for subsequent updates.
func (v *Visualizer) SetSpeechThreshold(t float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.SpeechThreshold = t
}

// Update reduces one mono chunk captured at ts into a display sample. An
// empty chunk yields a zero sample and does not enter the smoothing history.
func (v *Visualizer) Update(samples []float32, sampleRate int, ts time.Duration) VisualizerSample {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(samples) == 0 {
		return VisualizerSample{Spectrum: make([]float64, v.cfg.Bands), Timestamp: ts}
	}

	level := audio.RMS(samples)
	bands := bandMagnitudes(samples, v.cfg.Bands)

	peakIdx := 0
	for i, m := range bands {
		if m > bands[peakIdx] {
			peakIdx = i
		}
	}
	peakFreq := float64(peakIdx) * (float64(sampleRate) / 2) / float64(v.cfg.Bands)

	speech := level > v.cfg.SpeechThreshold
	if speech && v.cfg.VoiceBandCheck {
		speech = v.voiceRatio(bands, sampleRate) >= v.cfg.VoiceBandRatio
	}

	v.levels = appendBounded(v.levels, level, v.cfg.SmoothingWindow)
	v.spectra = appendBounded(v.spectra, bands, v.cfg.SmoothingWindow)

	return VisualizerSample{
		Level:          mean(v.levels),
		Spectrum:       meanSpectrum(v.spectra, v.cfg.Bands),
		PeakFrequency:  peakFreq,
		SpeechDetected: speech,
		Timestamp:      ts,
	}
}

// Reset clears the smoothing history.
func (v *Visualizer) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.levels = nil
	v.spectra = nil
}

func (v *Visualizer) voiceRatio(bands []float64, sampleRate int) float64 {
	var total, voice float64
	width := (float64(sampleRate) / 2) / float64(len(bands))
	for i, m := range bands {
		total += m
		f := float64(i) * width
		if f >= v.cfg.VoiceLowHz && f <= v.cfg.VoiceHighHz {
			voice += m
		}
	}
	if total == 0 {
		return 0
	}
	return voice / total
}

// bandMagnitudes splits samples into n equal index ranges and returns the
// mean absolute amplitude of each. Ranges that hold no samples are 0.
func bandMagnitudes(samples []float32, n int) []float64 {
	out := make([]float64, n)
	total := len(samples)
	for i := range n {
		lo := i * total / n
		hi := (i + 1) * total / n
		if hi <= lo {
			continue
		}
		var sum float64
		for _, s := range samples[lo:hi] {
			sum += math.Abs(float64(s))
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func meanSpectrum(history [][]float64, bands int) []float64 {
	out := make([]float64, bands)
	if len(history) == 0 {
		return out
	}
	for _, h := range history {
		for i := range out {
			out[i] += h[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(history))
	}
	return out
}
