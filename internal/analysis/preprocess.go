package analysis

import "math"

// PreprocessConfig toggles and tunes the preprocessing chain.
type PreprocessConfig struct {
	// NoiseReduction enables linear attenuation by 1 - level*0.5.
	NoiseReduction bool

	// Normalize enables peak normalisation to TargetPeak.
	Normalize bool

	// TargetPeak is the absolute peak after normalisation. Defaults to 0.8.
	TargetPeak float64

	// BandLimit enables the band-limiting stage. The stage is currently an
	// identity pass-through; BandLowHz and BandHighHz are recorded only.
	BandLimit  bool
	BandLowHz  float64
	BandHighHz float64
}

// DefaultPreprocessConfig returns the chain with every stage enabled.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		NoiseReduction: true,
		Normalize:      true,
		TargetPeak:     0.8,
		BandLimit:      true,
		BandLowHz:      80,
		BandHighHz:     8000,
	}
}

// Preprocessor applies the configured stages in order: noise attenuation,
// peak normalisation, band limiting.
type Preprocessor struct {
	cfg PreprocessConfig
}

// NewPreprocessor creates a Preprocessor. A zero TargetPeak is replaced by
// the default.
func NewPreprocessor(cfg PreprocessConfig) *Preprocessor {
	if cfg.TargetPeak <= 0 {
		cfg.TargetPeak = 0.8
	}
	return &Preprocessor{cfg: cfg}
}

// Config returns the active configuration.
func (p *Preprocessor) Config() PreprocessConfig {
	return p.cfg
}

// Process returns a cleaned copy of samples. noiseLevel is clamped to
// [0, 1]. The output has the same length as the input; the input is never
// modified.
func (p *Preprocessor) Process(samples []float32, noiseLevel float64) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)
	if len(out) == 0 {
		return out
	}
	if p.cfg.NoiseReduction {
		attenuate(out, clamp01(noiseLevel))
	}
	if p.cfg.Normalize {
		normalize(out, p.cfg.TargetPeak)
	}
	if p.cfg.BandLimit {
		out = bandLimit(out)
	}
	return out
}

func attenuate(samples []float32, level float64) {
	gain := float32(1 - level*0.5)
	for i := range samples {
		samples[i] *= gain
	}
}

func normalize(samples []float32, target float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	scale := target / peak
	for i, s := range samples {
		v := float64(s) * scale
		samples[i] = float32(math.Max(-1, math.Min(1, v)))
	}
}

// bandLimit is an identity stage and approximates band limiting as a
// pass-through. Sample count and rate are preserved.
func bandLimit(samples []float32) []float32 {
	return samples
}
