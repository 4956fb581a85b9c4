package analysis

import (
	"math"
	"slices"
	"time"
)

const (
	// ClippingThreshold is the peak amplitude at or above which a buffer is
	// considered clipped.
	ClippingThreshold = 0.99

	// SilenceThreshold is the mean amplitude below which a buffer is
	// considered silent.
	SilenceThreshold = 0.001

	// MaxSNR is reported when the noise floor is exactly zero but signal is
	// present.
	MaxSNR = 60.0

	// noisePercentile selects the noise floor from the sorted magnitudes.
	noisePercentile = 0.1

	// Target loudness window for the volume score, in dBFS.
	volumeLowDB  = -20.0
	volumeHighDB = -6.0
)

// QualityMetrics are the per-chunk signal statistics published on the
// quality stream.
type QualityMetrics struct {
	SNR              float64
	AverageVolume    float64
	PeakVolume       float64
	ZeroCrossingRate float64

	// SpectralCentroid is not computed and is always 0.
	SpectralCentroid float64

	IsClipping bool
	IsSilent   bool

	// Timestamp is the capture time of the analysed chunk.
	Timestamp time.Duration
}

// AnalysisResult summarises one finalized segment.
type AnalysisResult struct {
	AverageVolume float64
	PeakVolume    float64
	NoiseFloor    float64

	// FundamentalFrequency is not estimated and is always 0.
	FundamentalFrequency float64

	// SpectralFeatures is not computed and is always empty.
	SpectralFeatures []float64

	HasSpeech      bool
	OverallQuality float64
}

// Analyzer computes quality statistics. The zero value is usable with a
// speech threshold of 0.
type Analyzer struct {
	// SpeechThreshold is compared against the average volume to decide
	// AnalysisResult.HasSpeech.
	SpeechThreshold float64
}

// AnalyzeChunk computes quality metrics for samples captured at ts. Empty
// input yields zeroed metrics with only the timestamp set.
func (a *Analyzer) AnalyzeChunk(samples []float32, ts time.Duration) QualityMetrics {
	if len(samples) == 0 {
		return QualityMetrics{Timestamp: ts}
	}
	return summarize(samples).metrics(samples, ts)
}

func (s summary) metrics(samples []float32, ts time.Duration) QualityMetrics {
	return QualityMetrics{
		SNR:              s.snr(),
		AverageVolume:    s.avg,
		PeakVolume:       s.peak,
		ZeroCrossingRate: zeroCrossingRate(samples),
		IsClipping:       s.peak >= ClippingThreshold,
		IsSilent:         s.avg < SilenceThreshold,
		Timestamp:        ts,
	}
}

// AnalyzeSegment computes the analysis summary of a full segment. Empty
// input yields a zeroed result.
func (a *Analyzer) AnalyzeSegment(samples []float32) AnalysisResult {
	if len(samples) == 0 {
		return AnalysisResult{SpectralFeatures: []float64{}}
	}
	s := summarize(samples)
	m := s.metrics(samples, 0)
	return AnalysisResult{
		AverageVolume:    s.avg,
		PeakVolume:       s.peak,
		NoiseFloor:       s.noise,
		SpectralFeatures: []float64{},
		HasSpeech:        s.avg > a.SpeechThreshold,
		OverallQuality:   Score(m),
	}
}

// Score folds quality metrics into a single value in [0, 1]:
// up to 0.4 for SNR (0 to 40 dB), up to 0.3 for loudness (full inside
// -20..-6 dBFS, decaying exponentially outside), 0.2 when not clipping and
// 0.1 when not silent.
func Score(m QualityMetrics) float64 {
	score := 0.4 * clamp01(m.SNR/40)

	db := 20 * math.Log10(m.AverageVolume)
	switch {
	case db >= volumeLowDB && db <= volumeHighDB:
		score += 0.3
	case db < volumeLowDB:
		score += 0.3 * math.Exp(-(volumeLowDB-db)/10)
	case db > volumeHighDB:
		score += 0.3 * math.Exp(-(db-volumeHighDB)/10)
	}

	if !m.IsClipping {
		score += 0.2
	}
	if !m.IsSilent {
		score += 0.1
	}
	return clamp01(score)
}

type summary struct {
	avg, peak, noise float64
}

func summarize(samples []float32) summary {
	mags := make([]float64, len(samples))
	var sum, peak float64
	for i, v := range samples {
		m := math.Abs(float64(v))
		mags[i] = m
		sum += m
		if m > peak {
			peak = m
		}
	}
	slices.Sort(mags)
	return summary{
		avg:   sum / float64(len(samples)),
		peak:  peak,
		noise: mags[int(math.Floor(noisePercentile*float64(len(mags))))],
	}
}

// snr returns 20*log10(avg/noise). A zero noise floor reports MaxSNR when
// signal is present and 0 for an all-zero buffer.
func (s summary) snr() float64 {
	if s.noise > 0 {
		return 20 * math.Log10(s.avg/s.noise)
	}
	if s.avg > 0 {
		return MaxSNR
	}
	return 0
}

// zeroCrossingRate returns the fraction of adjacent sample pairs whose sign
// differs. Zero counts as positive.
func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
