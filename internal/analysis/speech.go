// Package analysis implements the signal-level stages of the segmentation
// pipeline: energy-based speech region detection, quality statistics,
// preprocessing and the live visualisation reduction.
//
// All functions operate on normalised float32 mono samples and are
// deterministic. None of them mutate their input.
package analysis

import (
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

const (
	// DetectionWindow is the length of one energy window.
	DetectionWindow = 100 * time.Millisecond

	// DetectionStep is the hop between consecutive windows.
	DetectionStep = 50 * time.Millisecond

	// DefaultRegionConfidence is the confidence attached to every detected
	// region. The energy detector has no real confidence model.
	DefaultRegionConfidence = 0.8
)

// SpeechRegion is a contiguous span of a segment judged to contain speech.
// Times and sample indices are relative to the start of the segment.
type SpeechRegion struct {
	Start, End             time.Duration
	StartSample, EndSample int

	// Confidence is in [0, 1].
	Confidence float64

	// AverageVolume is the mean absolute amplitude of the last window
	// evaluated inside the region.
	AverageVolume float64
}

// Duration returns End - Start.
func (r SpeechRegion) Duration() time.Duration {
	return r.End - r.Start
}

// Detect partitions samples into speech regions using a sliding
// mean-absolute-energy window and a two-state silence/speech machine.
//
// A region opens at the start of the first window whose energy exceeds
// threshold and closes at the start of the first subsequent window whose
// energy is at or below it; zero-length regions are discarded. A region still
// open when the windows run out closes at the end of the buffer. Buffers
// shorter than one window yield no regions.
func Detect(samples []float32, sampleRate int, threshold float64) []SpeechRegion {
	if sampleRate <= 0 {
		return nil
	}
	f := audio.Format{SampleRate: sampleRate, Channels: 1}
	window := f.SamplesIn(DetectionWindow)
	step := f.SamplesIn(DetectionStep)
	n := len(samples)
	if window <= 0 || step <= 0 || n < window {
		return nil
	}

	var (
		regions    []SpeechRegion
		inSpeech   bool
		startIdx   int
		lastEnergy float64
	)
	closeRegion := func(end int) {
		if end > startIdx {
			regions = append(regions, SpeechRegion{
				Start:         f.DurationOf(startIdx),
				End:           f.DurationOf(end),
				StartSample:   startIdx,
				EndSample:     end,
				Confidence:    clamp01(DefaultRegionConfidence),
				AverageVolume: lastEnergy,
			})
		}
		inSpeech = false
	}

	for start := 0; start+window <= n; start += step {
		e := audio.MeanAbs(samples[start : start+window])
		switch {
		case !inSpeech && e > threshold:
			inSpeech = true
			startIdx = start
			lastEnergy = e
		case inSpeech && e <= threshold:
			closeRegion(start)
		case inSpeech:
			lastEnergy = e
		}
	}
	if inSpeech {
		closeRegion(n)
	}
	return regions
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
