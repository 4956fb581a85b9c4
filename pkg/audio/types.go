package audio

import "time"

// AudioFrame represents a single frame of captured audio flowing into the
// segmentation pipeline. Frames are immutable once produced by a [Source];
// consumers must not modify Data.
type AudioFrame struct {
	// Data holds interleaved little-endian PCM samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech capture).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// BitDepth is the number of bits per sample (8, 16, 24 or 32).
	BitDepth int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration

	// Duration is the playback length of the frame. Zero means it is derived
	// from the payload size; see [AudioFrame.Length].
	Duration time.Duration

	// Level is an optional capture-side level indication in [0, 1].
	Level float64
}

// Format returns the stream format of the frame.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: f.BitDepth}
}

// SampleCount returns the number of samples per channel in Data. Trailing
// bytes that do not form a whole multi-channel sample are ignored.
func (f AudioFrame) SampleCount() int {
	return f.Format().SampleCount(len(f.Data))
}

// Length returns Duration when set, otherwise the duration implied by the
// payload size and format.
func (f AudioFrame) Length() time.Duration {
	if f.Duration > 0 {
		return f.Duration
	}
	return f.Format().DurationOf(f.SampleCount())
}

// Aligned reports whether Data holds a whole number of multi-channel samples.
func (f AudioFrame) Aligned() bool {
	fb := f.Format().FrameBytes()
	return fb > 0 && len(f.Data)%fb == 0
}
