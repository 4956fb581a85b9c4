// Package transcribe defines the Provider interface for batch speech-to-text
// backends that consume finished audio segments.
//
// A segment arrives as a [Request] holding normalised float32 samples; the
// provider returns a single [Result]. Unlike a streaming recogniser there is
// no session to manage: each call is independent, which lets the caller retry
// against a different backend when one fails.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// ErrEmptyAudio is returned when a request carries no samples.
var ErrEmptyAudio = errors.New("transcribe: request has no audio")

// Request is one segment submitted for transcription.
type Request struct {
	// SegmentID and SessionID identify the segment in logs and results.
	SegmentID uint64
	SessionID string

	// Samples holds interleaved float32 samples in [-1, 1].
	Samples    []float32
	SampleRate int
	Channels   int

	// Start is the capture time of the first sample.
	Start time.Duration

	// Language is a BCP-47 hint (e.g., "en"). Empty lets the provider detect
	// the language when it supports that.
	Language string
}

// Duration returns the playback length of the request audio.
func (r Request) Duration() time.Duration {
	ch := max(r.Channels, 1)
	return audio.Format{SampleRate: r.SampleRate, Channels: ch}.DurationOf(len(r.Samples) / ch)
}

// Mono returns the samples downmixed to one channel.
func (r Request) Mono() []float32 {
	return audio.Downmix(r.Samples, r.Channels)
}

// WAV encodes the request audio as a 16-bit PCM WAV file.
func (r Request) WAV() []byte {
	return audio.EncodeWAV(audio.EncodePCM16(r.Samples), r.SampleRate, max(r.Channels, 1))
}

// Validate reports whether the request can be submitted.
func (r Request) Validate() error {
	if len(r.Samples) == 0 {
		return ErrEmptyAudio
	}
	if r.SampleRate <= 0 {
		return errors.New("transcribe: sample rate must be positive")
	}
	return nil
}

// Result is the transcription of one segment.
type Result struct {
	SegmentID uint64
	SessionID string

	// Text is the full transcript, whitespace-trimmed. It may be empty when
	// the provider heard nothing intelligible.
	Text string

	// Language is the detected or requested language, when known.
	Language string

	// Words holds word or phrase timing when the provider reports it.
	// Times are relative to the segment start.
	Words []Word

	// Provider names the backend that produced the result.
	Provider string

	// Start and Duration locate the segment in capture time.
	Start    time.Duration
	Duration time.Duration

	// Latency is the wall-clock time the provider took.
	Latency time.Duration
}

// Word is a timed unit of recognised text.
type Word struct {
	Text       string
	Start, End time.Duration
	Confidence float64
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe converts the request audio to text. It honours ctx
	// cancellation and returns an error rather than an empty result when the
	// backend could not be reached.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
