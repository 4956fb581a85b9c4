package pipeline

import (
	"sync"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// IngestBuffer holds accepted frames in two independently bounded windows.
// The long window feeds segmentation and is trimmed only by [IngestBuffer.Cut]
// and [IngestBuffer.Drain]. The short window holds the most recent
// visualization-window of audio for [IngestBuffer.Recent] and is trimmed on
// every append; per-frame visualization runs on the chunk queue instead. All
// mutation happens under one mutex.
type IngestBuffer struct {
	format      audio.Format
	shortWindow time.Duration

	mu          sync.Mutex
	open        bool
	session     string
	long        []audio.AudioFrame
	longSamples int
	fresh       int
	short       []audio.AudioFrame
	shortDur    time.Duration
}

// Cut is a snapshot of the long window taken at finalize time.
type Cut struct {
	// Frames is the snapshot, oldest first. It shares payloads with the
	// buffer; frames are immutable.
	Frames []audio.AudioFrame

	// Fresh is the number of per-channel samples appended since the
	// previous cut. Carried is the remainder, retained from earlier cuts.
	Fresh, Carried int

	// Dropped is the number of per-channel samples released by retention.
	Dropped int

	// Session is the session the buffer was opened for.
	Session string
}

// NewIngestBuffer creates a closed buffer for frames of format f. shortWindow
// bounds the short window's total duration.
func NewIngestBuffer(f audio.Format, shortWindow time.Duration) *IngestBuffer {
	return &IngestBuffer{format: f, shortWindow: shortWindow}
}

// Open starts accepting frames for session. Cuts taken from then on carry
// that session.
func (b *IngestBuffer) Open(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.session = session
}

// Close stops accepting frames. Buffered frames are kept until
// [IngestBuffer.Drain] or [IngestBuffer.Reset].
func (b *IngestBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
}

// Append validates f and adds it to both windows. It returns
// [ErrBufferClosed], [ErrEmptyFrame] or a *[FormatMismatchError] when the
// frame is rejected.
func (b *IngestBuffer) Append(f audio.AudioFrame) error {
	if err := checkFormat(b.format, f.Format()); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return ErrEmptyFrame
	}

	n := f.SampleCount()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return ErrBufferClosed
	}

	b.long = append(b.long, f)
	b.longSamples += n
	b.fresh += n

	b.short = append(b.short, f)
	b.shortDur += f.Length()
	drop := 0
	for b.shortDur > b.shortWindow && drop < len(b.short) {
		b.shortDur -= b.short[drop].Length()
		drop++
	}
	if drop > 0 {
		b.short = compact(b.short, drop)
	}
	return nil
}

// Cut snapshots the long window, then drops whole oldest frames until at most
// overlap worth of samples remains.
func (b *IngestBuffer) Cut(overlap time.Duration) Cut {
	keep := b.format.SamplesIn(overlap)

	b.mu.Lock()
	defer b.mu.Unlock()

	c := Cut{
		Frames:  append([]audio.AudioFrame(nil), b.long...),
		Fresh:   b.fresh,
		Carried: b.longSamples - b.fresh,
		Session: b.session,
	}
	b.fresh = 0

	drop := 0
	for b.longSamples > keep && drop < len(b.long) {
		n := b.long[drop].SampleCount()
		b.longSamples -= n
		c.Dropped += n
		drop++
	}
	if drop > 0 {
		b.long = compact(b.long, drop)
	}
	return c
}

// Drain snapshots the long window and empties it.
func (b *IngestBuffer) Drain() Cut {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := Cut{
		Frames:  b.long,
		Fresh:   b.fresh,
		Carried: b.longSamples - b.fresh,
		Dropped: b.longSamples,
		Session: b.session,
	}
	b.long = nil
	b.longSamples = 0
	b.fresh = 0
	return c
}

// Reset empties both windows. It returns the number of per-channel samples
// released from the long window.
func (b *IngestBuffer) Reset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	released := b.longSamples
	b.long = nil
	b.longSamples = 0
	b.fresh = 0
	b.short = nil
	b.shortDur = 0
	return released
}

// Recent returns a copy of the short window, oldest first.
func (b *IngestBuffer) Recent() []audio.AudioFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audio.AudioFrame(nil), b.short...)
}

// Samples returns the number of per-channel samples in the long window.
func (b *IngestBuffer) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.longSamples
}

// Len returns the number of frames in the long window.
func (b *IngestBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.long)
}

// Format returns the accepted frame format.
func (b *IngestBuffer) Format() audio.Format {
	return b.format
}

// compact removes the first n frames, copying the tail into a fresh slice so
// the released frames' payloads can be collected.
func compact(frames []audio.AudioFrame, n int) []audio.AudioFrame {
	if n >= len(frames) {
		return nil
	}
	return append(make([]audio.AudioFrame, 0, len(frames)-n), frames[n:]...)
}
