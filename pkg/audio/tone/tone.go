// Package tone provides a synthetic [audio.Source] that generates a sine tone
// alternating with silence at real-time cadence. It stands in for a capture
// device in demos, soak tests and environments without audio hardware.
package tone

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

const (
	defaultFrequency   = 440.0
	defaultAmplitude   = 0.3
	defaultFrameSize   = 1600
	defaultOnDuration  = 3 * time.Second
	defaultOffDuration = time.Second
)

// Option is a functional option for configuring a tone Source.
type Option func(*Source)

// WithID overrides the descriptor ID (default "tone").
func WithID(id string) Option {
	return func(s *Source) { s.id = id }
}

// WithFormat sets the produced frame format. Only 16-bit output is generated;
// other bit depths are coerced to 16.
func WithFormat(f audio.Format) Option {
	return func(s *Source) {
		f.BitDepth = 16
		s.format = f
	}
}

// WithFrequency sets the tone frequency in Hz.
func WithFrequency(hz float64) Option {
	return func(s *Source) { s.frequency = hz }
}

// WithAmplitude sets the peak amplitude in [0, 1].
func WithAmplitude(a float64) Option {
	return func(s *Source) { s.amplitude = a }
}

// WithFrameSize sets the number of per-channel samples in each frame.
func WithFrameSize(n int) Option {
	return func(s *Source) { s.frameSize = n }
}

// WithPattern sets how long the tone plays before falling silent and how long
// the silence lasts. A zero off duration produces a continuous tone.
func WithPattern(on, off time.Duration) Option {
	return func(s *Source) {
		s.on = on
		s.off = off
	}
}

// WithRealtime controls whether frames are paced at wall-clock rate (the
// default) or delivered as fast as possible.
func WithRealtime(realtime bool) Option {
	return func(s *Source) { s.realtime = realtime }
}

// Source is a synthetic tone generator.
type Source struct {
	id        string
	format    audio.Format
	frequency float64
	amplitude float64
	frameSize int
	on, off   time.Duration
	realtime  bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a tone Source with the given options.
func New(opts ...Option) *Source {
	s := &Source{
		id:        "tone",
		format:    audio.DefaultFormat,
		frequency: defaultFrequency,
		amplitude: defaultAmplitude,
		frameSize: defaultFrameSize,
		on:        defaultOnDuration,
		off:       defaultOffDuration,
		realtime:  true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Describe implements [audio.Source].
func (s *Source) Describe() audio.Descriptor {
	return audio.Descriptor{
		ID:        s.id,
		Name:      "Synthetic Tone",
		Kind:      audio.KindSynthetic,
		Available: true,
		Format:    s.format,
	}
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context, onFrame func(audio.AudioFrame)) error {
	if onFrame == nil {
		return errors.New("tone: nil frame callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("tone: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, onFrame, s.done)
	return nil
}

// Stop implements [audio.Source]. It blocks until the generator goroutine
// has exited.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *Source) run(ctx context.Context, onFrame func(audio.AudioFrame), done chan struct{}) {
	defer close(done)

	frameDur := s.format.DurationOf(s.frameSize)
	var tick <-chan time.Time
	if s.realtime && frameDur > 0 {
		ticker := time.NewTicker(frameDur)
		defer ticker.Stop()
		tick = ticker.C
	}

	var sample int64
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}
		onFrame(s.Frame(sample))
		sample += int64(s.frameSize)
	}
}

// Frame renders the frame that starts at per-channel sample index start.
// It is deterministic and exported so tests can build reference audio.
func (s *Source) Frame(start int64) audio.AudioFrame {
	ch := s.format.Channels
	data := make([]byte, s.frameSize*ch*2)
	rate := float64(s.format.SampleRate)
	period := int64(s.format.SamplesIn(s.on + s.off))
	onSamples := int64(s.format.SamplesIn(s.on))

	for i := range s.frameSize {
		idx := start + int64(i)
		var v float64
		if s.off <= 0 || period <= 0 || idx%period < onSamples {
			v = s.amplitude * math.Sin(2*math.Pi*s.frequency*float64(idx)/rate)
		}
		pcm := uint16(int16(v * 32767))
		for c := range ch {
			binary.LittleEndian.PutUint16(data[(i*ch+c)*2:], pcm)
		}
	}

	return audio.AudioFrame{
		Data:       data,
		SampleRate: s.format.SampleRate,
		Channels:   ch,
		BitDepth:   16,
		Timestamp:  s.format.DurationOf(int(start)),
		Duration:   s.format.DurationOf(s.frameSize),
	}
}
