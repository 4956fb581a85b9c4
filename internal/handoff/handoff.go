// Package handoff forwards finished segments to a transcription backend.
//
// A [Dispatcher] subscribes to the pipeline's segment stream when it is
// created, so no segment emitted afterwards is missed. [Dispatcher.Run]
// transcribes every segment that contains enough speech, with bounded
// concurrency and a per-segment timeout, and publishes each outcome as a
// [Transcript]. Failures are reported, never retried here; failover between
// backends belongs to the provider (see resilience.TranscribeFallback).
package handoff

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/bus"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// Transcript is the outcome of one segment's hand-off. Exactly one of
// Result.Text (possibly empty) or Err is meaningful.
type Transcript struct {
	transcribe.Result
	Err error
}

// Config tunes a [Dispatcher].
type Config struct {
	// Language is passed as a hint with every request.
	Language string

	// Timeout bounds each segment's transcription. Default: 2m.
	Timeout time.Duration

	// Concurrency bounds in-flight transcriptions. Default: 1.
	Concurrency int

	// MinSpeech skips segments whose detected speech is shorter.
	MinSpeech time.Duration

	// History is the number of recent transcripts kept. Default: 50.
	History int
}

// Stats counts dispatcher outcomes since creation.
type Stats struct {
	InFlight  int64 `json:"inFlight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Option is a functional option for [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSubscriberBuffer sets how many pending segments the subscription
// holds before the bus starts dropping. Default: 16.
func WithSubscriberBuffer(n int) Option {
	return func(d *Dispatcher) { d.subBuffer = n }
}

// Dispatcher hands finished segments to a transcription provider.
type Dispatcher struct {
	provider  transcribe.Provider
	cfg       Config
	metrics   *observe.Metrics
	subBuffer int

	segments    <-chan pipeline.Segment
	unsubscribe func()
	transcripts *bus.Bus[Transcript]

	running atomic.Bool
	closed  atomic.Bool

	inFlight, completed, failed, skipped atomic.Int64

	mu     sync.Mutex
	recent []Transcript
}

// New creates a Dispatcher for provider and subscribes it to segments.
func New(provider transcribe.Provider, segments *bus.Bus[pipeline.Segment], cfg Config, opts ...Option) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.History <= 0 {
		cfg.History = 50
	}
	d := &Dispatcher{
		provider:    provider,
		cfg:         cfg,
		subBuffer:   bus.DefaultBuffer,
		transcripts: bus.New[Transcript](),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.segments, d.unsubscribe = segments.Subscribe(d.subBuffer)
	return d
}

// Transcripts returns the stream of hand-off outcomes.
func (d *Dispatcher) Transcripts() *bus.Bus[Transcript] { return d.transcripts }

// Run processes segments until [Dispatcher.Close] is called or ctx is done,
// then waits for in-flight transcriptions and closes the transcript stream.
// Segments already queued when Close is called are still processed, even if
// Run starts after Close. Cancelling ctx aborts in-flight work. Run may be
// called only once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("handoff: dispatcher already running")
	}
	defer d.transcripts.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case seg, ok := <-d.segments:
			if !ok {
				break loop
			}
			if !d.eligible(seg) {
				d.skipped.Add(1)
				observe.Logger(observe.WithSegment(ctx, seg.SessionID, seg.ID)).Debug("handoff: segment skipped",
					"speech", SpeechDuration(seg))
				continue
			}
			d.inFlight.Add(1)
			g.Go(func() error {
				defer d.inFlight.Add(-1)
				d.transcribe(gctx, seg)
				return nil
			})
		}
	}
	return g.Wait()
}

// Close stops accepting new segments. Run returns once the queued and
// in-flight ones are done. Close is safe to call more than once.
func (d *Dispatcher) Close() {
	if d.closed.CompareAndSwap(false, true) {
		d.unsubscribe()
	}
}

// Stats returns the outcome counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		InFlight:  d.inFlight.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Skipped:   d.skipped.Load(),
	}
}

// Recent returns the most recent transcripts, oldest first.
func (d *Dispatcher) Recent() []Transcript {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transcript(nil), d.recent...)
}

func (d *Dispatcher) eligible(seg pipeline.Segment) bool {
	if !seg.HasSpeech() || len(seg.Samples) == 0 {
		return false
	}
	return SpeechDuration(seg) >= d.cfg.MinSpeech
}

func (d *Dispatcher) transcribe(ctx context.Context, seg pipeline.Segment) {
	ctx, cancel := context.WithTimeout(observe.WithSegment(ctx, seg.SessionID, seg.ID), d.cfg.Timeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "handoff.transcribe")
	defer span.End()
	log := observe.Logger(ctx)

	res, err := d.provider.Transcribe(ctx, transcribe.Request{
		SegmentID:  seg.ID,
		SessionID:  seg.SessionID,
		Samples:    seg.Samples,
		SampleRate: seg.SampleRate,
		Channels:   seg.Channels,
		Start:      seg.Start,
		Language:   d.cfg.Language,
	})

	t := Transcript{Result: res, Err: err}
	if err != nil {
		span.RecordError(err)
		d.failed.Add(1)
		d.metrics.RecordProcessingError(ctx, "transcribe")
		log.Warn("handoff: transcription failed", "err", err)
		t.SegmentID, t.SessionID = seg.ID, seg.SessionID
		t.Start, t.Duration = seg.Start, seg.Duration
	} else {
		d.completed.Add(1)
		log.Info("handoff: segment transcribed",
			"provider", res.Provider,
			"latency", res.Latency,
			"chars", len(res.Text))
	}

	d.mu.Lock()
	d.recent = append(d.recent, t)
	if over := len(d.recent) - d.cfg.History; over > 0 {
		d.recent = append(d.recent[:0:0], d.recent[over:]...)
	}
	d.mu.Unlock()

	d.transcripts.Publish(t)
}

// SpeechDuration sums the detected speech regions of seg.
func SpeechDuration(seg pipeline.Segment) time.Duration {
	var total time.Duration
	for _, r := range seg.Regions {
		if r.End > r.Start {
			total += r.End - r.Start
		}
	}
	return total
}
