package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// Start transitions to [StateProcessing]: it opens the ingest buffer, starts
// the chunk worker and arms the segment timer. Each call begins a new
// session with a fresh identifier sequence and an empty history.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return &StateError{Op: "start", State: p.State(), Err: ErrNotInitialized}
	}
	if p.State() == StateProcessing {
		return &StateError{Op: "start", State: StateProcessing, Err: ErrAlreadyProcessing}
	}

	p.sessionID = uuid.NewString()
	p.emitter.ResetIDs()
	p.emitter.ClearHistory()
	p.vis.Reset()
	p.buf.Open(p.sessionID)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ticker := p.newTicker(p.cfg.SegmentDuration)
	p.loopDone = make(chan struct{})
	p.workerDone = make(chan struct{})
	p.stop = func() {
		cancel()
		ticker.Stop()
	}

	go p.loop(runCtx, ticker, p.loopDone)
	go p.worker(runCtx, p.workerDone)

	p.state.Store(int32(StateProcessing))
	slog.Info("pipeline started", "session_id", p.sessionID)
	return nil
}

// Stop cancels the timer, waits for any in-flight finalize, emits the
// remaining audio as a last segment, then clears all buffers and resets the
// identifier counter. It is a no-op when idle and safe to call from any
// goroutine. A concurrent Start blocks until the teardown is complete.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.State() != StateProcessing {
		p.mu.Unlock()
		return nil
	}
	p.state.Store(int32(StateIdle))
	p.buf.Close()
	stop, loopDone, workerDone := p.stop, p.loopDone, p.workerDone
	sessionID := p.sessionID
	p.mu.Unlock()

	stop()
	<-loopDone
	<-workerDone

	_, _, err := p.finalize(ctx, TriggerStop)

	released := p.buf.Reset()
	p.metrics.BufferedSamples.Add(bgCtx, -int64(released))
	p.drainChunks()
	p.vis.Reset()
	p.emitter.ResetIDs()

	slog.Info("pipeline stopped", "session_id", sessionID)
	return err
}

// Flush finalizes the current buffer immediately, exactly as a timer tick
// would. It returns [ErrNothingToFlush] when no audio arrived since the
// previous segment.
func (p *Pipeline) Flush(ctx context.Context) (Segment, error) {
	if st := p.State(); st != StateProcessing {
		return Segment{}, &StateError{Op: "flush", State: st, Err: ErrNotProcessing}
	}
	seg, ok, err := p.finalize(ctx, TriggerManual)
	if err != nil {
		return Segment{}, err
	}
	if !ok {
		return Segment{}, ErrNothingToFlush
	}
	return seg, nil
}

func (p *Pipeline) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, _, err := p.finalize(ctx, TriggerTimer); err != nil {
				slog.Warn("pipeline: scheduled finalize failed", "err", err)
			}
		}
	}
}

// finalize is the single routine behind timer ticks, manual flushes and the
// stop flush. Timer and manual triggers retain the trailing overlap; the
// stop trigger drains everything. It reports false when there was no new
// audio to emit.
func (p *Pipeline) finalize(ctx context.Context, trigger Trigger) (Segment, bool, error) {
	p.finalizeMu.Lock()
	defer p.finalizeMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "pipeline.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("trigger", trigger.String()))

	started := time.Now()
	var cut Cut
	if trigger == TriggerStop {
		cut = p.buf.Drain()
	} else {
		cut = p.buf.Cut(p.cfg.OverlapDuration)
	}
	p.metrics.BufferedSamples.Add(ctx, -int64(cut.Dropped))

	if cut.Fresh == 0 {
		return Segment{}, false, nil
	}

	seg, err := p.build(cut, trigger)
	if err != nil {
		perr := &ProcessingError{Stage: "segment", Timestamp: cut.Frames[0].Timestamp, Err: err}
		p.metrics.RecordProcessingError(ctx, "segment")
		p.errs.Publish(perr)
		observe.Logger(ctx).Warn("pipeline: segment dropped", "err", perr)
		return Segment{}, false, perr
	}

	seg = p.emitter.Emit(seg)
	elapsed := time.Since(started)
	p.metrics.RecordSegment(ctx, trigger.String(), seg.QualityScore, elapsed.Seconds())
	span.SetAttributes(
		attribute.Int64("segment.id", int64(seg.ID)),
		attribute.Bool("segment.has_speech", seg.Analysis.HasSpeech),
	)
	observe.Logger(observe.WithSegment(ctx, seg.SessionID, seg.ID)).Info("segment emitted",
		"trigger", trigger.String(),
		"duration", seg.Duration,
		"regions", len(seg.Regions),
		"has_speech", seg.Analysis.HasSpeech,
		"quality", seg.QualityScore,
		"elapsed", elapsed,
	)
	return seg, true, nil
}

// build turns a snapshot into a segment. It operates only on the snapshot,
// never the live buffer. Speech detection and analysis run on the raw mono
// downmix; the segment carries the cleaned interleaved samples.
func (p *Pipeline) build(cut Cut, trigger Trigger) (seg Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if p.buildHook != nil {
		p.buildHook(trigger)
	}

	f := p.cfg.Format
	raw := audio.DecodeFrames(cut.Frames)
	if len(raw) == 0 {
		return Segment{}, fmt.Errorf("no decodable samples in %d frames", len(cut.Frames))
	}
	mono := audio.Downmix(raw, f.Channels)

	t := p.Tuning()
	var cleaned []float32
	if t.EnablePreprocessing {
		cleaned = p.pre.Process(raw, t.NoiseReductionLevel)
	} else {
		cleaned = append([]float32(nil), raw...)
	}

	start := cut.Frames[0].Timestamp
	duration := f.DurationOf(len(mono))
	seg = Segment{
		SessionID:      cut.Session,
		Start:          start,
		End:            start + duration,
		Duration:       duration,
		Samples:        cleaned,
		SampleRate:     f.SampleRate,
		Channels:       f.Channels,
		Regions:        analysis.Detect(mono, f.SampleRate, t.SpeechThreshold),
		Trigger:        trigger,
		FreshSamples:   cut.Fresh,
		CarriedSamples: cut.Carried,
	}

	analyzer := analysis.Analyzer{SpeechThreshold: t.SpeechThreshold}
	seg.Analysis = analyzer.AnalyzeSegment(mono)
	if t.EnableQualityAnalysis {
		seg.Quality = analyzer.AnalyzeChunk(mono, start)
		seg.QualityScore = analysis.Score(seg.Quality)
	} else {
		seg.Analysis.OverallQuality = 0
	}
	return seg, nil
}
