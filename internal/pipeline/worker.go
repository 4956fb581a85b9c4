package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// bgCtx is used for metric recording on paths that have no request context.
var bgCtx = context.Background()

var errMisaligned = errors.New("payload is not a whole number of samples")

// worker runs per-chunk quality and visualisation analysis off the ingest
// path until ctx is cancelled.
func (p *Pipeline) worker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.chunks:
			p.processChunk(f)
		}
	}
}

// processChunk analyses one frame. Failures, including panics, are reported
// on the quality and error buses and never stop the worker.
func (p *Pipeline) processChunk(f audio.AudioFrame) {
	defer func() {
		if r := recover(); r != nil {
			p.reportChunkError(f, fmt.Errorf("panic: %v", r))
		}
	}()

	if !f.Aligned() {
		p.reportChunkError(f, fmt.Errorf("%w (%d bytes, %s)", errMisaligned, len(f.Data), f.Format()))
		return
	}

	mono := audio.Downmix(audio.Decode(f.Data, f.BitDepth), f.Channels)
	t := p.Tuning()

	if t.EnableQualityAnalysis {
		a := analysis.Analyzer{SpeechThreshold: t.SpeechThreshold}
		p.quality.Publish(QualityEvent{Metrics: a.AnalyzeChunk(mono, f.Timestamp)})
	}
	if t.EnableVisualization {
		p.visual.Publish(p.vis.Update(mono, f.SampleRate, f.Timestamp))
	}
}

func (p *Pipeline) reportChunkError(f audio.AudioFrame, err error) {
	perr := &ProcessingError{Stage: "chunk", Timestamp: f.Timestamp, Err: err}
	p.metrics.RecordProcessingError(bgCtx, "chunk")
	p.quality.Publish(QualityEvent{
		Metrics: analysis.QualityMetrics{Timestamp: f.Timestamp},
		Err:     perr,
	})
	p.errs.Publish(perr)
	slog.Debug("pipeline: chunk analysis failed", "err", perr)
}

// drainChunks discards queued chunks left over from a stopped session.
func (p *Pipeline) drainChunks() {
	for {
		select {
		case <-p.chunks:
		default:
			return
		}
	}
}
