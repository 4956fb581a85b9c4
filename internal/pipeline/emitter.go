package pipeline

import (
	"sync"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/bus"
)

// Trigger identifies what caused a segment to be finalized.
type Trigger int

const (
	// TriggerTimer is a periodic scheduler tick.
	TriggerTimer Trigger = iota

	// TriggerManual is an explicit [Pipeline.Flush].
	TriggerManual

	// TriggerStop is the final flush performed by [Pipeline.Stop].
	TriggerStop
)

// String returns the human-readable name of the trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerTimer:
		return "timer"
	case TriggerManual:
		return "manual"
	case TriggerStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Segment is a bounded, analysed unit of audio handed to downstream
// consumers. Segments are immutable after emission; consumers must not
// modify Samples or Regions.
type Segment struct {
	// ID is unique and strictly increasing within a session.
	ID uint64

	// SessionID identifies the processing run that produced the segment.
	SessionID string

	// Start and End are capture times of the first and last sample.
	Start, End time.Duration
	Duration   time.Duration

	// Samples holds the cleaned, interleaved samples.
	Samples    []float32
	SampleRate int
	Channels   int

	// Regions are relative to Start.
	Regions  []analysis.SpeechRegion
	Analysis analysis.AnalysisResult
	Quality  analysis.QualityMetrics

	// QualityScore is in [0, 1].
	QualityScore float64

	Trigger Trigger

	// FreshSamples counts per-channel samples that arrived since the
	// previous segment; CarriedSamples counts the overlap retained from it.
	FreshSamples   int
	CarriedSamples int
}

// HasSpeech reports whether the segment contains any detected speech.
func (s Segment) HasSpeech() bool {
	return s.Analysis.HasSpeech || len(s.Regions) > 0
}

// Emitter assigns identifiers, keeps a bounded history and publishes
// segments. It is safe for concurrent use.
type Emitter struct {
	max int
	out *bus.Bus[Segment]

	mu      sync.Mutex
	lastID  uint64
	history []Segment
}

// NewEmitter creates an Emitter that keeps at most maxHistory segments and
// publishes on out.
func NewEmitter(maxHistory int, out *bus.Bus[Segment]) *Emitter {
	if maxHistory <= 0 {
		maxHistory = 1
	}
	return &Emitter{max: maxHistory, out: out}
}

// Emit assigns the next identifier to seg, records it in the history
// (evicting the oldest entry when full) and publishes it without blocking.
func (e *Emitter) Emit(seg Segment) Segment {
	e.mu.Lock()
	e.lastID++
	seg.ID = e.lastID
	e.history = append(e.history, seg)
	if len(e.history) > e.max {
		e.history = append([]Segment(nil), e.history[len(e.history)-e.max:]...)
	}
	e.mu.Unlock()

	if e.out != nil {
		e.out.Publish(seg)
	}
	return seg
}

// History returns the retained segments, oldest first.
func (e *Emitter) History() []Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Segment(nil), e.history...)
}

// Get returns the retained segment with the given id.
func (e *Emitter) Get(id uint64) (Segment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.history {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// LastID returns the most recently assigned identifier, 0 if none.
func (e *Emitter) LastID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastID
}

// ResetIDs restarts identifier assignment at 1. The history is kept.
func (e *Emitter) ResetIDs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastID = 0
}

// ClearHistory drops all retained segments.
func (e *Emitter) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
