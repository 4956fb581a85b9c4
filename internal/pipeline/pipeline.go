// Package pipeline turns a continuous stream of audio frames into bounded,
// overlapping, analysed segments.
//
// A [Pipeline] receives frames through [Pipeline.Accept], which never blocks:
// frames are appended to the [IngestBuffer] and per-chunk quality and
// visualisation work is handed to a single worker goroutine through a
// bounded queue. A periodic scheduler, and any explicit [Pipeline.Flush],
// funnel through one finalize routine that snapshots the long window,
// preprocesses it, detects speech regions, analyses quality and emits a
// [Segment] on the segment bus.
//
// Outputs are exposed as broadcast buses: [Pipeline.Segments],
// [Pipeline.Quality], [Pipeline.Visualizer] and [Pipeline.Errors]. All are
// best-effort; slow subscribers miss values rather than stalling ingestion.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/bus"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// State is the processing state of a [Pipeline].
type State int32

const (
	// StateIdle accepts no frames and emits nothing.
	StateIdle State = iota

	// StateProcessing accepts frames and emits segments.
	StateProcessing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Config is the static pipeline configuration.
type Config struct {
	// Format is the only accepted frame format.
	Format audio.Format

	// SegmentDuration is the scheduler period.
	SegmentDuration time.Duration

	// OverlapDuration is the trailing audio carried into the next segment.
	OverlapDuration time.Duration

	// VisualizationWindow bounds the short window.
	VisualizationWindow time.Duration

	// MaxHistorySegments caps the retained segment history.
	MaxHistorySegments int

	// ChunkQueueSize bounds the per-chunk worker queue.
	ChunkQueueSize int

	Preprocess analysis.PreprocessConfig
	Visualizer analysis.VisualizerConfig

	// Tuning holds the initial hot-reloadable parameters.
	Tuning Tuning
}

// Tuning holds parameters that may change while processing.
type Tuning struct {
	SpeechThreshold       float64
	NoiseReductionLevel   float64
	EnablePreprocessing   bool
	EnableQualityAnalysis bool
	EnableVisualization   bool
}

// DefaultConfig returns the default configuration: 16 kHz mono 16-bit
// frames, 60 s segments with 10 s overlap and a 5 s visualisation window.
func DefaultConfig() Config {
	vis := analysis.DefaultVisualizerConfig()
	return Config{
		Format:              audio.DefaultFormat,
		SegmentDuration:     60 * time.Second,
		OverlapDuration:     10 * time.Second,
		VisualizationWindow: 5 * time.Second,
		MaxHistorySegments:  10,
		ChunkQueueSize:      64,
		Preprocess:          analysis.DefaultPreprocessConfig(),
		Visualizer:          vis,
		Tuning: Tuning{
			SpeechThreshold:       vis.SpeechThreshold,
			NoiseReductionLevel:   0.3,
			EnablePreprocessing:   true,
			EnableQualityAnalysis: true,
			EnableVisualization:   true,
		},
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if !c.Format.Valid() {
		errs = append(errs, fmt.Errorf("format %s is not supported", c.Format))
	}
	if c.SegmentDuration <= 0 {
		errs = append(errs, errors.New("segment duration must be positive"))
	}
	if c.OverlapDuration < 0 {
		errs = append(errs, errors.New("overlap duration must not be negative"))
	}
	if c.SegmentDuration > 0 && c.OverlapDuration >= c.SegmentDuration {
		errs = append(errs, fmt.Errorf("overlap duration %s must be shorter than segment duration %s", c.OverlapDuration, c.SegmentDuration))
	}
	if c.VisualizationWindow <= 0 {
		errs = append(errs, errors.New("visualization window must be positive"))
	}
	if c.MaxHistorySegments <= 0 {
		errs = append(errs, errors.New("max history segments must be positive"))
	}
	if c.ChunkQueueSize <= 0 {
		errs = append(errs, errors.New("chunk queue size must be positive"))
	}
	if l := c.Tuning.NoiseReductionLevel; l < 0 || l > 1 {
		errs = append(errs, fmt.Errorf("noise reduction level %v must be within [0, 1]", l))
	}
	if c.Tuning.SpeechThreshold < 0 {
		errs = append(errs, errors.New("speech threshold must not be negative"))
	}
	return errors.Join(errs...)
}

// QualityEvent is one entry of the quality stream: either metrics for a
// chunk or the error that prevented computing them.
type QualityEvent struct {
	Metrics analysis.QualityMetrics
	Err     error
}

// Ticker abstracts [time.Ticker] so tests can drive the scheduler.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTickerFactory replaces the scheduler's ticker source.
func WithTickerFactory(fn func(time.Duration) Ticker) Option {
	return func(p *Pipeline) { p.newTicker = fn }
}

// WithBusBuffer sets the default subscriber buffer used by helper
// subscriptions. Subscribers may still choose their own size.
func WithBusBuffer(n int) Option {
	return func(p *Pipeline) { p.busBuffer = n }
}

// Pipeline is the streaming segmentation pipeline. Create one with [New],
// then call [Pipeline.Initialize] before [Pipeline.Start].
type Pipeline struct {
	cfg       Config
	metrics   *observe.Metrics
	newTicker func(time.Duration) Ticker
	busBuffer int

	segments *bus.Bus[Segment]
	quality  *bus.Bus[QualityEvent]
	visual   *bus.Bus[analysis.VisualizerSample]
	errs     *bus.Bus[error]

	buf     *IngestBuffer
	pre     *analysis.Preprocessor
	vis     *analysis.Visualizer
	emitter *Emitter
	chunks  chan audio.AudioFrame

	state atomic.Int32

	// lifecycle is held for the whole of Initialize, Start and Stop, so a
	// Start cannot begin while a Stop is still flushing the previous session.
	// It is always acquired before mu.
	lifecycle sync.Mutex

	// mu guards the fields below.
	mu          sync.Mutex
	initialized bool
	sessionID   string
	stop        func()
	loopDone    chan struct{}
	workerDone  chan struct{}

	// finalizeMu serialises finalize between ticks, flushes and stop.
	finalizeMu sync.Mutex

	tuneMu sync.RWMutex
	tuning Tuning

	// buildHook, when set, runs at the start of every segment build.
	buildHook func(Trigger)
}

// New creates an uninitialised Pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		busBuffer: bus.DefaultBuffer,
		newTicker: func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} },
		segments:  bus.New[Segment](),
		quality:   bus.New[QualityEvent](),
		visual:    bus.New[analysis.VisualizerSample](),
		errs:      bus.New[error](),
		tuning:    cfg.Tuning,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Initialize validates the configuration and builds the sub-components. It
// may be retried after a failure. Calling it while processing is a
// [StateError].
func (p *Pipeline) Initialize() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateProcessing {
		return &StateError{Op: "initialize", State: StateProcessing, Err: ErrAlreadyProcessing}
	}
	if err := p.cfg.Validate(); err != nil {
		p.initialized = false
		return &InitializationError{Component: "config", Err: err}
	}

	p.buf = NewIngestBuffer(p.cfg.Format, p.cfg.VisualizationWindow)
	p.pre = analysis.NewPreprocessor(p.cfg.Preprocess)
	visCfg := p.cfg.Visualizer
	visCfg.SpeechThreshold = p.Tuning().SpeechThreshold
	p.vis = analysis.NewVisualizer(visCfg)
	p.emitter = NewEmitter(p.cfg.MaxHistorySegments, p.segments)
	p.chunks = make(chan audio.AudioFrame, p.cfg.ChunkQueueSize)
	p.initialized = true

	slog.Info("pipeline initialized",
		"format", p.cfg.Format.String(),
		"segment", p.cfg.SegmentDuration,
		"overlap", p.cfg.OverlapDuration,
	)
	return nil
}

// Config returns the static configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// State returns the current processing state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Initialized reports whether [Pipeline.Initialize] has succeeded.
func (p *Pipeline) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// SessionID returns the identifier of the current or most recent session.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Tuning returns the active hot-reloadable parameters.
func (p *Pipeline) Tuning() Tuning {
	p.tuneMu.RLock()
	defer p.tuneMu.RUnlock()
	return p.tuning
}

// UpdateTuning replaces the hot-reloadable parameters. Changes apply to the
// next chunk and the next segment.
func (p *Pipeline) UpdateTuning(t Tuning) {
	p.tuneMu.Lock()
	p.tuning = t
	p.tuneMu.Unlock()

	p.mu.Lock()
	vis := p.vis
	p.mu.Unlock()
	if vis != nil {
		vis.SetSpeechThreshold(t.SpeechThreshold)
	}
}

// Segments returns the segment bus.
func (p *Pipeline) Segments() *bus.Bus[Segment] { return p.segments }

// Quality returns the per-chunk quality bus.
func (p *Pipeline) Quality() *bus.Bus[QualityEvent] { return p.quality }

// Visualizer returns the per-chunk visualisation bus.
func (p *Pipeline) Visualizer() *bus.Bus[analysis.VisualizerSample] { return p.visual }

// Errors returns the bus of recoverable processing errors.
func (p *Pipeline) Errors() *bus.Bus[error] { return p.errs }

// Accept is the frame source callback. It reports whether the frame was
// buffered. It never blocks: rejected frames are dropped, and when the chunk
// queue is full the frame's live analysis is skipped while the frame itself
// is still buffered for segmentation.
func (p *Pipeline) Accept(f audio.AudioFrame) bool {
	if p.State() != StateProcessing {
		p.metrics.RecordFrameRejected(bgCtx, "idle")
		return false
	}

	if err := p.buf.Append(f); err != nil {
		reason := "closed"
		var fm *FormatMismatchError
		switch {
		case errors.As(err, &fm):
			reason = "format"
		case errors.Is(err, ErrEmptyFrame):
			reason = "empty"
		}
		slog.Debug("pipeline: frame dropped", "reason", reason, "err", err)
		p.metrics.RecordFrameRejected(bgCtx, reason)
		return false
	}
	p.metrics.FramesAccepted.Add(bgCtx, 1)
	p.metrics.BufferedSamples.Add(bgCtx, int64(f.SampleCount()))

	t := p.Tuning()
	if !t.EnableQualityAnalysis && !t.EnableVisualization {
		return true
	}
	select {
	case p.chunks <- f:
	default:
		p.metrics.ChunksDropped.Add(bgCtx, 1)
	}
	return true
}

// Recent returns the decoded mono samples of the short window, oldest first.
func (p *Pipeline) Recent() ([]float32, audio.Format) {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return nil, p.cfg.Format
	}
	frames := buf.Recent()
	mono := audio.Downmix(audio.DecodeFrames(frames), p.cfg.Format.Channels)
	f := p.cfg.Format
	f.Channels = 1
	return mono, f
}

// History returns the retained segments, oldest first.
func (p *Pipeline) History() []Segment {
	if e := p.emitterOrNil(); e != nil {
		return e.History()
	}
	return nil
}

// Segment returns a retained segment by id.
func (p *Pipeline) Segment(id uint64) (Segment, bool) {
	if e := p.emitterOrNil(); e != nil {
		return e.Get(id)
	}
	return Segment{}, false
}

func (p *Pipeline) emitterOrNil() *Emitter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitter
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State           State
	SessionID       string
	BufferedSamples int
	BufferedFrames  int
	Buffered        time.Duration
	LastSegmentID   uint64
	QueuedChunks    int
	Subscribers     map[string]int
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	st := Status{
		State:     p.State(),
		SessionID: p.sessionID,
		Subscribers: map[string]int{
			"segments":   p.segments.Len(),
			"quality":    p.quality.Len(),
			"visualizer": p.visual.Len(),
			"errors":     p.errs.Len(),
		},
	}
	buf, em, chunks := p.buf, p.emitter, p.chunks
	p.mu.Unlock()

	if buf != nil {
		st.BufferedSamples = buf.Samples()
		st.BufferedFrames = buf.Len()
		st.Buffered = p.cfg.Format.DurationOf(st.BufferedSamples)
	}
	if em != nil {
		st.LastSegmentID = em.LastID()
	}
	st.QueuedChunks = len(chunks)
	return st
}

// Close stops processing if needed and closes every bus.
func (p *Pipeline) Close() error {
	err := p.Stop(bgCtx)
	p.segments.Close()
	p.quality.Close()
	p.visual.Close()
	p.errs.Close()
	return err
}
