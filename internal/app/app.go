// Package app wires the segmentation subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts processing and serves until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSources,
// WithTranscriber, etc.). When an option is not provided, New builds real
// implementations from the config through the registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/config"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/handoff"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/health"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/resilience"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/server"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
	level    *slog.LevelVar

	metricsHandler http.Handler
	listener       net.Listener
	pipelineOpts   []pipeline.Option

	// Subsystems: initialised in New, torn down in Shutdown.
	pipeline    *pipeline.Pipeline
	sources     []audio.Source
	source      audio.Source
	transcriber transcribe.Provider
	fallback    *resilience.TranscribeFallback
	dispatcher  *handoff.Dispatcher
	server      *server.Server

	// ctrlMu serialises Start and Stop; captureCtx bounds the source.
	ctrlMu     sync.Mutex
	captureCtx context.Context
	capturing  atomic.Bool

	cfgMu sync.Mutex

	bg             errgroup.Group
	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry sets the factory registry. Defaults to one populated by
// [RegisterBuiltins].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithSources injects the capture sources instead of creating them from config.
func WithSources(sources ...audio.Source) Option {
	return func(a *App) { a.sources = sources }
}

// WithTranscriber injects the hand-off backend instead of building the
// configured provider chain. Hand-off runs even when transcription is
// disabled in the config.
func WithTranscriber(p transcribe.Provider) Option {
	return func(a *App) { a.transcriber = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.Reload] change the log level of the handler built
// around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetricsHandler serves h at telemetry.metrics_path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener serves HTTP on ln instead of binding server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithPipelineOptions passes extra options to [pipeline.New].
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(a *App) { a.pipelineOpts = append(a.pipelineOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: pipeline, capture
// source, transcription hand-off and HTTP server. The pipeline is
// initialised but not started.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltins(a.registry)
	}

	// ── 1. Pipeline ──────────────────────────────────────────────────────
	popts := append([]pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithBusBuffer(cfg.Pipeline.StreamBuffer),
	}, a.pipelineOpts...)
	a.pipeline = pipeline.New(cfg.Pipeline.ToPipeline(), popts...)
	if err := a.pipeline.Initialize(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 2. Capture source ────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 3. Transcription hand-off ────────────────────────────────────────
	if err := a.initHandoff(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init hand-off: %w", err)
	}

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSource creates the enabled sources and selects the one to capture from.
func (a *App) initSource() error {
	if a.sources == nil {
		sources, err := a.registry.CreateSources(a.cfg)
		if err != nil {
			return err
		}
		a.sources = sources
	}
	src, err := audio.Select(a.cfg.Source.Preferred, a.sources)
	if err != nil {
		return err
	}
	a.source = src
	d := src.Describe()
	slog.Info("capture source selected", "id", d.ID, "name", d.Name, "kind", d.Kind)
	return nil
}

// initHandoff builds the transcription chain and the dispatcher feeding it.
func (a *App) initHandoff(ctx context.Context) error {
	tc := a.cfg.Transcription
	if a.transcriber == nil {
		if !tc.Enabled {
			slog.Info("transcription hand-off disabled")
			return nil
		}
		if len(tc.Providers) == 0 {
			return errors.New("transcription enabled without providers")
		}
		seen := make(map[string]int, len(tc.Providers))
		for i, entry := range tc.Providers {
			p, err := a.registry.CreateTranscriber(entry)
			if err != nil {
				return fmt.Errorf("create transcriber %q: %w", entry.Name, err)
			}
			if c, ok := p.(io.Closer); ok {
				a.closers = append(a.closers, c.Close)
			}
			name := providerLabel(entry.Name, seen)
			if a.fallback == nil {
				a.fallback = resilience.NewTranscribeFallback(p, name, tc.Fallback(), a.metrics)
			} else {
				a.fallback.AddFallback(name, p)
			}
			slog.Info("transcriber created", "name", name, "position", i)
		}
		a.transcriber = a.fallback
	}

	a.dispatcher = handoff.New(a.transcriber, a.pipeline.Segments(), handoff.Config{
		Language:    tc.Language,
		Timeout:     tc.Timeout,
		Concurrency: tc.Concurrency,
		MinSpeech:   tc.MinSpeech,
	}, handoff.WithMetrics(a.metrics), handoff.WithSubscriberBuffer(a.cfg.Pipeline.StreamBuffer))

	observe.Logger(ctx).Info("transcription hand-off ready",
		"concurrency", tc.Concurrency,
		"timeout", tc.Timeout,
		"min_speech", tc.MinSpeech)
	return nil
}

// providerLabel names a chain entry; repeated backends get a "#n" suffix.
func providerLabel(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s#%d", name, n+1)
}

// initServer builds the HTTP surface around the subsystems.
func (a *App) initServer() {
	id := a.source.Describe().ID
	hc := health.New(
		health.PipelineReady(a.pipeline),
		health.SourceRunning(id, a.capturing.Load),
	)

	opts := []server.Option{
		server.WithController(a),
		server.WithSources(a.sources, id),
		server.WithHealth(hc),
		server.WithMetrics(a.metrics),
		server.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
		server.WithStreamBuffer(a.cfg.Pipeline.StreamBuffer),
		server.WithFrameSize(a.cfg.Pipeline.FrameSize),
	}
	for _, s := range a.sources {
		if h, ok := s.(interface{ Handler() http.Handler }); ok {
			opts = append(opts, server.WithIngest(h.Handler()))
			break
		}
	}
	if a.dispatcher != nil {
		opts = append(opts, server.WithDispatcher(a.dispatcher))
	}
	if a.fallback != nil {
		opts = append(opts, server.WithProviderStatus(a.fallback.Providers))
	}
	if a.metricsHandler != nil && a.cfg.Telemetry.MetricsPath != "" {
		opts = append(opts, server.WithMetricsHandler(a.cfg.Telemetry.MetricsPath, a.metricsHandler))
	}
	a.server = server.New(a.pipeline, opts...)
}

// ─── Control ─────────────────────────────────────────────────────────────────

// Start begins a processing session and starts capturing from the selected
// source. If the source fails to start, processing is stopped again.
func (a *App) Start(ctx context.Context) error {
	a.ctrlMu.Lock()
	defer a.ctrlMu.Unlock()

	if err := a.pipeline.Start(ctx); err != nil {
		return err
	}
	captureCtx := a.captureCtx
	if captureCtx == nil {
		captureCtx = context.WithoutCancel(ctx)
	}
	if err := a.source.Start(captureCtx, a.onFrame); err != nil {
		if stopErr := a.pipeline.Stop(ctx); stopErr != nil {
			slog.Warn("stop after failed capture start", "err", stopErr)
		}
		return fmt.Errorf("app: start source %q: %w", a.source.Describe().ID, err)
	}
	a.capturing.Store(true)
	return nil
}

// Stop ends capture, then stops processing, which emits the remaining audio
// as a final segment.
func (a *App) Stop(ctx context.Context) error {
	a.ctrlMu.Lock()
	defer a.ctrlMu.Unlock()

	var errs []error
	if a.capturing.Swap(false) {
		if err := a.source.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("app: stop source: %w", err))
		}
	}
	if err := a.pipeline.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: stop pipeline: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) onFrame(f audio.AudioFrame) {
	a.pipeline.Accept(f)
}

// Capturing reports whether the selected source is running.
func (a *App) Capturing() bool { return a.capturing.Load() }

// Pipeline returns the underlying pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Dispatcher returns the hand-off dispatcher, or nil when disabled.
func (a *App) Dispatcher() *handoff.Dispatcher { return a.dispatcher }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts processing, the hand-off dispatcher and the HTTP server, then
// blocks until ctx is cancelled or the server fails. When ctx is done, Run
// returns context.Canceled (or the underlying cause). Call Shutdown after
// Run returns.
func (a *App) Run(ctx context.Context) error {
	a.ctrlMu.Lock()
	a.captureCtx = context.WithoutCancel(ctx)
	a.ctrlMu.Unlock()

	if a.dispatcher != nil {
		dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		a.cfgMu.Lock()
		a.dispatchCancel, a.dispatchDone = cancel, done
		a.cfgMu.Unlock()
		a.bg.Go(func() error {
			defer close(done)
			return a.dispatcher.Run(dctx)
		})
	}

	cfg := a.config()
	serveErr := make(chan error, 1)
	a.bg.Go(func() error {
		var err error
		tls := cfg.Server.TLS
		certFile, keyFile := "", ""
		if tls != nil {
			certFile, keyFile = tls.CertFile, tls.KeyFile
		}
		if a.listener != nil {
			err = a.server.Serve(a.listener, certFile, keyFile)
		} else {
			err = a.server.ListenAndServe(cfg.Server.ListenAddr, certFile, keyFile)
		}
		if err != nil {
			serveErr <- err
		}
		return nil
	})

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("app: start processing: %w", err)
	}

	slog.Info("app running",
		"source", a.source.Describe().ID,
		"session_id", a.pipeline.SessionID(),
		"handoff", a.dispatcher != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-serveErr:
		return err
	}
}

// config returns the current configuration.
func (a *App) config() *config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next: the log level and the
// pipeline tuning. Other changes are logged and take effect after a restart.
func (a *App) Reload(next *config.Config) config.ConfigDiff {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TuningChanged {
		a.pipeline.UpdateTuning(d.NewTuning)
		slog.Info("pipeline tuning updated",
			"speech_threshold", d.NewTuning.SpeechThreshold,
			"noise_reduction_level", d.NewTuning.NoiseReductionLevel,
			"preprocessing", d.NewTuning.EnablePreprocessing,
			"quality_analysis", d.NewTuning.EnableQualityAnalysis,
			"visualization", d.NewTuning.EnableVisualization)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}

	// Keep the restart-only sections as loaded so later diffs still report them.
	applied := *a.cfg
	applied.Server.LogLevel = next.Server.LogLevel
	applied.Pipeline.SpeechThreshold = next.Pipeline.SpeechThreshold
	applied.Pipeline.NoiseReductionLevel = next.Pipeline.NoiseReductionLevel
	applied.Pipeline.EnablePreprocessing = next.Pipeline.EnablePreprocessing
	applied.Pipeline.EnableQualityAnalysis = next.Pipeline.EnableQualityAnalysis
	applied.Pipeline.EnableVisualization = next.Pipeline.EnableVisualization
	a.cfg = &applied
	return d
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and processing (emitting the final segment), lets
// the dispatcher finish queued hand-offs, then stops the HTTP server and
// releases providers. Work still running when ctx is done is abandoned.
// Shutdown is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		if a.dispatcher != nil {
			a.dispatcher.Close()
			a.cfgMu.Lock()
			done, cancel := a.dispatchDone, a.dispatchCancel
			a.cfgMu.Unlock()
			if done != nil {
				select {
				case <-done:
				case <-ctx.Done():
					slog.Warn("hand-off still busy at shutdown deadline; abandoning", "stats", a.dispatcher.Stats())
					cancel()
					<-done
				}
			}
		}

		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.bg.Wait(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, a.close())
	})
	return errors.Join(errs...)
}

// close releases the pipeline and every registered closer.
func (a *App) close() error {
	var errs []error
	if err := a.pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close pipeline: %w", err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
