// Package server exposes the segmentation pipeline over HTTP.
//
// It serves a small JSON control API under /api, live JSON feeds over
// WebSocket under /ws, the network ingest endpoint, Prometheus metrics and the
// health probes. Every route is wrapped in [observe.Middleware].
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/handoff"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/health"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/resilience"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// Controller starts and stops processing. [*pipeline.Pipeline] satisfies it;
// the application supplies one that also drives the capture source.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Option is a functional option for [New].
type Option func(*Server)

// WithController overrides the start/stop target. Defaults to the pipeline.
func WithController(c Controller) Option {
	return func(s *Server) { s.ctrl = c }
}

// WithSources sets the capture sources listed by /api/sources. active is the
// ID of the selected one.
func WithSources(sources []audio.Source, active string) Option {
	return func(s *Server) {
		s.sources = sources
		s.activeSource = active
	}
}

// WithIngest mounts h at /ws/ingest.
func WithIngest(h http.Handler) Option {
	return func(s *Server) { s.ingest = h }
}

// WithDispatcher enables the transcript feed and endpoint.
func WithDispatcher(d *handoff.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithProviderStatus reports transcription backend health in /api/status.
func WithProviderStatus(fn func() []resilience.ProviderStatus) Option {
	return func(s *Server) { s.providerStatus = fn }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at path (typically promhttp over the exporter
// registry).
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows cross-origin WebSocket clients matching patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithStreamBuffer sets the per-subscriber buffer of the live feeds.
// Default: 64.
func WithStreamBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.streamBuffer = n
		}
	}
}

// WithFrameSize sets the frame size reported by /api/config/audio.
func WithFrameSize(n int) Option {
	return func(s *Server) { s.frameSize = n }
}

// Server serves the HTTP and WebSocket surface of one pipeline.
type Server struct {
	p    *pipeline.Pipeline
	ctrl Controller

	sources        []audio.Source
	activeSource   string
	ingest         http.Handler
	dispatcher     *handoff.Dispatcher
	providerStatus func() []resilience.ProviderStatus
	health         *health.Handler
	metricsPath    string
	metricsHandler http.Handler
	metrics        *observe.Metrics

	origins      []string
	streamBuffer int
	frameSize    int

	handler http.Handler
	srv     *http.Server

	// done is closed on shutdown so open feeds end.
	done      chan struct{}
	closeOnce sync.Once

	// ctrlMu serialises start and stop requests.
	ctrlMu sync.Mutex
}

// New builds a Server for p and registers all routes.
func New(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		p:            p,
		ctrl:         p,
		streamBuffer: 64,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = observe.Middleware(s.metrics)(mux)
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.done = make(chan struct{})
	s.srv.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.done) })
	})
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config/audio", s.handleAudioConfig)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/flush", s.handleFlush)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/segments", s.handleSegments)
	mux.HandleFunc("GET /api/segments/{id}", s.handleSegment)
	mux.HandleFunc("GET /api/segments/{id}/wav", s.handleSegmentWAV)
	mux.HandleFunc("GET /api/sources", s.handleSources)
	mux.HandleFunc("GET /api/recent", s.handleRecent)

	mux.HandleFunc("GET /ws/visualizer", feed(s, "visualizer", s.p.Visualizer(), visualizerMessage))
	mux.HandleFunc("GET /ws/quality", feed(s, "quality", s.p.Quality(), qualityMessage))
	mux.HandleFunc("GET /ws/segments", feed(s, "segments", s.p.Segments(), segmentMessage))

	if s.dispatcher != nil {
		mux.HandleFunc("GET /api/transcripts", s.handleTranscripts)
		mux.HandleFunc("GET /ws/transcripts", feed(s, "transcripts", s.dispatcher.Transcripts(), transcriptMessage))
	}
	if s.ingest != nil {
		mux.Handle("GET /ws/ingest", s.ingest)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metricsHandler)
	}
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe binds addr and serves until [Server.Shutdown]. TLS is used
// when certFile is non-empty. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe(addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ln, certFile, keyFile)
}

// Serve accepts connections on ln until [Server.Shutdown].
func (s *Server) Serve(ln net.Listener, certFile, keyFile string) error {
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", certFile != "")
	var err error
	if certFile != "" {
		err = s.srv.ServeTLS(ln, certFile, keyFile)
	} else {
		err = s.srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: serve: %w", err)
}

// Shutdown stops accepting requests, ends open WebSocket feeds and waits for
// active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
