// Package wsingest provides an [audio.Source] that receives PCM frames from a
// remote peer over a WebSocket connection.
//
// A peer connects to the handler returned by [Source.Handler] and sends one
// binary message per frame. The stream format is declared with the query
// parameters "rate", "channels" and "bits"; omitted parameters default to the
// source's target format. 16-bit streams in a different rate or channel layout
// are converted to the target format; other streams are forwarded unchanged
// and left to the consumer to accept or reject.
//
// Only one peer may publish at a time. Additional peers are refused with
// HTTP 409.
package wsingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// maxMessageBytes bounds a single frame message (1 s of 48 kHz stereo 32-bit).
const maxMessageBytes = 48000 * 2 * 4

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithID overrides the descriptor ID (default "websocket").
func WithID(id string) Option {
	return func(s *Source) { s.id = id }
}

// WithFormat sets the target frame format.
func WithFormat(f audio.Format) Option {
	return func(s *Source) { s.format = f }
}

// WithOriginPatterns sets the allowed cross-origin host patterns passed to
// [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Source) { s.originPatterns = patterns }
}

// Source is a WebSocket ingest endpoint.
type Source struct {
	id             string
	format         audio.Format
	originPatterns []string

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	onFrame   func(audio.AudioFrame)
	publisher bool
	conns     sync.WaitGroup
}

// New creates a WebSocket ingest Source.
func New(opts ...Option) *Source {
	s := &Source{
		id:     "websocket",
		format: audio.DefaultFormat,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Describe implements [audio.Source]. The source is always available; it
// simply delivers nothing until a peer connects.
func (s *Source) Describe() audio.Descriptor {
	return audio.Descriptor{
		ID:        s.id,
		Name:      "Network Stream",
		Kind:      audio.KindNetwork,
		Available: true,
		Format:    s.format,
	}
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context, onFrame func(audio.AudioFrame)) error {
	if onFrame == nil {
		return errors.New("wsingest: nil frame callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onFrame != nil {
		return errors.New("wsingest: already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.onFrame = onFrame
	return nil
}

// Stop implements [audio.Source]. It closes the active peer connection and
// waits for its reader to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.onFrame = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.conns.Wait()
	return nil
}

// Handler returns the HTTP handler that upgrades peers to WebSocket.
func (s *Source) Handler() http.Handler {
	return http.HandlerFunc(s.serve)
}

func (s *Source) serve(w http.ResponseWriter, r *http.Request) {
	in, err := s.parseFormat(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.onFrame == nil {
		s.mu.Unlock()
		http.Error(w, "ingest not started", http.StatusServiceUnavailable)
		return
	}
	if s.publisher {
		s.mu.Unlock()
		http.Error(w, "another peer is already publishing", http.StatusConflict)
		return
	}
	s.publisher = true
	ctx, onFrame := s.ctx, s.onFrame
	s.conns.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.publisher = false
		s.mu.Unlock()
		s.conns.Done()
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("wsingest: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	slog.Info("wsingest: peer connected", "remote", r.RemoteAddr, "format", in.String())
	err = s.read(ctx, conn, in, onFrame)
	switch {
	case err == nil, ctx.Err() != nil:
		conn.Close(websocket.StatusGoingAway, "ingest stopped")
	case websocket.CloseStatus(err) != -1:
		slog.Info("wsingest: peer disconnected", "remote", r.RemoteAddr, "status", websocket.CloseStatus(err))
	default:
		slog.Warn("wsingest: read failed", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "read failed")
	}
}

func (s *Source) read(ctx context.Context, conn *websocket.Conn, in audio.Format, onFrame func(audio.AudioFrame)) error {
	conv := audio.FormatConverter{Target: s.format}
	convert := in.BitDepth == 16 && s.format.BitDepth == 16 &&
		(in.SampleRate != s.format.SampleRate || in.Channels != s.format.Channels)

	var samples int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}

		frame := audio.AudioFrame{
			Data:       data,
			SampleRate: in.SampleRate,
			Channels:   in.Channels,
			BitDepth:   in.BitDepth,
			Timestamp:  in.DurationOf(samples),
		}
		frame.Duration = in.DurationOf(frame.SampleCount())
		samples += frame.SampleCount()

		if convert {
			frame = conv.Convert(frame)
			if len(frame.Data) == 0 {
				continue
			}
		}
		onFrame(frame)
	}
}

func (s *Source) parseFormat(r *http.Request) (audio.Format, error) {
	f := s.format
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{
		{"rate", &f.SampleRate},
		{"channels", &f.Channels},
		{"bits", &f.BitDepth},
	} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return audio.Format{}, fmt.Errorf("wsingest: invalid %s %q", p.key, v)
		}
		*p.dst = n
	}
	if !f.Valid() {
		return audio.Format{}, fmt.Errorf("wsingest: unsupported format %s", f)
	}
	return f, nil
}

// Dial connects to a wsingest endpoint at url and returns a function that
// sends one frame per call. It is used by clients and tests that publish
// audio into a running service.
func Dial(ctx context.Context, url string) (send func(ctx context.Context, pcm []byte) error, closeFn func() error, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("wsingest: dial: %w", err)
	}
	send = func(ctx context.Context, pcm []byte) error {
		return conn.Write(ctx, websocket.MessageBinary, pcm)
	}
	closeFn = func() error {
		return conn.Close(websocket.StatusNormalClosure, "done")
	}
	return send, closeFn, nil
}
