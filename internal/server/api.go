package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/handoff"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/resilience"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// AudioConfig is the response of GET /api/config/audio.
type AudioConfig struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
	FrameSize  int `json:"frameSize"`
}

// StatusView is the response of GET /api/status and of the control calls.
type StatusView struct {
	State           string                      `json:"state"`
	SessionID       string                      `json:"sessionId,omitempty"`
	Initialized     bool                        `json:"initialized"`
	BufferedSamples int                         `json:"bufferedSamples"`
	BufferedFrames  int                         `json:"bufferedFrames"`
	BufferedMs      int64                       `json:"bufferedMs"`
	LastSegmentID   uint64                      `json:"lastSegmentId"`
	QueuedChunks    int                         `json:"queuedChunks"`
	Subscribers     map[string]int              `json:"subscribers"`
	Source          string                      `json:"source,omitempty"`
	Handoff         *handoff.Stats              `json:"handoff,omitempty"`
	Providers       []resilience.ProviderStatus `json:"providers,omitempty"`
}

// SourcesView is the response of GET /api/sources.
type SourcesView struct {
	Active  string             `json:"active"`
	Sources []audio.Descriptor `json:"sources"`
}

// RecentView is the response of GET /api/recent: the short visualisation
// window, downmixed to mono.
type RecentView struct {
	SampleRate int       `json:"sampleRate"`
	Samples    []float32 `json:"samples"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) handleAudioConfig(w http.ResponseWriter, _ *http.Request) {
	f := s.p.Config().Format
	writeJSON(w, http.StatusOK, AudioConfig{
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
		FrameSize:  s.frameSize,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.ctrlMu.Lock()
	err := s.ctrl.Start(r.Context())
	s.ctrlMu.Unlock()
	if err != nil {
		observe.Logger(r.Context()).Warn("start failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrlMu.Lock()
	err := s.ctrl.Stop(r.Context())
	s.ctrlMu.Unlock()
	if err != nil {
		observe.Logger(r.Context()).Warn("stop failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	seg, err := s.p.Flush(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrNothingToFlush):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		writeError(w, statusFor(err), err)
	default:
		writeJSON(w, http.StatusOK, segmentMessage(seg))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() StatusView {
	st := s.p.Status()
	v := StatusView{
		State:           st.State.String(),
		SessionID:       st.SessionID,
		Initialized:     s.p.Initialized(),
		BufferedSamples: st.BufferedSamples,
		BufferedFrames:  st.BufferedFrames,
		BufferedMs:      st.Buffered.Milliseconds(),
		LastSegmentID:   st.LastSegmentID,
		QueuedChunks:    st.QueuedChunks,
		Subscribers:     st.Subscribers,
		Source:          s.activeSource,
	}
	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		v.Handoff = &stats
	}
	if s.providerStatus != nil {
		v.Providers = s.providerStatus()
	}
	return v
}

func (s *Server) handleSegments(w http.ResponseWriter, _ *http.Request) {
	history := s.p.History()
	out := make([]SegmentView, 0, len(history))
	for _, seg := range history {
		out = append(out, segmentMessage(seg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookupSegment(w http.ResponseWriter, r *http.Request) (pipeline.Segment, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid segment id %q", r.PathValue("id")))
		return pipeline.Segment{}, false
	}
	seg, ok := s.p.Segment(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("segment %d not in history", id))
		return pipeline.Segment{}, false
	}
	return seg, true
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	if seg, ok := s.lookupSegment(w, r); ok {
		writeJSON(w, http.StatusOK, segmentMessage(seg))
	}
}

// handleSegmentWAV returns the cleaned samples of a segment as 16-bit PCM WAV.
func (s *Server) handleSegmentWAV(w http.ResponseWriter, r *http.Request) {
	seg, ok := s.lookupSegment(w, r)
	if !ok {
		return
	}
	wav := audio.EncodeWAV(audio.EncodePCM16(seg.Samples), seg.SampleRate, seg.Channels)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="segment-%d.wav"`, seg.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	_, _ = w.Write(wav)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SourcesView{
		Active:  s.activeSource,
		Sources: audio.Describe(s.sources),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	samples, f := s.p.Recent()
	if samples == nil {
		samples = []float32{}
	}
	writeJSON(w, http.StatusOK, RecentView{SampleRate: f.SampleRate, Samples: samples})
}

func (s *Server) handleTranscripts(w http.ResponseWriter, _ *http.Request) {
	recent := s.dispatcher.Recent()
	out := make([]TranscriptView, 0, len(recent))
	for _, t := range recent {
		out = append(out, transcriptMessage(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAlreadyProcessing),
		errors.Is(err, pipeline.ErrNotProcessing),
		errors.Is(err, pipeline.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, audio.ErrNoSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorView{Error: err.Error()})
}
