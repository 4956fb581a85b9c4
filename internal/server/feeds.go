package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/bus"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/handoff"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
)

// feedWriteTimeout bounds a single message write to a slow client.
const feedWriteTimeout = 5 * time.Second

// feed upgrades the request and relays every value published on src to the
// client as JSON until the client leaves, the bus closes or the server shuts
// down. Values are dropped by the bus when the client falls behind. Messages
// the client sends are discarded.
func feed[T, M any](s *Server, name string, src *bus.Bus[T], conv func(T) M) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := observe.Logger(r.Context()).With("stream", name, "remote", r.RemoteAddr)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.origins,
		})
		if err != nil {
			log.Warn("feed: accept failed", "err", err)
			return
		}
		defer conn.CloseNow()

		values, cancel := src.Subscribe(s.streamBuffer)
		defer cancel()

		attrs := metric.WithAttributes(observe.Attr("stream", name))
		s.metrics.ActiveSubscribers.Add(r.Context(), 1, attrs)
		defer s.metrics.ActiveSubscribers.Add(context.WithoutCancel(r.Context()), -1, attrs)

		ctx := conn.CloseRead(r.Context())
		log.Debug("feed: subscriber connected")

		for {
			select {
			case <-ctx.Done():
				log.Debug("feed: subscriber left")
				return
			case <-s.done:
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case v, ok := <-values:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "stream closed")
					return
				}
				wctx, wcancel := context.WithTimeout(ctx, feedWriteTimeout)
				err := wsjson.Write(wctx, conn, conv(v))
				wcancel()
				if err != nil {
					log.Debug("feed: write failed", "err", err)
					return
				}
			}
		}
	}
}

// VisualizerMessage is one /ws/visualizer update.
type VisualizerMessage struct {
	Level          float64   `json:"level"`
	Spectrum       []float64 `json:"spectrum"`
	PeakFrequency  float64   `json:"peakFrequency"`
	SpeechDetected bool      `json:"speechDetected"`
	TimestampMs    int64     `json:"timestampMs"`
}

func visualizerMessage(v analysis.VisualizerSample) VisualizerMessage {
	return VisualizerMessage{
		Level:          v.Level,
		Spectrum:       v.Spectrum,
		PeakFrequency:  v.PeakFrequency,
		SpeechDetected: v.SpeechDetected,
		TimestampMs:    v.Timestamp.Milliseconds(),
	}
}

// QualityMessage is one /ws/quality update. Error is set instead of the
// metrics when the chunk could not be analysed.
type QualityMessage struct {
	QualityView
	Error string `json:"error,omitempty"`
}

// QualityView is the JSON form of [analysis.QualityMetrics].
type QualityView struct {
	SNR              float64 `json:"snr"`
	AverageVolume    float64 `json:"averageVolume"`
	PeakVolume       float64 `json:"peakVolume"`
	ZeroCrossingRate float64 `json:"zeroCrossingRate"`
	SpectralCentroid float64 `json:"spectralCentroid"`
	IsClipping       bool    `json:"isClipping"`
	IsSilent         bool    `json:"isSilent"`
	TimestampMs      int64   `json:"timestampMs"`
}

func qualityView(q analysis.QualityMetrics) QualityView {
	return QualityView{
		SNR:              q.SNR,
		AverageVolume:    q.AverageVolume,
		PeakVolume:       q.PeakVolume,
		ZeroCrossingRate: q.ZeroCrossingRate,
		SpectralCentroid: q.SpectralCentroid,
		IsClipping:       q.IsClipping,
		IsSilent:         q.IsSilent,
		TimestampMs:      q.Timestamp.Milliseconds(),
	}
}

func qualityMessage(ev pipeline.QualityEvent) QualityMessage {
	m := QualityMessage{QualityView: qualityView(ev.Metrics)}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

// RegionView is the JSON form of [analysis.SpeechRegion]. Times are relative
// to the segment start.
type RegionView struct {
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Confidence float64 `json:"confidence"`
}

// SegmentView summarises a segment without its samples.
type SegmentView struct {
	ID             uint64       `json:"id"`
	SessionID      string       `json:"sessionId"`
	StartMs        int64        `json:"startMs"`
	EndMs          int64        `json:"endMs"`
	DurationMs     int64        `json:"durationMs"`
	SampleRate     int          `json:"sampleRate"`
	Channels       int          `json:"channels"`
	Trigger        string       `json:"trigger"`
	HasSpeech      bool         `json:"hasSpeech"`
	QualityScore   float64      `json:"qualityScore"`
	AverageVolume  float64      `json:"averageVolume"`
	PeakVolume     float64      `json:"peakVolume"`
	NoiseFloor     float64      `json:"noiseFloor"`
	Quality        QualityView  `json:"quality"`
	Regions        []RegionView `json:"speechRegions"`
	FreshSamples   int          `json:"freshSamples"`
	CarriedSamples int          `json:"carriedSamples"`
}

func segmentMessage(seg pipeline.Segment) SegmentView {
	regions := make([]RegionView, 0, len(seg.Regions))
	for _, r := range seg.Regions {
		regions = append(regions, RegionView{
			StartMs:    r.Start.Milliseconds(),
			EndMs:      r.End.Milliseconds(),
			Confidence: r.Confidence,
		})
	}
	return SegmentView{
		ID:             seg.ID,
		SessionID:      seg.SessionID,
		StartMs:        seg.Start.Milliseconds(),
		EndMs:          seg.End.Milliseconds(),
		DurationMs:     seg.Duration.Milliseconds(),
		SampleRate:     seg.SampleRate,
		Channels:       seg.Channels,
		Trigger:        seg.Trigger.String(),
		HasSpeech:      seg.HasSpeech(),
		QualityScore:   seg.QualityScore,
		AverageVolume:  seg.Analysis.AverageVolume,
		PeakVolume:     seg.Analysis.PeakVolume,
		NoiseFloor:     seg.Analysis.NoiseFloor,
		Quality:        qualityView(seg.Quality),
		Regions:        regions,
		FreshSamples:   seg.FreshSamples,
		CarriedSamples: seg.CarriedSamples,
	}
}

// TranscriptView is the JSON form of [handoff.Transcript].
type TranscriptView struct {
	SegmentID  uint64 `json:"segmentId"`
	SessionID  string `json:"sessionId"`
	Text       string `json:"text"`
	Language   string `json:"language,omitempty"`
	Provider   string `json:"provider,omitempty"`
	StartMs    int64  `json:"startMs"`
	DurationMs int64  `json:"durationMs"`
	LatencyMs  int64  `json:"latencyMs"`
	Error      string `json:"error,omitempty"`
}

func transcriptMessage(t handoff.Transcript) TranscriptView {
	v := TranscriptView{
		SegmentID:  t.SegmentID,
		SessionID:  t.SessionID,
		Text:       t.Text,
		Language:   t.Language,
		Provider:   t.Provider,
		StartMs:    t.Start.Milliseconds(),
		DurationMs: t.Duration.Milliseconds(),
		LatencyMs:  t.Latency.Milliseconds(),
	}
	if t.Err != nil {
		v.Error = t.Err.Error()
	}
	return v
}
