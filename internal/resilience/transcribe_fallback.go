package resilience

import (
	"context"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// TranscribeFallback implements [transcribe.Provider] with ordered failover
// across several backends. Each backend has its own circuit breaker and every
// attempt is counted in the provider metrics.
type TranscribeFallback struct {
	group   *FallbackGroup[transcribe.Provider]
	metrics *observe.Metrics
}

var _ transcribe.Provider = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend. A nil metrics uses [observe.DefaultMetrics]. Breaker
// state changes are counted per backend before any OnStateChange in cfg runs.
func NewTranscribeFallback(primary transcribe.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *TranscribeFallback {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	next := cfg.CircuitBreaker.OnStateChange
	cfg.CircuitBreaker.OnStateChange = func(name string, from, to State) {
		metrics.RecordBreakerTransition(context.Background(), name, to.String())
		if next != nil {
			next(name, from, to)
		}
	}
	return &TranscribeFallback{
		group:   NewFallbackGroup(primary, primaryName, cfg),
		metrics: metrics,
	}
}

// AddFallback registers another backend, tried after the existing ones.
func (f *TranscribeFallback) AddFallback(name string, p transcribe.Provider) {
	f.group.AddFallback(name, p)
}

// Providers reports each backend and its breaker state.
func (f *TranscribeFallback) Providers() []ProviderStatus {
	return f.group.Providers()
}

// Transcribe sends req to the first healthy backend that succeeds.
func (f *TranscribeFallback) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	ctx, span := observe.StartSpan(ctx, "transcribe.fallback")
	defer span.End()

	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, name string, p transcribe.Provider) (transcribe.Result, error) {
		started := time.Now()
		res, err := p.Transcribe(ctx, req)
		if err != nil {
			f.metrics.RecordProviderRequest(ctx, name, "transcribe", "error")
			f.metrics.RecordProviderError(ctx, name, "transcribe")
			return res, err
		}
		f.metrics.RecordProviderRequest(ctx, name, "transcribe", "ok")
		f.metrics.RecordTranscription(ctx, name, time.Since(started).Seconds())
		if res.Provider == "" {
			res.Provider = name
		}
		return res, nil
	})
}
