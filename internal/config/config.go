// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for the segmentation service.
package config

import (
	"log/slog"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/analysis"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/resilience"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Source        SourceConfig        `yaml:"source"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists websocket origin patterns accepted in addition to
	// the request host (e.g., "localhost:*").
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ShutdownTimeout bounds graceful shutdown, including the final flush.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PipelineConfig holds segmentation and analysis settings.
type PipelineConfig struct {
	// SampleRate, Channels and BitDepth fix the accepted frame format.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`

	// FrameSize is the per-channel sample count of generated frames.
	FrameSize int `yaml:"frame_size"`

	SegmentDuration     time.Duration `yaml:"segment_duration"`
	OverlapDuration     time.Duration `yaml:"overlap_duration"`
	VisualizationWindow time.Duration `yaml:"visualization_window"`

	MaxHistorySegments int `yaml:"max_history_segments"`
	ChunkQueueSize     int `yaml:"chunk_queue_size"`

	// StreamBuffer is the per-subscriber buffer of the live feeds.
	StreamBuffer int `yaml:"stream_buffer"`

	// The fields below are hot-reloadable.
	SpeechThreshold       float64 `yaml:"speech_threshold"`
	NoiseReductionLevel   float64 `yaml:"noise_reduction_level"`
	EnablePreprocessing   bool    `yaml:"enable_preprocessing"`
	EnableQualityAnalysis bool    `yaml:"enable_quality_analysis"`
	EnableVisualization   bool    `yaml:"enable_visualization"`

	Preprocess PreprocessConfig `yaml:"preprocess"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
}

// PreprocessConfig toggles the individual preprocessing stages.
type PreprocessConfig struct {
	NoiseReduction bool    `yaml:"noise_reduction"`
	Normalize      bool    `yaml:"normalize"`
	TargetPeak     float64 `yaml:"target_peak"`
	BandLimit      bool    `yaml:"band_limit"`
	BandLowHz      float64 `yaml:"band_low_hz"`
	BandHighHz     float64 `yaml:"band_high_hz"`
}

// VisualizerConfig tunes the visualisation feed.
type VisualizerConfig struct {
	Bands           int     `yaml:"bands"`
	SmoothingWindow int     `yaml:"smoothing_window"`
	VoiceBandCheck  bool    `yaml:"voice_band_check"`
	VoiceBandRatio  float64 `yaml:"voice_band_ratio"`
	VoiceLowHz      float64 `yaml:"voice_low_hz"`
	VoiceHighHz     float64 `yaml:"voice_high_hz"`
}

// SourceConfig selects and configures the capture sources.
type SourceConfig struct {
	// Preferred lists source IDs in order of preference. The first available
	// one is used; otherwise any available source.
	Preferred []string `yaml:"preferred"`

	Tone      ToneConfig      `yaml:"tone"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ToneConfig configures the synthetic tone source.
type ToneConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`

	// On and Off alternate tone and silence. Off 0 means a continuous tone.
	On  time.Duration `yaml:"on"`
	Off time.Duration `yaml:"off"`
}

// WebSocketConfig configures network frame ingest on /ws/ingest.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TranscriptionConfig configures the hand-off of finished segments to a
// speech-to-text backend.
type TranscriptionConfig struct {
	Enabled bool `yaml:"enabled"`

	// Providers is tried in order; later entries are fallbacks.
	Providers []ProviderEntry `yaml:"providers"`

	// Language is a BCP-47 hint passed with every request. Empty lets the
	// provider decide.
	Language string `yaml:"language"`

	// Timeout bounds a single segment's transcription across all fallbacks.
	Timeout time.Duration `yaml:"timeout"`

	// Concurrency bounds in-flight transcriptions.
	Concurrency int `yaml:"concurrency"`

	// MinSpeech skips segments with less detected speech than this.
	MinSpeech time.Duration `yaml:"min_speech"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors [resilience.CircuitBreakerConfig] for YAML.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry is the common configuration block of a transcription backend.
// Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For "whisper" it is
	// the whisper.cpp server URL.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For "whisper-native" it is
	// the model file path.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// MetricsPath is where Prometheus metrics are served. Empty disables it.
	MetricsPath string `yaml:"metrics_path"`
}

// Defaults returns a configuration with every field at its default value.
// [LoadFromReader] decodes over these defaults, so a YAML file only needs to
// name what it changes.
func Defaults() *Config {
	p := pipeline.DefaultConfig()
	pre := p.Preprocess
	vis := p.Visualizer
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			LogLevel:        LogInfo,
			ShutdownTimeout: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			SampleRate:            p.Format.SampleRate,
			Channels:              p.Format.Channels,
			BitDepth:              p.Format.BitDepth,
			FrameSize:             1600,
			SegmentDuration:       p.SegmentDuration,
			OverlapDuration:       p.OverlapDuration,
			VisualizationWindow:   p.VisualizationWindow,
			MaxHistorySegments:    p.MaxHistorySegments,
			ChunkQueueSize:        p.ChunkQueueSize,
			StreamBuffer:          64,
			SpeechThreshold:       p.Tuning.SpeechThreshold,
			NoiseReductionLevel:   p.Tuning.NoiseReductionLevel,
			EnablePreprocessing:   p.Tuning.EnablePreprocessing,
			EnableQualityAnalysis: p.Tuning.EnableQualityAnalysis,
			EnableVisualization:   p.Tuning.EnableVisualization,
			Preprocess: PreprocessConfig{
				NoiseReduction: pre.NoiseReduction,
				Normalize:      pre.Normalize,
				TargetPeak:     pre.TargetPeak,
				BandLimit:      pre.BandLimit,
				BandLowHz:      pre.BandLowHz,
				BandHighHz:     pre.BandHighHz,
			},
			Visualizer: VisualizerConfig{
				Bands:           vis.Bands,
				SmoothingWindow: vis.SmoothingWindow,
				VoiceBandCheck:  vis.VoiceBandCheck,
				VoiceBandRatio:  vis.VoiceBandRatio,
				VoiceLowHz:      vis.VoiceLowHz,
				VoiceHighHz:     vis.VoiceHighHz,
			},
		},
		Source: SourceConfig{
			Preferred: []string{"websocket", "tone"},
			Tone: ToneConfig{
				Enabled:   true,
				Frequency: 440,
				Amplitude: 0.3,
				On:        2 * time.Second,
				Off:       time.Second,
			},
			WebSocket: WebSocketConfig{Enabled: true},
		},
		Transcription: TranscriptionConfig{
			Timeout:     2 * time.Minute,
			Concurrency: 2,
			MinSpeech:   500 * time.Millisecond,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "segmenter",
			MetricsPath: "/metrics",
		},
	}
}

// Format returns the accepted frame format.
func (c PipelineConfig) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels, BitDepth: c.BitDepth}
}

// Tuning returns the hot-reloadable subset as pipeline tuning.
func (c PipelineConfig) Tuning() pipeline.Tuning {
	return pipeline.Tuning{
		SpeechThreshold:       c.SpeechThreshold,
		NoiseReductionLevel:   c.NoiseReductionLevel,
		EnablePreprocessing:   c.EnablePreprocessing,
		EnableQualityAnalysis: c.EnableQualityAnalysis,
		EnableVisualization:   c.EnableVisualization,
	}
}

// ToPipeline converts the section to a [pipeline.Config].
func (c PipelineConfig) ToPipeline() pipeline.Config {
	return pipeline.Config{
		Format:              c.Format(),
		SegmentDuration:     c.SegmentDuration,
		OverlapDuration:     c.OverlapDuration,
		VisualizationWindow: c.VisualizationWindow,
		MaxHistorySegments:  c.MaxHistorySegments,
		ChunkQueueSize:      c.ChunkQueueSize,
		Preprocess: analysis.PreprocessConfig{
			NoiseReduction: c.Preprocess.NoiseReduction,
			Normalize:      c.Preprocess.Normalize,
			TargetPeak:     c.Preprocess.TargetPeak,
			BandLimit:      c.Preprocess.BandLimit,
			BandLowHz:      c.Preprocess.BandLowHz,
			BandHighHz:     c.Preprocess.BandHighHz,
		},
		Visualizer: analysis.VisualizerConfig{
			Bands:           c.Visualizer.Bands,
			SmoothingWindow: c.Visualizer.SmoothingWindow,
			SpeechThreshold: c.SpeechThreshold,
			VoiceBandCheck:  c.Visualizer.VoiceBandCheck,
			VoiceBandRatio:  c.Visualizer.VoiceBandRatio,
			VoiceLowHz:      c.Visualizer.VoiceLowHz,
			VoiceHighHz:     c.Visualizer.VoiceHighHz,
		},
		Tuning: c.Tuning(),
	}
}

// Fallback converts the breaker settings to a [resilience.FallbackConfig].
func (c TranscriptionConfig) Fallback() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  c.CircuitBreaker.MaxFailures,
			ResetTimeout: c.CircuitBreaker.ResetTimeout,
			HalfOpenMax:  c.CircuitBreaker.HalfOpenMax,
		},
	}
}
