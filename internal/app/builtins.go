package app

import (
	"log/slog"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/config"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio/tone"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio/wsingest"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe/deepgram"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe/openai"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe/whisper"
)

// RegisterBuiltins wires the transcription backends and capture sources
// that ship with the service into reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── Transcription ────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, openai.WithPrompt(prompt))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		opts := []deepgram.Option{
			deepgram.WithModel(entry.Model),
			deepgram.WithEndpoint(entry.BaseURL),
			deepgram.WithLanguage(optString(entry.Options, "language")),
		}
		if n := optInt(entry.Options, "chunk_bytes"); n > 0 {
			opts = append(opts, deepgram.WithChunkBytes(n))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Capture sources ──────────────────────────────────────────────────────

	reg.RegisterSource("tone", func(cfg *config.Config) (audio.Source, error) {
		t := cfg.Source.Tone
		if !t.Enabled {
			return nil, nil
		}
		return tone.New(
			tone.WithFormat(cfg.Pipeline.Format()),
			tone.WithFrequency(t.Frequency),
			tone.WithAmplitude(t.Amplitude),
			tone.WithFrameSize(cfg.Pipeline.FrameSize),
			tone.WithPattern(t.On, t.Off),
		), nil
	})

	reg.RegisterSource("websocket", func(cfg *config.Config) (audio.Source, error) {
		if !cfg.Source.WebSocket.Enabled {
			return nil, nil
		}
		return wsingest.New(
			wsingest.WithFormat(cfg.Pipeline.Format()),
			wsingest.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		), nil
	})

	slog.Debug("registered built-ins",
		"transcribers", config.ValidProviderNames,
		"sources", config.ValidSourceIDs)
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML decodes
// whole numbers as int; floats are truncated.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
