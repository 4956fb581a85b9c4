package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the transcription backends built into the
// service. Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"whisper", "whisper-native", "openai", "deepgram"}

// ValidSourceIDs lists the built-in capture source IDs.
var ValidSourceIDs = []string{"tone", "websocket"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Defaults] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Pipeline
	p := cfg.Pipeline
	if err := p.ToPipeline().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if p.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.frame_size %d must be positive", p.FrameSize))
	}
	if p.StreamBuffer <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.stream_buffer %d must be positive", p.StreamBuffer))
	}
	if tp := p.Preprocess.TargetPeak; tp < 0 || tp > 1 {
		errs = append(errs, fmt.Errorf("pipeline.preprocess.target_peak %.2f is out of range [0, 1]", tp))
	}
	if p.Preprocess.BandLimit && p.Preprocess.BandHighHz <= p.Preprocess.BandLowHz {
		errs = append(errs, errors.New("pipeline.preprocess.band_high_hz must be above band_low_hz"))
	}
	if p.Visualizer.Bands <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.visualizer.bands %d must be positive", p.Visualizer.Bands))
	}
	if r := p.Visualizer.VoiceBandRatio; p.Visualizer.VoiceBandCheck && (r <= 0 || r > 1) {
		errs = append(errs, fmt.Errorf("pipeline.visualizer.voice_band_ratio %.2f is out of range (0, 1]", r))
	}

	// Sources
	if !cfg.Source.Tone.Enabled && !cfg.Source.WebSocket.Enabled {
		errs = append(errs, errors.New("source: at least one of tone or websocket must be enabled"))
	}
	if a := cfg.Source.Tone.Amplitude; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("source.tone.amplitude %.2f is out of range [0, 1]", a))
	}
	if cfg.Source.Tone.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("source.tone.frequency %.1f must be positive", cfg.Source.Tone.Frequency))
	}
	if cfg.Source.Tone.On < 0 || cfg.Source.Tone.Off < 0 {
		errs = append(errs, errors.New("source.tone.on and off must not be negative"))
	}
	for _, id := range cfg.Source.Preferred {
		if !slices.Contains(ValidSourceIDs, id) {
			slog.Warn("unknown source id in source.preferred; it will be ignored unless registered",
				"id", id, "known", ValidSourceIDs)
		}
	}

	// Transcription
	t := cfg.Transcription
	if t.Enabled && len(t.Providers) == 0 {
		errs = append(errs, errors.New("transcription.enabled requires at least one entry in transcription.providers"))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("transcription.timeout %s must be positive", t.Timeout))
	}
	if t.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("transcription.concurrency %d must be positive", t.Concurrency))
	}
	if t.MinSpeech < 0 {
		errs = append(errs, errors.New("transcription.min_speech must not be negative"))
	}
	seen := make(map[string]int, len(t.Providers))
	for i, e := range t.Providers {
		prefix := fmt.Sprintf("transcription.providers[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := e.Name + "|" + e.BaseURL + "|" + e.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates transcription.providers[%d]", prefix, prev))
		}
		seen[key] = i
		validateProviderName(e.Name)

		switch e.Name {
		case "whisper":
			if e.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
			}
		case "whisper-native":
			if e.Model == "" {
				errs = append(errs, fmt.Errorf("%s.model (model file path) is required for whisper-native", prefix))
			}
		case "openai":
			if e.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s.api_key is required for openai", prefix))
			}
		case "deepgram":
			if e.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s.api_key is required for deepgram", prefix))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not one of
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown transcription provider; may be a typo or a third-party registration",
		"name", name,
		"known", ValidProviderNames,
	)
}
