package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"tls without key", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"overlap not shorter", func(c *config.Config) { c.Pipeline.OverlapDuration = c.Pipeline.SegmentDuration }, "overlap duration"},
		{"unsupported bit depth", func(c *config.Config) { c.Pipeline.BitDepth = 12 }, "not supported"},
		{"noise level range", func(c *config.Config) { c.Pipeline.NoiseReductionLevel = 1.5 }, "noise reduction level"},
		{"zero frame size", func(c *config.Config) { c.Pipeline.FrameSize = 0 }, "frame_size"},
		{"target peak range", func(c *config.Config) { c.Pipeline.Preprocess.TargetPeak = 2 }, "target_peak"},
		{"voice ratio range", func(c *config.Config) {
			c.Pipeline.Visualizer.VoiceBandCheck = true
			c.Pipeline.Visualizer.VoiceBandRatio = 0
		}, "voice_band_ratio"},
		{"no sources", func(c *config.Config) {
			c.Source.Tone.Enabled = false
			c.Source.WebSocket.Enabled = false
		}, "at least one of tone or websocket"},
		{"tone amplitude", func(c *config.Config) { c.Source.Tone.Amplitude = -0.1 }, "amplitude"},
		{"enabled without providers", func(c *config.Config) { c.Transcription.Enabled = true }, "transcription.providers"},
		{"zero timeout", func(c *config.Config) { c.Transcription.Timeout = 0 }, "transcription.timeout"},
		{"whisper needs url", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{Name: "whisper"}}
		}, "base_url"},
		{"native needs model", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{Name: "whisper-native"}}
		}, "model"},
		{"openai needs key", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{Name: "openai"}}
		}, "api_key"},
		{"deepgram needs key", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{Name: "deepgram", Model: "nova-3"}}
		}, "api_key is required for deepgram"},
		{"provider name required", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{BaseURL: "http://x"}}
		}, "name is required"},
		{"duplicate provider", func(c *config.Config) {
			e := config.ProviderEntry{Name: "whisper", BaseURL: "http://x"}
			c.Transcription.Providers = []config.ProviderEntry{e, e}
		}, "duplicates"},
		{"unknown provider only warns", func(c *config.Config) {
			c.Transcription.Providers = []config.ProviderEntry{{Name: "acme"}}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.LogLevel = "loud"
	cfg.Transcription.Concurrency = 0
	cfg.Pipeline.SegmentDuration = -time.Second

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) < 3 {
		t.Errorf("err = %v, want at least 3 joined errors", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/segmenter.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	want := config.Defaults()
	if d := config.Diff(want, cfg); d.TuningChanged || d.LogLevelChanged {
		t.Errorf("example tuning drifted from defaults: %+v", d)
	}
	if cfg.Pipeline.SegmentDuration != time.Minute || cfg.Pipeline.OverlapDuration != 10*time.Second {
		t.Errorf("segment/overlap = %s/%s", cfg.Pipeline.SegmentDuration, cfg.Pipeline.OverlapDuration)
	}
	if cfg.Transcription.Enabled || len(cfg.Transcription.Providers) != 1 {
		t.Errorf("transcription = %+v", cfg.Transcription)
	}
}
