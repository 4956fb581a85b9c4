package config

import (
	"reflect"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged is set when any hot-reloadable pipeline parameter
	// changed; NewTuning holds the full new set.
	TuningChanged bool
	NewTuning     pipeline.Tuning

	// RestartRequired names the changed sections that only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TuningChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if oldT, newT := old.Pipeline.Tuning(), new.Pipeline.Tuning(); oldT != newT {
		d.TuningChanged = true
		d.NewTuning = newT
	}

	// Everything except log level and tuning is wired at startup.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(staticPipeline(old.Pipeline), staticPipeline(new.Pipeline)) {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if !reflect.DeepEqual(old.Source, new.Source) {
		d.RestartRequired = append(d.RestartRequired, "source")
	}
	if !reflect.DeepEqual(old.Transcription, new.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "transcription")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

// staticPipeline clears the hot-reloadable fields of p.
func staticPipeline(p PipelineConfig) PipelineConfig {
	p.SpeechThreshold = 0
	p.NoiseReductionLevel = 0
	p.EnablePreprocessing = false
	p.EnableQualityAnalysis = false
	p.EnableVisualization = false
	return p
}
