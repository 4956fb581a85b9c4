package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps names to constructors for transcription backends and capture
// sources. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber map[string]func(ProviderEntry) (transcribe.Provider, error)
	source      map[string]func(*Config) (audio.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcriber: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		source:      make(map[string]func(*Config) (audio.Source, error)),
	}
}

// RegisterTranscriber registers a transcription backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// RegisterSource registers a capture source factory under its source ID. A
// factory returns a nil source when the source is disabled in cfg.
func (r *Registry) RegisterSource(id string, factory func(*Config) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source[id] = factory
}

// CreateTranscriber instantiates the backend registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSource instantiates the source registered under id. The returned
// source is nil when the factory reports it disabled.
func (r *Registry) CreateSource(id string, cfg *Config) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.source[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrProviderNotRegistered, id)
	}
	return factory(cfg)
}

// CreateSources instantiates every registered and enabled source, sorted by
// ID.
func (r *Registry) CreateSources(cfg *Config) ([]audio.Source, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.source))
	for id := range r.source {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)

	var out []audio.Source
	for _, id := range ids {
		s, err := r.CreateSource(id, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: create source %q: %w", id, err)
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}
