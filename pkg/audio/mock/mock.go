// Package mock provides an in-memory mock implementation of the
// [audio.Source] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{Descriptor: audio.Descriptor{ID: "mic", Available: true}}
//	_ = src.Start(ctx, p.Accept)
//	src.Push(frame) // delivers frame to the registered callback
package mock

import (
	"context"
	"sync"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source].
// Set the exported fields before use; inspect the CallCount* fields after.
type Source struct {
	mu sync.Mutex

	// Descriptor is returned by [Source.Describe].
	Descriptor audio.Descriptor

	// StartError is returned by [Source.Start].
	StartError error

	// StopError is returned by [Source.Stop].
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	onFrame func(audio.AudioFrame)
}

// Describe implements [audio.Source].
func (s *Source) Describe() audio.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Descriptor
}

// Start implements [audio.Source]. The callback is retained for [Source.Push]
// unless StartError is set.
func (s *Source) Start(_ context.Context, onFrame func(audio.AudioFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.onFrame = onFrame
	return nil
}

// Stop implements [audio.Source]. Subsequent Push calls are no-ops.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.onFrame = nil
	return s.StopError
}

// Push delivers frames to the callback registered by Start, in order.
// It reports whether a callback was registered.
func (s *Source) Push(frames ...audio.AudioFrame) bool {
	s.mu.Lock()
	cb := s.onFrame
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	for _, f := range frames {
		cb(f)
	}
	return true
}
