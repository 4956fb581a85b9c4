// Package audio defines the frame types, PCM helpers and capture-source
// abstraction used by the segmentation pipeline.
//
// The primary abstraction is [Source]: a running capture backend that pushes
// [AudioFrame] values to a subscriber callback in arrival order. Concrete
// backends live in sub-packages (e.g., audio/tone, audio/wsingest); platform
// capture (microphone or system loopback) is provided by external adapters
// implementing the same interface.
//
// This package lives under pkg/ because external code is expected to
// implement [Source].
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a capture source.
type Kind string

const (
	// KindMicrophone is an input device such as the default microphone.
	KindMicrophone Kind = "microphone"

	// KindSystem captures the system output (loopback).
	KindSystem Kind = "system"

	// KindNetwork receives frames from a remote peer.
	KindNetwork Kind = "network"

	// KindSynthetic generates frames locally.
	KindSynthetic Kind = "synthetic"
)

// Descriptor describes a capture source for listing and selection.
type Descriptor struct {
	// ID is the stable identifier used in configuration (e.g., "default_microphone").
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Kind classifies the source.
	Kind Kind `json:"type"`

	// Available reports whether the source can currently be started.
	Available bool `json:"isAvailable"`

	// Format is the format of frames the source produces.
	Format Format `json:"-"`
}

// Source is a capture backend delivering frames of a fixed format.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Describe returns the descriptor of this source.
	Describe() Descriptor

	// Start begins delivering frames to onFrame. onFrame is called from a
	// single goroutine, in capture order, and must not block. Start returns
	// once capture is running; ctx governs the lifetime of the capture.
	Start(ctx context.Context, onFrame func(AudioFrame)) error

	// Stop ends capture. It is safe to call Stop more than once.
	Stop() error
}

// ErrNoSource is returned by [Select] when no candidate is available.
var ErrNoSource = errors.New("audio: no available capture source")

// Select resolves the capture source once, at startup. It returns the first
// available candidate whose ID appears in preferred, honouring the order of
// preferred. When no preferred ID matches, the first available candidate is
// used.
func Select(preferred []string, candidates []Source) (Source, error) {
	byID := make(map[string]Source, len(candidates))
	for _, c := range candidates {
		byID[c.Describe().ID] = c
	}
	for _, id := range preferred {
		c, ok := byID[id]
		if !ok {
			continue
		}
		if c.Describe().Available {
			return c, nil
		}
	}
	for _, c := range candidates {
		if c.Describe().Available {
			return c, nil
		}
	}
	if len(preferred) > 0 {
		return nil, fmt.Errorf("%w (preferred %v)", ErrNoSource, preferred)
	}
	return nil, ErrNoSource
}

// Describe returns the descriptors of sources in order.
func Describe(sources []Source) []Descriptor {
	out := make([]Descriptor, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Describe())
	}
	return out
}
