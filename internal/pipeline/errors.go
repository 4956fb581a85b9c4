package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
)

var (
	// ErrEmptyFrame is returned when a frame carries no payload.
	ErrEmptyFrame = errors.New("pipeline: empty frame")

	// ErrBufferClosed is returned when a frame arrives while the pipeline is
	// not processing.
	ErrBufferClosed = errors.New("pipeline: ingest buffer closed")

	// ErrNotInitialized is wrapped by a [StateError] when an operation
	// requires a successful [Pipeline.Initialize] first.
	ErrNotInitialized = errors.New("pipeline: not initialized")

	// ErrAlreadyProcessing is wrapped by a [StateError] when
	// [Pipeline.Start] is called while processing.
	ErrAlreadyProcessing = errors.New("pipeline: already processing")

	// ErrNotProcessing is wrapped by a [StateError] when [Pipeline.Flush] is
	// called while idle.
	ErrNotProcessing = errors.New("pipeline: not processing")

	// ErrNothingToFlush is returned by [Pipeline.Flush] when no frames arrived
	// since the previous segment.
	ErrNothingToFlush = errors.New("pipeline: no new audio since last segment")
)

// FormatMismatchError reports a frame whose format disagrees with the
// configured stream format. The frame is dropped.
type FormatMismatchError struct {
	Expected audio.Format
	Got      audio.Format

	// Field names the first differing property: "sample_rate", "channels"
	// or "bit_depth".
	Field string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("pipeline: frame format mismatch on %s: got %s, want %s", e.Field, e.Got, e.Expected)
}

// ProcessingError reports a recoverable failure while analysing a chunk or
// building a segment. The pipeline continues with the next unit of work.
type ProcessingError struct {
	// Stage is "chunk" or "segment".
	Stage string

	// Timestamp is the capture time of the failed chunk or segment start.
	Timestamp time.Duration

	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("pipeline: %s processing at %s: %v", e.Stage, e.Timestamp, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// InitializationError reports a component that could not be set up. The
// pipeline is unusable until [Pipeline.Initialize] succeeds.
type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("pipeline: initialize %s: %v", e.Component, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StateError reports an operation invoked in a state that does not allow it.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pipeline: %s in state %s: %v", e.Op, e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// checkFormat returns a *FormatMismatchError if f differs from want.
func checkFormat(want, f audio.Format) error {
	var field string
	switch {
	case f.SampleRate != want.SampleRate:
		field = "sample_rate"
	case f.Channels != want.Channels:
		field = "channels"
	case f.BitDepth != want.BitDepth:
		field = "bit_depth"
	default:
		return nil
	}
	return &FormatMismatchError{Expected: want, Got: f, Field: field}
}
