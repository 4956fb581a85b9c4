// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// Compile-time assertion that NativeProvider satisfies transcribe.Provider.
var _ transcribe.Provider = (*NativeProvider)(nil)

// NativeProvider implements transcribe.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once and
// shared; every call creates its own inference context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint

	// sem bounds concurrent inferences; whisper contexts are memory heavy.
	sem chan struct{}

	closeOnce sync.Once
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code (e.g., "en", "de").
// Defaults to "en". Use "auto" for detection.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads per inference. Zero keeps
// the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithNativeConcurrency bounds how many inferences run at once. Defaults to 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		sem:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. It is safe to call more than once.
func (p *NativeProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.model != nil {
			err = p.model.Close()
		}
	})
	return err
}

// Transcribe implements transcribe.Provider. Inference itself cannot be
// interrupted; ctx is honoured while waiting for a free inference slot.
func (p *NativeProvider) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	if err := req.Validate(); err != nil {
		return transcribe.Result{}, err
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return transcribe.Result{}, fmt.Errorf("whisper: waiting for inference slot: %w", ctx.Err())
	}

	started := time.Now()
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	words, detected, err := p.infer(modelSamples(req), lang)
	if err != nil {
		return transcribe.Result{}, err
	}

	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return transcribe.Result{
		SegmentID: req.SegmentID,
		SessionID: req.SessionID,
		Text:      strings.Join(texts, " "),
		Language:  detected,
		Words:     words,
		Provider:  "whisper-native",
		Start:     req.Start,
		Duration:  req.Duration(),
		Latency:   time.Since(started),
	}, nil
}

// infer runs whisper.cpp over 16 kHz mono samples using a fresh context and
// returns the recognised segments.
func (p *NativeProvider) infer(samples []float32, lang string) ([]transcribe.Word, string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var words []transcribe.Word
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		words = append(words, transcribe.Word{Text: text, Start: segment.Start, End: segment.End})
	}
	return words, wctx.DetectedLanguage(), nil
}
