package transcribe_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     transcribe.Request
		wantErr bool
	}{
		{"ok", transcribe.Request{Samples: []float32{0}, SampleRate: 16000, Channels: 1}, false},
		{"no samples", transcribe.Request{SampleRate: 16000}, true},
		{"no rate", transcribe.Request{Samples: []float32{0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if err := (transcribe.Request{}).Validate(); !errors.Is(err, transcribe.ErrEmptyAudio) {
		t.Errorf("empty request: err = %v, want ErrEmptyAudio", err)
	}
}

func TestRequest_AudioViews(t *testing.T) {
	req := transcribe.Request{
		Samples:    make([]float32, 16000*2),
		SampleRate: 16000,
		Channels:   2,
	}
	req.Samples[0], req.Samples[1] = 1, 0

	if got := req.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
	mono := req.Mono()
	if len(mono) != 16000 || mono[0] != 0.5 {
		t.Errorf("Mono(): len=%d first=%v, want 16000 and 0.5", len(mono), mono[0])
	}
	wav := req.WAV()
	if !bytes.HasPrefix(wav, []byte("RIFF")) || len(wav) != 44+len(req.Samples)*2 {
		t.Errorf("WAV(): len=%d, want RIFF header and %d bytes", len(wav), 44+len(req.Samples)*2)
	}
}
