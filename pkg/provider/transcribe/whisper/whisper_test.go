package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe/whisper"
)

// inference records what the fake server received.
type inference struct {
	fields map[string]string
	wav    []byte
}

// newServer answers POST /inference with body and records each upload.
func newServer(t *testing.T, status int, body any) (*httptest.Server, func() []inference) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []inference
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got := inference{fields: map[string]string{}}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				got.wav = data
			} else {
				got.fields[part.FormName()] = string(data)
			}
		}
		mu.Lock()
		seen = append(seen, got)
		mu.Unlock()

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inference {
		mu.Lock()
		defer mu.Unlock()
		return append([]inference(nil), seen...)
	}
}

func speech(n, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ParsesVerboseJSON(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK, map[string]any{
		"text":     "  hello there  ",
		"language": "en",
		"segments": []map[string]any{
			{"text": " hello", "start": 0.0, "end": 0.4},
			{"text": " there", "start": 0.4, "end": 0.9},
		},
	})
	p, _ := whisper.New(srv.URL, whisper.WithModel("base.en"))

	res, err := p.Transcribe(context.Background(), transcribe.Request{
		SegmentID:  7,
		SessionID:  "s",
		Samples:    speech(16000, 16000),
		SampleRate: 16000,
		Channels:   1,
		Start:      2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "hello there" || res.Language != "en" || res.Provider != "whisper" {
		t.Errorf("result = %+v", res)
	}
	if res.SegmentID != 7 || res.Start != 2*time.Second || res.Duration != time.Second {
		t.Errorf("segment metadata = id %d start %v duration %v", res.SegmentID, res.Start, res.Duration)
	}
	if len(res.Words) != 2 || res.Words[1].Start != 400*time.Millisecond {
		t.Errorf("words = %+v", res.Words)
	}

	calls := seen()
	if len(calls) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(calls))
	}
	f := calls[0].fields
	if f["language"] != "en" || f["model"] != "base.en" || f["response_format"] != "verbose_json" {
		t.Errorf("form fields = %v", f)
	}
	// 1 s of 16 kHz mono 16-bit plus the header.
	if len(calls[0].wav) != 44+32000 {
		t.Errorf("uploaded %d bytes, want %d", len(calls[0].wav), 44+32000)
	}
}

func TestTranscribe_ResamplesTo16kMono(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK, map[string]string{"text": "ok"})
	p, _ := whisper.New(srv.URL)

	stereo := speech(48000*2, 48000)
	_, err := p.Transcribe(context.Background(), transcribe.Request{
		Samples:    stereo,
		SampleRate: 48000,
		Channels:   2,
		Language:   "de",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	call := seen()[0]
	if len(call.wav) != 44+32000 {
		t.Errorf("uploaded %d bytes, want 1 s of 16 kHz mono", len(call.wav))
	}
	if call.fields["language"] != "de" {
		t.Errorf("language = %q, want request language de", call.fields["language"])
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusInternalServerError, map[string]string{"error": "boom"})
		p, _ := whisper.New(srv.URL)
		_, err := p.Transcribe(context.Background(), transcribe.Request{Samples: speech(160, 16000), SampleRate: 16000, Channels: 1})
		if err == nil || !strings.Contains(err.Error(), "500") {
			t.Errorf("err = %v, want HTTP 500 error", err)
		}
	})

	t.Run("empty audio", func(t *testing.T) {
		p, _ := whisper.New("http://127.0.0.1:1")
		if _, err := p.Transcribe(context.Background(), transcribe.Request{SampleRate: 16000}); err == nil {
			t.Error("expected error for empty request")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, map[string]string{"text": "late"})
		p, _ := whisper.New(srv.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Transcribe(ctx, transcribe.Request{Samples: speech(160, 16000), SampleRate: 16000, Channels: 1}); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
