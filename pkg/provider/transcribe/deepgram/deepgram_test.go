package deepgram_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe/deepgram"
)

// session records what the fake listen endpoint received.
type session struct {
	auth     string
	query    url.Values
	audio    int
	messages int
	closed   bool
}

// newServer runs a fake listen endpoint. After CloseStream it writes replies
// in order, then a Metadata message, then closes normally.
func newServer(t *testing.T, replies ...any) (*httptest.Server, func() session) {
	t.Helper()
	var (
		mu  sync.Mutex
		got session
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		mu.Lock()
		got.auth = r.Header.Get("Authorization")
		got.query = r.URL.Query()
		mu.Unlock()

		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				mu.Lock()
				got.audio += len(data)
				got.messages++
				mu.Unlock()
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				mu.Lock()
				got.closed = true
				mu.Unlock()
				break
			}
		}
		for _, reply := range replies {
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return
			}
		}
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "Metadata", "request_id": "r1"})
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv, func() session {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func result(final bool, transcript string, words ...map[string]any) map[string]any {
	return map[string]any{
		"type":     "Results",
		"is_final": final,
		"channel": map[string]any{
			"alternatives": []any{
				map[string]any{"transcript": transcript, "confidence": 0.9, "words": words},
			},
		},
	}
}

func word(text string, start, end float64) map[string]any {
	return map[string]any{"word": strings.ToLower(text), "punctuated_word": text, "start": start, "end": end, "confidence": 0.8}
}

func speech(n, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := deepgram.New(""); err == nil {
		t.Fatal("New with empty key succeeded")
	}
}

func TestTranscribe_CollectsFinalResults(t *testing.T) {
	srv, seen := newServer(t,
		result(false, "hello"),
		result(true, "Hello there.", word("Hello", 0.1, 0.4), word("there.", 0.5, 0.9)),
		result(true, ""),
		result(true, "General Kenobi.", word("General", 1.2, 1.6), word("Kenobi.", 1.7, 2.2)),
	)
	p, err := deepgram.New("secret",
		deepgram.WithEndpoint(srv.URL),
		deepgram.WithModel("nova-2"),
		deepgram.WithChunkBytes(4000),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := speech(16000*2, 16000)
	res, err := p.Transcribe(context.Background(), transcribe.Request{
		SegmentID:  7,
		SessionID:  "s1",
		Samples:    samples,
		SampleRate: 16000,
		Channels:   1,
		Start:      30 * time.Second,
		Language:   "de",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "Hello there. General Kenobi." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Provider != "deepgram" || res.Language != "de" || res.SegmentID != 7 || res.SessionID != "s1" {
		t.Errorf("result metadata = %+v", res)
	}
	if res.Start != 30*time.Second || res.Duration != 2*time.Second {
		t.Errorf("Start/Duration = %v/%v, want 30s/2s", res.Start, res.Duration)
	}
	if len(res.Words) != 4 {
		t.Fatalf("Words = %d, want 4", len(res.Words))
	}
	if w := res.Words[3]; w.Text != "Kenobi." || w.Start != 1700*time.Millisecond || w.Confidence != 0.8 {
		t.Errorf("last word = %+v", w)
	}

	got := seen()
	if !got.closed {
		t.Error("CloseStream was not sent")
	}
	if got.audio != 2*len(samples) {
		t.Errorf("server received %d audio bytes, want %d", got.audio, 2*len(samples))
	}
	if got.messages != 2*len(samples)/4000 {
		t.Errorf("server received %d audio messages, want %d", got.messages, 2*len(samples)/4000)
	}
	want := map[string]string{
		"model":           "nova-2",
		"language":        "de",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "false",
	}
	for k, v := range want {
		if got.query.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, got.query.Get(k), v)
		}
	}
}

func TestTranscribe_DefaultLanguageAndSilence(t *testing.T) {
	srv, seen := newServer(t)
	p, err := deepgram.New("secret", deepgram.WithEndpoint(srv.URL), deepgram.WithLanguage("fr"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), transcribe.Request{
		Samples: speech(3200, 16000), SampleRate: 16000, Channels: 2,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" || len(res.Words) != 0 {
		t.Errorf("silent result = %+v", res)
	}
	q := seen().query
	if q.Get("language") != "fr" || q.Get("channels") != "2" || q.Get("model") != "nova-3" {
		t.Errorf("query = %v", q)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Run("empty audio", func(t *testing.T) {
		p, _ := deepgram.New("secret", deepgram.WithEndpoint("ws://127.0.0.1:1"))
		_, err := p.Transcribe(context.Background(), transcribe.Request{SampleRate: 16000})
		if !errors.Is(err, transcribe.ErrEmptyAudio) {
			t.Errorf("err = %v, want ErrEmptyAudio", err)
		}
	})

	t.Run("rejected key", func(t *testing.T) {
		srv, _ := newServer(t)
		p, _ := deepgram.New("wrong", deepgram.WithEndpoint(srv.URL))
		_, err := p.Transcribe(context.Background(), transcribe.Request{Samples: speech(1600, 16000), SampleRate: 16000})
		if err == nil || !strings.Contains(err.Error(), "dial") {
			t.Errorf("err = %v, want dial error", err)
		}
	})

	t.Run("server error message", func(t *testing.T) {
		srv, _ := newServer(t, map[string]any{"type": "Error", "description": "bad encoding"})
		p, _ := deepgram.New("secret", deepgram.WithEndpoint(srv.URL))
		_, err := p.Transcribe(context.Background(), transcribe.Request{Samples: speech(1600, 16000), SampleRate: 16000})
		if err == nil || !strings.Contains(err.Error(), "bad encoding") {
			t.Errorf("err = %v, want server error", err)
		}
	})

	t.Run("abnormal close", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, nil)
			if err != nil {
				return
			}
			_ = conn.Close(websocket.StatusInternalError, "overloaded")
		}))
		t.Cleanup(srv.Close)
		p, _ := deepgram.New("secret", deepgram.WithEndpoint(srv.URL))
		_, err := p.Transcribe(context.Background(), transcribe.Request{Samples: speech(1600, 16000), SampleRate: 16000})
		if err == nil {
			t.Error("Transcribe succeeded on an abnormal close")
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, nil)
			if err != nil {
				return
			}
			defer conn.CloseNow()
			for {
				if _, _, err := conn.Read(r.Context()); err != nil {
					return
				}
			}
		}))
		t.Cleanup(srv.Close)
		p, _ := deepgram.New("secret", deepgram.WithEndpoint(srv.URL))
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := p.Transcribe(ctx, transcribe.Request{Samples: speech(1600, 16000), SampleRate: 16000})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
}
