package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakePipeline struct{ ready atomic.Bool }

func (f *fakePipeline) Initialized() bool { return f.ready.Load() }

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("x") }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	pass := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{"no checkers", nil, http.StatusOK, nil},
		{"all pass", []Checker{{"pipeline", pass}, {"source", pass}}, http.StatusOK,
			map[string]string{"pipeline": "ok", "source": "ok"}},
		{"one fails", []Checker{{"pipeline", fail("not initialized")}, {"source", pass}}, http.StatusServiceUnavailable,
			map[string]string{"pipeline": "fail: not initialized", "source": "ok"}},
		{"all fail", []Checker{{"pipeline", fail("a")}, {"source", fail("b")}}, http.StatusServiceUnavailable,
			map[string]string{"pipeline": "fail: a", "source": "fail: b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			wantStatus := "ok"
			if tt.wantStatus != http.StatusOK {
				wantStatus = "fail"
			}
			if body.Status != wantStatus {
				t.Errorf("body status = %q, want %q", body.Status, wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	slow := func(context.Context) error { time.Sleep(100 * time.Millisecond); return nil }
	h := New(Checker{"a", slow}, Checker{"b", slow}, Checker{"c", slow})

	start := time.Now()
	code, _ := readyz(t, h, context.Background())
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("readyz took %v; checks appear to run sequentially", elapsed)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, _ := readyz(t, h, ctx)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestPipelineReady(t *testing.T) {
	p := &fakePipeline{}
	h := New(PipelineReady(p))

	if code, body := readyz(t, h, context.Background()); code != http.StatusServiceUnavailable || body.Checks["pipeline"] != "fail: not initialized" {
		t.Errorf("before init: %d %v", code, body.Checks)
	}
	p.ready.Store(true)
	if code, _ := readyz(t, h, context.Background()); code != http.StatusOK {
		t.Errorf("after init: status = %d, want 200", code)
	}
}

func TestSourceRunning(t *testing.T) {
	var running atomic.Bool
	h := New(SourceRunning("tone", running.Load))

	if _, body := readyz(t, h, context.Background()); body.Checks["source:tone"] != "fail: not capturing" {
		t.Errorf("stopped source check = %q", body.Checks["source:tone"])
	}
	running.Store(true)
	if code, _ := readyz(t, h, context.Background()); code != http.StatusOK {
		t.Errorf("running source: status = %d, want 200", code)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
