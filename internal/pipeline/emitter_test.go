package pipeline_test

import (
	"sync"
	"testing"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/bus"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/pipeline"
)

func TestEmitter_AssignsIncreasingIDs(t *testing.T) {
	out := bus.New[pipeline.Segment]()
	ch, cancel := out.Subscribe(8)
	defer cancel()
	e := pipeline.NewEmitter(10, out)

	for want := uint64(1); want <= 3; want++ {
		got := e.Emit(pipeline.Segment{})
		if got.ID != want {
			t.Errorf("Emit ID = %d, want %d", got.ID, want)
		}
		if pub := recv(t, ch); pub.ID != want {
			t.Errorf("published ID = %d, want %d", pub.ID, want)
		}
	}
	if e.LastID() != 3 {
		t.Errorf("LastID() = %d, want 3", e.LastID())
	}
}

func TestEmitter_HistoryEviction(t *testing.T) {
	e := pipeline.NewEmitter(2, nil)
	for range 4 {
		e.Emit(pipeline.Segment{})
	}

	h := e.History()
	if len(h) != 2 || h[0].ID != 3 || h[1].ID != 4 {
		t.Fatalf("history = %v, want IDs [3 4]", ids(h))
	}
	if _, ok := e.Get(2); ok {
		t.Error("Get(2) found an evicted segment")
	}
	if s, ok := e.Get(4); !ok || s.ID != 4 {
		t.Error("Get(4) missing")
	}
}

func TestEmitter_ResetAndClear(t *testing.T) {
	e := pipeline.NewEmitter(5, nil)
	e.Emit(pipeline.Segment{})
	e.Emit(pipeline.Segment{})

	e.ResetIDs()
	if got := e.Emit(pipeline.Segment{}).ID; got != 1 {
		t.Errorf("ID after ResetIDs = %d, want 1", got)
	}
	if len(e.History()) != 3 {
		t.Errorf("ResetIDs dropped history")
	}

	e.ClearHistory()
	if len(e.History()) != 0 {
		t.Errorf("history not empty after ClearHistory")
	}
}

func TestEmitter_ConcurrentEmitIDsAreUnique(t *testing.T) {
	e := pipeline.NewEmitter(1000, nil)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				e.Emit(pipeline.Segment{})
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, s := range e.History() {
		if seen[s.ID] {
			t.Fatalf("duplicate ID %d", s.ID)
		}
		seen[s.ID] = true
	}
	if len(seen) != 400 || e.LastID() != 400 {
		t.Errorf("got %d unique IDs, last %d; want 400", len(seen), e.LastID())
	}
}

func TestSegment_HasSpeech(t *testing.T) {
	var s pipeline.Segment
	if s.HasSpeech() {
		t.Error("zero segment reports speech")
	}
	s.Analysis.HasSpeech = true
	if !s.HasSpeech() {
		t.Error("HasSpeech() = false with Analysis.HasSpeech set")
	}
}

func TestTrigger_String(t *testing.T) {
	tests := map[pipeline.Trigger]string{
		pipeline.TriggerTimer:  "timer",
		pipeline.TriggerManual: "manual",
		pipeline.TriggerStop:   "stop",
		pipeline.Trigger(42):   "unknown",
	}
	for tr, want := range tests {
		if got := tr.String(); got != want {
			t.Errorf("Trigger(%d).String() = %q, want %q", int(tr), got, want)
		}
	}
}

func ids(segs []pipeline.Segment) []uint64 {
	out := make([]uint64, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}
