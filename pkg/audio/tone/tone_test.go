package tone_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio/tone"
)

func TestFrame_Pattern(t *testing.T) {
	s := tone.New(
		tone.WithPattern(100*time.Millisecond, 100*time.Millisecond),
		tone.WithFrameSize(1600),
		tone.WithAmplitude(0.5),
	)

	tests := []struct {
		name   string
		start  int64
		silent bool
	}{
		{"first on period", 0, false},
		{"first off period", 1600, true},
		{"second on period", 3200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := s.Frame(tt.start)
			level := audio.RMS(audio.Decode(f.Data, f.BitDepth))
			if tt.silent && level != 0 {
				t.Errorf("RMS = %v, want 0", level)
			}
			if !tt.silent && (level < 0.3 || level > 0.4) {
				t.Errorf("RMS = %v, want ~0.354", level)
			}
			if f.Timestamp != audio.DefaultFormat.DurationOf(int(tt.start)) {
				t.Errorf("Timestamp = %v", f.Timestamp)
			}
		})
	}
}

func TestFrame_Deterministic(t *testing.T) {
	a := tone.New().Frame(4800)
	b := tone.New().Frame(4800)
	if string(a.Data) != string(b.Data) {
		t.Error("identical sources produced different frames")
	}
}

func TestFrame_StereoFormat(t *testing.T) {
	s := tone.New(
		tone.WithFormat(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 24}),
		tone.WithFrameSize(480),
	)
	f := s.Frame(0)
	if f.BitDepth != 16 || f.Channels != 2 || f.SampleRate != 48000 {
		t.Errorf("format = %s, want 48000Hz stereo 16bit", f.Format())
	}
	if f.SampleCount() != 480 || f.Duration != 10*time.Millisecond {
		t.Errorf("samples=%d duration=%v, want 480 and 10ms", f.SampleCount(), f.Duration)
	}
}

func TestSource_StartStop(t *testing.T) {
	s := tone.New(tone.WithRealtime(false), tone.WithID("gen"))
	if d := s.Describe(); d.ID != "gen" || d.Kind != audio.KindSynthetic || !d.Available {
		t.Errorf("Describe = %+v", d)
	}

	var (
		mu     sync.Mutex
		frames []audio.AudioFrame
	)
	enough := make(chan struct{})
	var once sync.Once
	err := s.Start(context.Background(), func(f audio.AudioFrame) {
		mu.Lock()
		frames = append(frames, f)
		n := len(frames)
		mu.Unlock()
		if n >= 5 {
			once.Do(func() { close(enough) })
		}
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), func(audio.AudioFrame) {}); err == nil {
		t.Error("second Start succeeded")
	}

	select {
	case <-enough:
	case <-time.After(2 * time.Second):
		t.Fatal("no frames delivered")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(frames); i++ {
		if frames[i].Timestamp <= frames[i-1].Timestamp {
			t.Fatalf("frame %d timestamp %v not after %v", i, frames[i].Timestamp, frames[i-1].Timestamp)
		}
	}
}

func TestSource_NilCallback(t *testing.T) {
	if err := tone.New().Start(context.Background(), nil); err == nil {
		t.Error("Start(nil) succeeded")
	}
}
