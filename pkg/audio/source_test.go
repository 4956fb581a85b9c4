package audio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio/mock"
)

func src(id string, available bool) *mock.Source {
	return &mock.Source{Descriptor: audio.Descriptor{ID: id, Name: id, Kind: audio.KindMicrophone, Available: available}}
}

func TestSelect(t *testing.T) {
	mic := src("default_microphone", true)
	sys := src("system_audio", true)
	off := src("usb_interface", false)
	all := []audio.Source{off, mic, sys}

	tests := []struct {
		name      string
		preferred []string
		cands     []audio.Source
		want      string
		wantErr   bool
	}{
		{name: "preferred order wins", preferred: []string{"system_audio", "default_microphone"}, cands: all, want: "system_audio"},
		{name: "unavailable preferred is skipped", preferred: []string{"usb_interface", "default_microphone"}, cands: all, want: "default_microphone"},
		{name: "unknown preferred falls back to first available", preferred: []string{"nope"}, cands: all, want: "default_microphone"},
		{name: "no preference", cands: all, want: "default_microphone"},
		{name: "nothing available", preferred: []string{"usb_interface"}, cands: []audio.Source{off}, wantErr: true},
		{name: "no candidates", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := audio.Select(tt.preferred, tt.cands)
			if tt.wantErr {
				if !errors.Is(err, audio.ErrNoSource) {
					t.Fatalf("err = %v, want ErrNoSource", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if id := got.Describe().ID; id != tt.want {
				t.Errorf("selected %q, want %q", id, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	ds := audio.Describe([]audio.Source{src("a", true), src("b", false)})
	if len(ds) != 2 || ds[0].ID != "a" || ds[1].Available {
		t.Errorf("Describe = %+v", ds)
	}
}

func TestMockSource_Push(t *testing.T) {
	m := src("mic", true)
	if m.Push(audio.AudioFrame{}) {
		t.Error("Push before Start delivered a frame")
	}

	var got int
	if err := m.Start(context.Background(), func(audio.AudioFrame) { got++ }); err != nil {
		t.Fatal(err)
	}
	m.Push(audio.AudioFrame{}, audio.AudioFrame{})
	if got != 2 {
		t.Errorf("delivered %d frames, want 2", got)
	}

	_ = m.Stop()
	if m.Push(audio.AudioFrame{}) {
		t.Error("Push after Stop delivered a frame")
	}
	if m.CallCountStart != 1 || m.CallCountStop != 1 {
		t.Errorf("call counts start=%d stop=%d", m.CallCountStart, m.CallCountStop)
	}
}
