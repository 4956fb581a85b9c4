package whisper

import (
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

// modelRate is the only sample rate whisper.cpp models accept.
const modelRate = 16000

// modelSamples downmixes the request to mono and resamples it to 16 kHz.
// The samples pass through 16-bit PCM, matching what a capture device would
// have delivered.
func modelSamples(req transcribe.Request) []float32 {
	mono := req.Mono()
	if req.SampleRate == modelRate {
		return mono
	}
	pcm := audio.ResampleMono16(audio.EncodePCM16(mono), req.SampleRate, modelRate)
	return audio.Decode(pcm, 16)
}

// modelWAV returns the request audio as a 16 kHz mono WAV file.
func modelWAV(req transcribe.Request) []byte {
	return audio.EncodeWAV(audio.EncodePCM16(modelSamples(req)), modelRate, 1)
}
