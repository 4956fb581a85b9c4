package audio

import (
	"encoding/binary"
	"math"
)

// Decode converts interleaved little-endian PCM to float32 samples normalised
// to [-1.0, 1.0]. 8-bit input is treated as unsigned, wider depths as signed.
// Trailing bytes that do not form a whole sample are ignored. An unsupported
// bit depth yields nil.
func Decode(pcm []byte, bitDepth int) []float32 {
	switch bitDepth {
	case 8:
		out := make([]float32, len(pcm))
		for i, b := range pcm {
			out[i] = (float32(b) - 128) / 128.0
		}
		return out
	case 16:
		n := len(pcm) / 2
		out := make([]float32, n)
		for i := range n {
			s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			out[i] = float32(s) / 32768.0
		}
		return out
	case 24:
		n := len(pcm) / 3
		out := make([]float32, n)
		for i := range n {
			b := pcm[i*3 : i*3+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xffffff
			}
			out[i] = float32(v) / 8388608.0
		}
		return out
	case 32:
		n := len(pcm) / 4
		out := make([]float32, n)
		for i := range n {
			s := int32(binary.LittleEndian.Uint32(pcm[i*4 : i*4+4]))
			out[i] = float32(float64(s) / 2147483648.0)
		}
		return out
	default:
		return nil
	}
}

// Downmix averages interleaved multi-channel samples into mono. If channels
// is 1 or less the input is returned unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	mono := make([]float32, n)
	for i := range n {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// DecodeFrames concatenates the decoded samples of frames. Each frame is
// truncated to a whole number of multi-channel samples so channel
// interleaving stays intact across frame boundaries.
func DecodeFrames(frames []AudioFrame) []float32 {
	total := 0
	for _, f := range frames {
		total += f.SampleCount() * f.Channels
	}
	out := make([]float32, 0, total)
	for _, f := range frames {
		usable := f.SampleCount() * f.Format().FrameBytes()
		out = append(out, Decode(f.Data[:usable], f.BitDepth)...)
	}
	return out
}

// EncodePCM16 converts float32 samples to 16-bit signed little-endian PCM,
// clamping to [-1.0, 1.0].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// EncodeWAV wraps raw 16-bit PCM in a minimal WAV (RIFF) container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// RMS returns the root-mean-square amplitude of samples, 0 for empty input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MeanAbs returns the mean absolute amplitude of samples, 0 for empty input.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}
