// Package audio implements the local half of a live voice session: PCM
// conversion, microphone capture and gapless playback scheduling.
//
// Platform audio is reached only through the InputDevice and OutputDevice
// interfaces so that the session logic can be exercised without hardware.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDecode is returned when a transport payload is not valid base64.
	ErrDecode = errors.New("audio: invalid transport encoding")
	// ErrMalformedAudio is returned when a PCM payload does not hold whole frames.
	ErrMalformedAudio = errors.New("audio: malformed pcm payload")
)

const pcmScale = 32768.0

// EncodeToTransport returns the text-safe representation of raw audio bytes.
func EncodeToTransport(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeFromTransport is the inverse of EncodeToTransport.
func DecodeFromTransport(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}

// PCM16ToFloat reinterprets little-endian int16 samples as normalized floats,
// de-interleaved by channel. Every returned sample lies in [-1, 1).
func PCM16ToFloat(b []byte, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}
	if len(b)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedAudio, len(b), 2*channels)
	}

	frames := len(b) / (2 * channels)
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			offset := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(b[offset:]))
			out[ch][i] = float32(float64(sample) / pcmScale)
		}
	}

	return out, nil
}

// FloatToPCM16 scales normalized samples to little-endian int16 bytes.
func FloatToPCM16(samples []float32) []byte {
	return Frame{Samples: FloatToInt16(samples)}.Bytes()
}

// FloatToInt16 scales normalized samples to int16. Values outside the
// representable range are clamped instead of wrapping.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * pcmScale)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Interleave merges per-channel samples into a single interleaved slice.
// Channels shorter than the first one are padded with silence.
func Interleave(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}

	frames := len(channels[0])
	out := make([]float32, frames*len(channels))
	for i := 0; i < frames; i++ {
		for ch, data := range channels {
			if i < len(data) {
				out[i*len(channels)+ch] = data[i]
			}
		}
	}
	return out
}

// DecodeFloat32LE converts raw little-endian IEEE-754 samples, as produced by
// ffmpeg's f32le format, into floats. Trailing partial samples are ignored.
func DecodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
