package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// CaptureSampleRate is the microphone rate expected by the remote model.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of synthesized model speech.
	PlaybackSampleRate = 24000
	// DefaultFrameSize is the number of samples per outbound capture frame.
	DefaultFrameSize = 4096
)

// Frame is a block of signed 16-bit PCM samples. Samples are interleaved when
// Channels is greater than one.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the little-endian wire representation of the frame.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Duration reports how long the frame plays.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return framesDuration(len(f.Samples)/f.Channels, f.SampleRate)
}

// EncodedChunk is a transport-encoded PCM payload tagged with its MIME type.
type EncodedChunk struct {
	Data     string
	MIMEType string
}

// EncodeFrame converts a frame into its transport representation.
func EncodeFrame(f Frame) EncodedChunk {
	return EncodedChunk{
		Data:     EncodeToTransport(f.Bytes()),
		MIMEType: PCMMIMEType(f.SampleRate),
	}
}

// PCMMIMEType returns the descriptor used for raw PCM16 audio at rate.
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// ParseRate extracts the sample rate from a PCM MIME descriptor. It returns
// fallback when the descriptor carries no usable rate.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || rate <= 0 {
			return fallback
		}
		return rate
	}
	return fallback
}

// Buffer is decoded audio ready for playback: one float slice per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of sample frames in the buffer.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration reports how long the buffer plays.
func (b Buffer) Duration() time.Duration {
	return framesDuration(b.Frames(), b.SampleRate)
}

// DecodeChunk turns a transport chunk into a playable buffer.
func DecodeChunk(chunk EncodedChunk, channels, fallbackRate int) (Buffer, error) {
	raw, err := DecodeFromTransport(chunk.Data)
	if err != nil {
		return Buffer{}, err
	}
	data, err := PCM16ToFloat(raw, channels)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Channels: data, SampleRate: ParseRate(chunk.MIMEType, fallbackRate)}, nil
}

func framesDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
