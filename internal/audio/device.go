package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned when the operating system refuses
	// microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceUnavailable is returned when an audio device cannot be opened
	// for any other reason.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
)

// OutputDevice plays buffers against its own monotonic clock.
type OutputDevice interface {
	// Now returns the current position of the output clock.
	Now() time.Duration
	// Schedule arranges for buf to start playing at the given clock position.
	// onEnded is invoked once, from another goroutine and never before
	// Schedule returns, when playback finishes naturally. It is not invoked
	// for handles stopped with Stop.
	Schedule(buf Buffer, at time.Duration, onEnded func()) (PlaybackHandle, error)
}

// PlaybackHandle controls one scheduled buffer.
type PlaybackHandle interface {
	// Stop silences the buffer immediately. Stopping twice is a no-op.
	Stop()
}

// Flusher is implemented by output devices that keep their own internal
// buffer which must be discarded after an interruption.
type Flusher interface {
	Flush() error
}

// InputDevice delivers microphone audio in fixed-size frames.
type InputDevice interface {
	// Start opens the device. It returns only after the first frame was read
	// or the device failed, so permission problems surface synchronously.
	// onFrame is called serially with exactly frameSize mono samples.
	Start(ctx context.Context, frameSize int, onFrame func(samples []float32)) error
	// Stop releases the device. It is safe to call Stop multiple times.
	Stop() error
}

// FrameSink accepts encoded capture frames; a live connection implements it.
type FrameSink interface {
	SendAudio(chunk EncodedChunk) error
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock is the time source used by output devices.
type Clock interface {
	Now() time.Duration
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a clock that starts at zero now.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
