package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resetter is implemented by sinks that can drop audio they already buffered.
type Resetter interface {
	Reset() error
}

// StreamOutput is an OutputDevice that writes PCM16 to a streaming sink when
// each buffer's start time arrives on its clock.
type StreamOutput struct {
	clock  Clock
	logger *zap.Logger

	mu   sync.Mutex
	sink io.Writer
}

// NewStreamOutput creates an output device writing to sink.
func NewStreamOutput(sink io.Writer, clock Clock, logger *zap.Logger) *StreamOutput {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamOutput{clock: clock, sink: sink, logger: logger}
}

// Now returns the device clock position.
func (o *StreamOutput) Now() time.Duration {
	return o.clock.Now()
}

// Schedule implements OutputDevice.
func (o *StreamOutput) Schedule(buf Buffer, at time.Duration, onEnded func()) (PlaybackHandle, error) {
	if o.sink == nil {
		return nil, errors.New("output sink is not configured")
	}

	delay := at - o.clock.Now()
	if delay < 0 {
		delay = 0
	}

	pcm := FloatToPCM16(Interleave(buf.Channels))
	h := &streamHandle{}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.start = o.clock.AfterFunc(delay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stopped {
			return
		}

		if err := o.write(pcm); err != nil {
			o.logger.Warn("writing response audio failed", zap.Error(err))
		}

		h.end = o.clock.AfterFunc(buf.Duration(), func() {
			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			h.stopped = true
			h.mu.Unlock()

			if onEnded != nil {
				onEnded()
			}
		})
	})

	return h, nil
}

// Flush discards audio already handed to the sink when the sink supports it.
func (o *StreamOutput) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if resetter, ok := o.sink.(Resetter); ok {
		if err := resetter.Reset(); err != nil {
			return fmt.Errorf("reset output sink: %w", err)
		}
	}
	return nil
}

func (o *StreamOutput) write(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.sink.Write(pcm)
	return err
}

type streamHandle struct {
	mu      sync.Mutex
	stopped bool
	start   Timer
	end     Timer
}

func (h *streamHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.start != nil {
		h.start.Stop()
	}
	if h.end != nil {
		h.end.Stop()
	}
}
