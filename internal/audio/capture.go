package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/metrics"
)

// Capture streams microphone frames to a sink for the lifetime of a session.
type Capture struct {
	device     InputDevice
	frameSize  int
	sampleRate int
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	running  bool
	sink     FrameSink
	captured time.Duration
}

// CaptureConfig describes the outbound frame format.
type CaptureConfig struct {
	FrameSize  int
	SampleRate int
}

// NewCapture creates a capture pipeline reading from device.
func NewCapture(device InputDevice, cfg CaptureConfig, logger *zap.Logger, m *metrics.Metrics) *Capture {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = CaptureSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Capture{
		device:     device,
		frameSize:  cfg.FrameSize,
		sampleRate: cfg.SampleRate,
		logger:     logger,
		metrics:    m,
	}
}

// Start opens the microphone and forwards every frame to sink. A refused
// microphone is reported as ErrPermissionDenied and nothing keeps running.
func (c *Capture) Start(ctx context.Context, sink FrameSink) error {
	if sink == nil {
		return errors.New("capture sink is required")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("capture is already running")
	}
	c.sink = sink
	c.running = true
	c.captured = 0
	c.mu.Unlock()

	if err := c.device.Start(ctx, c.frameSize, c.forward); err != nil {
		c.mu.Lock()
		c.running = false
		c.sink = nil
		c.mu.Unlock()
		return fmt.Errorf("start microphone: %w", err)
	}

	c.logger.Debug("microphone capture started",
		zap.Int("frame_size", c.frameSize),
		zap.Int("sample_rate", c.sampleRate),
	)
	return nil
}

// Stop releases the microphone. Frames delivered after Stop are discarded.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.sink = nil
	captured := c.captured
	c.mu.Unlock()

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("stop microphone: %w", err)
	}

	c.logger.Debug("microphone capture stopped", zap.Duration("captured", captured))
	return nil
}

// Running reports whether the microphone is open.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capture) forward(samples []float32) {
	frame := Frame{
		Samples:    FloatToInt16(samples),
		SampleRate: c.sampleRate,
		Channels:   1,
	}

	c.mu.Lock()
	sink := c.sink
	if sink != nil {
		c.captured += frame.Duration()
	}
	c.mu.Unlock()

	if sink == nil {
		return
	}

	if err := sink.SendAudio(EncodeFrame(frame)); err != nil {
		c.metrics.FramesDropped.Inc()
		c.logger.Debug("sending microphone frame failed", zap.Error(err))
		return
	}
	c.metrics.FramesSent.Inc()
}

// Captured returns how much audio was forwarded since the last Start.
func (c *Capture) Captured() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured
}
