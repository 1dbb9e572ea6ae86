package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/metrics"
)

// Scheduler plays response audio back-to-back. Chunks are scheduled in the
// order they are enqueued; each one starts exactly where the previous one
// ends, or now if the cursor has fallen behind the device clock.
type Scheduler struct {
	device   OutputDevice
	channels int
	rate     int
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu            sync.Mutex
	nextStartTime time.Duration
	nextID        uint64
	live          map[uint64]PlaybackHandle
}

// SchedulerConfig describes the format of incoming response audio.
type SchedulerConfig struct {
	Channels   int
	SampleRate int
}

// NewScheduler creates a scheduler on top of device.
func NewScheduler(device OutputDevice, cfg SchedulerConfig, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = PlaybackSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Scheduler{
		device:   device,
		channels: cfg.Channels,
		rate:     cfg.SampleRate,
		logger:   logger,
		metrics:  m,
		live:     make(map[uint64]PlaybackHandle),
	}
}

// Enqueue decodes chunk and schedules it after everything already queued.
// A corrupt chunk is dropped and the error returned; scheduler state is not
// touched in that case.
func (s *Scheduler) Enqueue(chunk EncodedChunk) (time.Duration, error) {
	buf, err := DecodeChunk(chunk, s.channels, s.rate)
	if err != nil {
		reason := "decode"
		if errors.Is(err, ErrMalformedAudio) {
			reason = "malformed"
		}
		s.metrics.ChunksDropped.WithLabelValues(reason).Inc()
		s.logger.Warn("dropping response audio chunk",
			zap.String("mime_type", chunk.MIMEType),
			zap.Int("encoded_length", len(chunk.Data)),
			zap.Error(err),
		)
		return 0, err
	}

	return s.Play(buf)
}

// Play schedules an already decoded buffer and returns its start time.
func (s *Scheduler) Play(buf Buffer) (time.Duration, error) {
	if buf.Frames() == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.nextStartTime, s.device.Now())

	s.nextID++
	id := s.nextID

	handle, err := s.device.Schedule(buf, start, func() { s.release(id) })
	if err != nil {
		s.metrics.ChunksDropped.WithLabelValues("device").Inc()
		return 0, fmt.Errorf("schedule playback: %w", err)
	}

	s.live[id] = handle
	s.nextStartTime = start + buf.Duration()
	s.metrics.ChunksScheduled.Inc()

	s.logger.Debug("scheduled response audio",
		zap.Duration("start", start),
		zap.Duration("duration", buf.Duration()),
		zap.Int("live_handles", len(s.live)),
	)

	return start, nil
}

// Interrupt stops every live handle, clears the set and resets the cursor.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := len(s.live)
	for id, handle := range s.live {
		handle.Stop()
		delete(s.live, id)
	}
	s.nextStartTime = 0
	s.mu.Unlock()

	if flusher, ok := s.device.(Flusher); ok {
		if err := flusher.Flush(); err != nil {
			s.logger.Warn("flushing output device failed", zap.Error(err))
		}
	}

	s.metrics.Interruptions.Inc()
	s.logger.Debug("playback interrupted", zap.Int("stopped_handles", stopped))
}

// Pending returns the number of scheduled or still sounding buffers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// NextStartTime returns the clock position where the next chunk would start
// if the device clock has not passed it.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
}
