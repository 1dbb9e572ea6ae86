package audio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order. Callbacks run
// without the clock lock held so they may schedule further timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at == c.timers[j].at {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at < c.timers[j].at
		})
		var next *fakeTimer
		for i, t := range c.timers {
			if t.stopped {
				continue
			}
			if t.at <= target {
				next = t
				c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
			}
			break
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type scheduledCall struct {
	at       time.Duration
	duration time.Duration
	handle   *fakeHandle
	onEnded  func()
}

type fakeHandle struct {
	mu      sync.Mutex
	stopped int
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
}

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	calls   []scheduledCall
	flushes int
	err     error
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

func (o *fakeOutput) Schedule(buf Buffer, at time.Duration, onEnded func()) (PlaybackHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	h := &fakeHandle{}
	o.calls = append(o.calls, scheduledCall{at: at, duration: buf.Duration(), handle: h, onEnded: onEnded})
	return h, nil
}

func (o *fakeOutput) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
	return nil
}

func (o *fakeOutput) scheduled() []scheduledCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduledCall(nil), o.calls...)
}

type fakeInput struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
	onFrame  func([]float32)
	size     int
}

func (in *fakeInput) Start(_ context.Context, frameSize int, onFrame func([]float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.startErr != nil {
		return in.startErr
	}
	in.started++
	in.size = frameSize
	in.onFrame = onFrame
	return nil
}

func (in *fakeInput) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stopped++
	return nil
}

func (in *fakeInput) emit(samples []float32) {
	in.mu.Lock()
	f := in.onFrame
	in.mu.Unlock()
	if f != nil {
		f(samples)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []EncodedChunk
	err    error
}

func (s *recordingSink) SendAudio(chunk EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) sent() []EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EncodedChunk(nil), s.chunks...)
}

var errSinkClosed = errors.New("sink closed")

// pcmChunk returns an encoded mono chunk of n silent samples at rate.
func pcmChunk(n, rate int) EncodedChunk {
	return EncodedChunk{Data: EncodeToTransport(make([]byte, n*2)), MIMEType: PCMMIMEType(rate)}
}
