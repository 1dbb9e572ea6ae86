package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const float32Size = 4

var (
	lookPath       = exec.LookPath
	commandContext = exec.CommandContext
)

var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"not authorized",
	"access denied",
}

// FFmpegInput captures the default microphone through an ffmpeg subprocess
// emitting mono float32 samples on stdout.
type FFmpegInput struct {
	// Format is the ffmpeg input format (pulse, alsa, avfoundation, dshow).
	// Empty selects the platform default.
	Format string
	// Device is the ffmpeg input device name. Empty selects the platform default.
	Device     string
	SampleRate int
	Logger     *zap.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Start implements InputDevice. The process is bound to ctx, and cancelling
// ctx while the first frame is awaited aborts the start.
func (in *FFmpegInput) Start(ctx context.Context, frameSize int, onFrame func([]float32)) error {
	if _, err := lookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg is required for microphone capture", ErrDeviceUnavailable)
	}

	args, err := in.args(runtime.GOOS)
	if err != nil {
		return err
	}

	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	in.mu.Lock()
	if in.cmd != nil {
		in.mu.Unlock()
		return errors.New("microphone is already open")
	}

	var stderr bytes.Buffer
	cmd := commandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		in.mu.Unlock()
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		in.mu.Unlock()
		return fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}
	in.cmd = cmd
	in.mu.Unlock()

	// A pending OS permission prompt keeps ffmpeg silent until it is answered.
	buf := make([]byte, frameSize*float32Size)
	first := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(stdout, buf)
		first <- err
	}()

	select {
	case err := <-first:
		if err != nil {
			_ = in.Stop()
			return classifyCaptureFailure(stderr.String(), err)
		}
	case <-ctx.Done():
		_ = in.Stop()
		return fmt.Errorf("%w: waiting for microphone: %w", ErrDeviceUnavailable, ctx.Err())
	}
	onFrame(DecodeFloat32LE(buf))

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if _, err := io.ReadFull(stdout, buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.ErrClosedPipe) {
					logger.Debug("microphone read stopped", zap.Error(err))
				}
				return
			}
			onFrame(DecodeFloat32LE(buf))
		}
	}()

	return nil
}

// Stop implements InputDevice.
func (in *FFmpegInput) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cmd == nil {
		return nil
	}
	if in.cmd.Process != nil {
		_ = in.cmd.Process.Kill()
		_ = in.cmd.Wait()
	}
	in.cmd = nil
	return nil
}

func (in *FFmpegInput) args(goos string) ([]string, error) {
	rate := in.SampleRate
	if rate <= 0 {
		rate = CaptureSampleRate
	}

	format, device := strings.TrimSpace(in.Format), strings.TrimSpace(in.Device)
	if format == "" {
		switch goos {
		case "darwin":
			format, device = "avfoundation", defaultString(device, ":0")
		case "linux":
			format, device = "pulse", defaultString(device, "default")
		default:
			return nil, fmt.Errorf("%w: microphone capture is not implemented for %s; set audio.input-format", ErrDeviceUnavailable, goos)
		}
	}
	if device == "" {
		device = "default"
	}

	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "f32le", "-",
	}, nil
}

func classifyCaptureFailure(stderr string, readErr error) error {
	msg := strings.ToLower(stderr)
	for _, marker := range permissionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr))
		}
	}
	if detail := strings.TrimSpace(stderr); detail != "" {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, readErr)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// FFplaySink streams PCM16 mono audio into an ffplay subprocess.
type FFplaySink struct {
	SampleRate int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplaySink starts ffplay for raw PCM16 playback.
func NewFFplaySink(sampleRate int) (*FFplaySink, error) {
	if _, err := lookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("%w: ffplay is required for playback", ErrDeviceUnavailable)
	}
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	s := &FFplaySink{SampleRate: sampleRate}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFplaySink) startLocked() error {
	s.cmd = exec.Command("ffplay",
		"-nodisp",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.SampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = io.Discard
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	s.stdin = stdin
	return nil
}

// Write implements io.Writer.
func (s *FFplaySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return 0, errors.New("ffplay is not running")
	}
	return s.stdin.Write(p)
}

// Reset restarts ffplay, dropping whatever it still had buffered.
func (s *FFplaySink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return s.startLocked()
}

// Close stops playback immediately.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

func (s *FFplaySink) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdin = nil
}
