package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/audio"
	"github.com/spigell/hireguard/internal/logger"
	"github.com/spigell/hireguard/internal/metrics"
)

// Capturer streams microphone frames to a sink. *audio.Capture implements it.
type Capturer interface {
	Start(ctx context.Context, sink audio.FrameSink) error
	Stop() error
}

// Player schedules response audio. *audio.Scheduler implements it.
type Player interface {
	Enqueue(chunk audio.EncodedChunk) (time.Duration, error)
	Interrupt()
}

// Observer is notified from the dispatch goroutine about transcript progress.
type Observer interface {
	LiveText(role ai.Role, text string)
	TurnCommitted(msg ai.Message)
}

type nopObserver struct{}

func (nopObserver) LiveText(ai.Role, string)   {}
func (nopObserver) TurnCommitted(ai.Message) {}

// Options configures a Session.
type Options struct {
	Dialer   Dialer
	Config   Config
	Capture  Capturer
	Playback Player
	History  *History
	// OpeningPrompt is sent as a text turn once the microphone is live.
	OpeningPrompt string
	Observer      Observer
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Session owns one live connection for its whole lifetime. It is single use:
// once closed, a new Session must be created to talk to the model again.
type Session struct {
	id       string
	dialer   Dialer
	cfg      Config
	capture  Capturer
	playback Player
	history  *History
	opening  string
	observer Observer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	interviewer *Reconciler
	candidate   *Reconciler

	mu      sync.Mutex
	started bool
	closing bool
	active  bool
	conn    Conn
	cancel  context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}

	// modelTurnOpen is only touched by the dispatch goroutine. It is set by
	// the first model transcript of a turn and cleared on turn-complete or
	// interruption.
	modelTurnOpen bool
}

// NewSession validates opts and creates an idle session.
func NewSession(opts Options) (*Session, error) {
	if opts.Dialer == nil {
		return nil, errors.New("live dialer is required")
	}
	if opts.Capture == nil {
		return nil, errors.New("audio capture is required")
	}
	if opts.Playback == nil {
		return nil, errors.New("audio playback is required")
	}
	if opts.History == nil {
		opts.History = NewHistory()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()

	return &Session{
		id:          id,
		dialer:      opts.Dialer,
		cfg:         opts.Config,
		capture:     opts.Capture,
		playback:    opts.Playback,
		history:     opts.History,
		opening:     opts.OpeningPrompt,
		observer:    opts.Observer,
		logger:      logger.WithSession(opts.Logger, id, opts.Config.Model, opts.Config.Voice),
		metrics:     opts.Metrics,
		now:         opts.Now,
		interviewer: NewReconciler(ai.RoleInterviewer, opts.History),
		candidate:   NewReconciler(ai.RoleCandidate, opts.History),
		done:        make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

// History returns the history turns are committed to.
func (s *Session) History() *History { return s.history }

// Active reports whether the connection is open and the microphone is live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Done is closed once the session has been torn down and every received
// event has been dispatched.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LiveTranscript returns the uncommitted text of both speakers.
func (s *Session) LiveTranscript() (interviewer, candidate string) {
	return s.interviewer.Live(), s.candidate.Live()
}

// Start opens the connection and the microphone. Either failing aborts the
// start: the connection is not left open without a microphone.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("live session was already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("opening live session")

	conn, err := s.dialer.Open(ctx, s.cfg)
	if err != nil {
		s.metrics.SessionsFailed.WithLabelValues("connection").Inc()
		close(s.done)
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return err
	}

	// The microphone outlives ctx, but waiting for it to open does not.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopWaiting := context.AfterFunc(ctx, cancel)

	err = s.capture.Start(runCtx, conn)
	stopWaiting()
	if err == nil && runCtx.Err() != nil {
		_ = s.capture.Stop()
		err = fmt.Errorf("start microphone: %w", context.Cause(ctx))
	}
	if err != nil {
		cancel()
		_ = conn.Close()
		reason := "microphone"
		if errors.Is(err, audio.ErrPermissionDenied) {
			reason = "permission_denied"
		}
		s.metrics.SessionsFailed.WithLabelValues(reason).Inc()
		go drain(conn, s.done)
		return err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = s.capture.Stop()
		cancel()
		_ = conn.Close()
		go drain(conn, s.done)
		s.logger.Info("live session closed before it started")
		return ErrSessionClosed
	}
	s.conn = conn
	s.cancel = cancel
	s.active = true
	s.mu.Unlock()

	s.metrics.SessionsOpened.Inc()
	s.metrics.SessionsActive.Inc()
	s.logger.Info("live session started")

	go s.dispatch(conn)

	if s.opening != "" {
		if err := conn.SendText(s.opening); err != nil {
			s.logger.Warn("sending opening prompt failed", zap.Error(err))
		}
	}

	return nil
}

// Close stops the microphone and the connection. Audio that is already
// scheduled keeps playing. Closing a session that never started, or one
// already closed, does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	// A Start still in progress sees closing and aborts.
	if conn == nil {
		return nil
	}

	s.teardown(nil)
	return nil
}

func (s *Session) teardown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn, cancel := s.conn, s.cancel
		s.active = false
		s.mu.Unlock()

		if err := s.capture.Stop(); err != nil {
			s.logger.Warn("stopping microphone failed", zap.Error(err))
		}
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.logger.Debug("closing live connection failed", zap.Error(err))
			}
		}

		s.metrics.SessionsActive.Dec()

		if cause != nil {
			s.logger.Warn("live session closed by remote", zap.Error(cause))
			return
		}
		s.logger.Info("live session closed")
	})
}

func (s *Session) dispatch(conn Conn) {
	defer close(s.done)

	for ev := range conn.Events() {
		s.handle(ev)
	}

	// The channel may end without an explicit close event.
	s.teardown(nil)
	s.commit(s.candidate)
}

func (s *Session) handle(ev Event) {
	switch ev.Kind {
	case EventAudioDelta:
		if _, err := s.playback.Enqueue(ev.Audio); err != nil {
			s.logger.Debug("response audio chunk skipped", zap.Error(err))
		}
	case EventTranscriptDelta:
		s.openModelTurn()
		s.observer.LiveText(ai.RoleInterviewer, s.interviewer.Append(ev.Text))
	case EventInputTranscriptDelta:
		s.observer.LiveText(ai.RoleCandidate, s.candidate.Append(ev.Text))
	case EventTurnComplete:
		s.commit(s.interviewer)
		s.modelTurnOpen = false
	case EventInterrupted:
		s.handleInterrupted()
	case EventClosed:
		s.teardown(ev.Err)
	default:
		s.logger.Debug("ignoring unknown live event", zap.Stringer("kind", ev.Kind))
	}
}

// handleInterrupted flushes all in-flight playback. The interviewer text keeps
// accumulating, including transcription that lags behind the audio, and is
// committed on the next turn-complete.
func (s *Session) handleInterrupted() {
	s.playback.Interrupt()
	s.modelTurnOpen = false
	s.logger.Debug("model utterance interrupted",
		zap.Int("pending_transcript_length", len(s.interviewer.Live())),
	)
}

// openModelTurn closes the candidate's turn on the first model transcript
// after a turn-complete or an interruption. Audio alone is not a boundary:
// input transcription arrives later than the model's audio.
func (s *Session) openModelTurn() {
	if s.modelTurnOpen {
		return
	}
	s.modelTurnOpen = true
	s.commit(s.candidate)
}

func (s *Session) commit(r *Reconciler) {
	msg, ok := r.Commit(s.now())
	if !ok {
		return
	}
	s.metrics.TurnsCommitted.WithLabelValues(string(msg.Role)).Inc()
	s.logger.Debug("turn committed",
		zap.String("role", string(msg.Role)),
		zap.Int("content_length", len(msg.Content)),
	)
	s.observer.TurnCommitted(msg)
}

// drain consumes the events of a connection that was closed before dispatch
// started so the transport can finish.
func drain(conn Conn, done chan struct{}) {
	defer close(done)
	for range conn.Events() {
	}
}
