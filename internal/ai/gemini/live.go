package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/hireguard/internal/audio"
	"github.com/spigell/hireguard/internal/live"
)

const (
	// LiveEndpoint is the Gemini Live bidirectional streaming endpoint.
	LiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultSetupTimeout      = 15 * time.Second
	defaultKeepaliveInterval = 20 * time.Second
	writeTimeout             = 10 * time.Second
	eventBuffer              = 128
)

// LiveDialer opens Gemini Live sessions over WebSocket.
type LiveDialer struct {
	APIKey            string
	Endpoint          string
	SetupTimeout      time.Duration
	KeepaliveInterval time.Duration
	Logger            *zap.Logger
}

var _ live.Dialer = (*LiveDialer)(nil)

// Open dials the endpoint, sends the session setup and waits until the server
// acknowledges it.
func (d *LiveDialer) Open(ctx context.Context, cfg live.Config) (live.Conn, error) {
	apiKey := strings.TrimSpace(d.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", live.ErrConnection)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: live model is required", live.ErrConnection)
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = LiveEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse endpoint: %v", live.ErrConnection, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial gemini live: %s", live.ErrConnection, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial gemini live: %v", live.ErrConnection, err)
	}

	c := &liveConn{
		ws:     ws,
		logger: logger,
		events: make(chan live.Event, eventBuffer),
	}

	setupTimeout := d.SetupTimeout
	if setupTimeout <= 0 {
		setupTimeout = defaultSetupTimeout
	}
	if err := c.setup(ctx, cfg, setupTimeout); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("%w: %w", live.ErrConnection, err)
	}

	keepalive := d.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = defaultKeepaliveInterval
	}
	c.run(keepalive)

	logger.Debug("gemini live session ready", zap.String("ai_model", cfg.Model))
	return c, nil
}

// Outgoing protocol messages.

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *inlineData `json:"audio,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// Incoming protocol messages.

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
	Error         *liveError       `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type liveError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *liveError) Error() string {
	return fmt.Sprintf("gemini live error %d %s: %s", e.Code, e.Status, e.Message)
}

func setupFor(cfg live.Config) setupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	modalities := make([]string, 0, len(cfg.Modalities))
	for _, m := range cfg.Modalities {
		modalities = append(modalities, string(m))
	}
	if len(modalities) == 0 {
		modalities = []string{string(live.ModalityAudio)}
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model:            model,
			GenerationConfig: generationConfig{ResponseModalities: modalities},
		},
	}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &systemInstruction{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	if cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	return msg
}

type liveConn struct {
	ws     *websocket.Conn
	logger *zap.Logger
	events chan live.Event
	// textTurns is set when the model answers in text instead of speech.
	textTurns bool

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func (c *liveConn) setup(ctx context.Context, cfg live.Config, timeout time.Duration) error {
	for _, m := range cfg.Modalities {
		if m == live.ModalityText {
			c.textTurns = true
		}
	}

	if err := c.writeJSON(setupFor(cfg)); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("wait for setup: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring unparsable live message", zap.Error(err))
			continue
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.SetupComplete != nil {
			break
		}
	}

	return c.ws.SetReadDeadline(time.Time{})
}

// run starts the read, keepalive and closer loops. When all of them stop the
// final EventClosed is emitted and the events channel is closed.
func (c *liveConn) run(keepalive time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.keepaliveLoop(gctx, keepalive) })
	g.Go(func() error {
		<-gctx.Done()
		return c.ws.Close()
	})

	go func() {
		err := g.Wait()
		if c.isClosed() {
			err = nil
		} else if err == nil {
			err = errors.New("gemini live connection ended")
		}

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		cancel()

		c.events <- live.Event{Kind: live.EventClosed, Err: err}
		close(c.events)
	}()
}

func (c *liveConn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			return fmt.Errorf("read live message: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring unparsable live message", zap.Error(err))
			continue
		}

		if msg.Error != nil {
			return msg.Error
		}
		if msg.GoAway != nil {
			c.logger.Warn("gemini live server is going away", zap.String("time_left", msg.GoAway.TimeLeft))
		}
		if msg.ServerContent == nil {
			continue
		}

		for _, ev := range c.translate(msg.ServerContent) {
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// translate maps one server message onto transport events in the order the
// candidate and the model produced them.
func (c *liveConn) translate(sc *serverContent) []live.Event {
	var events []live.Event

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, live.Event{Kind: live.EventInputTranscriptDelta, Text: sc.InputTranscription.Text})
	}
	if sc.Interrupted {
		events = append(events, live.Event{Kind: live.EventInterrupted})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/"):
				events = append(events, live.Event{
					Kind:  live.EventAudioDelta,
					Audio: audio.EncodedChunk{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType},
				})
			case c.textTurns && p.Text != "" && !p.Thought:
				events = append(events, live.Event{Kind: live.EventTranscriptDelta, Text: p.Text})
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, live.Event{Kind: live.EventTranscriptDelta, Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, live.Event{Kind: live.EventTurnComplete})
	}

	return events
}

func (c *liveConn) keepaliveLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				if c.isClosed() {
					return nil
				}
				return fmt.Errorf("live keepalive: %w", err)
			}
		}
	}
}

func (c *liveConn) Events() <-chan live.Event {
	return c.events
}

func (c *liveConn) SendAudio(chunk audio.EncodedChunk) error {
	return c.send(realtimeInputMessage{RealtimeInput: realtimeInput{
		Audio: &inlineData{MIMEType: chunk.MIMEType, Data: chunk.Data},
	}})
}

func (c *liveConn) SendText(text string) error {
	return c.send(realtimeInputMessage{RealtimeInput: realtimeInput{Text: text}})
}

func (c *liveConn) send(msg any) error {
	if c.isClosed() {
		return live.ErrSessionClosed
	}
	return c.writeJSON(msg)
}

func (c *liveConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal live message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close ends the session. Calling it more than once is a no-op.
func (c *liveConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *liveConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
