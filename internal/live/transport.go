// Package live runs a real-time voice session against a remote conversational
// model: microphone frames go out, synthesized speech and transcripts come
// back, and completed turns are committed to the conversation history.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/hireguard/internal/audio"
)

var (
	// ErrConnection is returned when a session cannot be opened.
	ErrConnection = errors.New("live: connection failed")
	// ErrSessionClosed is returned by sends on a closed connection.
	ErrSessionClosed = errors.New("live: session closed")
)

// Modality is a response modality requested from the model.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config is the session configuration sent when a connection is opened.
type Config struct {
	Model      string
	Modalities []Modality
	Voice      string
	// SystemInstruction carries the interviewer persona and turn-taking rules.
	SystemInstruction string
	// OutputTranscription requests text transcripts of the model's speech.
	OutputTranscription bool
	// InputTranscription requests text transcripts of the candidate's speech.
	InputTranscription bool
}

// EventKind tags an inbound transport event.
type EventKind int

const (
	// EventAudioDelta carries one chunk of synthesized speech.
	EventAudioDelta EventKind = iota + 1
	// EventTranscriptDelta carries a slice of the model utterance transcript.
	EventTranscriptDelta
	// EventInputTranscriptDelta carries a slice of the candidate speech transcript.
	EventInputTranscriptDelta
	// EventTurnComplete marks the end of the model utterance.
	EventTurnComplete
	// EventInterrupted reports that the candidate pre-empted the model.
	EventInterrupted
	// EventClosed is the last event of a connection. Err is nil for a
	// caller-initiated close.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAudioDelta:
		return "audio-delta"
	case EventTranscriptDelta:
		return "transcript-delta"
	case EventInputTranscriptDelta:
		return "input-transcript-delta"
	case EventTurnComplete:
		return "turn-complete"
	case EventInterrupted:
		return "interrupted"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one inbound transport event.
type Event struct {
	Kind  EventKind
	Audio audio.EncodedChunk
	Text  string
	Err   error
}

// Conn is an open duplex connection. Events are delivered in arrival order on
// a single channel; EventClosed is always the final event and the channel is
// closed right after it.
type Conn interface {
	Events() <-chan Event
	// SendAudio pushes one microphone frame. It does not wait for an
	// acknowledgement and returns ErrSessionClosed after Close.
	SendAudio(chunk audio.EncodedChunk) error
	// SendText pushes a text turn.
	SendText(text string) error
	// Close is idempotent.
	Close() error
}

// Dialer opens connections to the conversational model.
type Dialer interface {
	Open(ctx context.Context, cfg Config) (Conn, error)
}
