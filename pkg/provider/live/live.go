// Package live defines the Provider interface for realtime voice channels.
//
// A live provider wraps a bidirectional audio service: the client streams
// 16 kHz s16le capture frames upstream and receives 24 kHz synthesised audio
// downstream, together with text transcription events and an explicit
// interruption event when the user barges in.
//
// Inbound traffic is delivered as a single stream of typed variant events
// consumed by one loop, rather than per-kind callbacks. The stream ends when
// the channel closes; callers then check [Session.Err] to distinguish a clean
// close from a failure.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"fmt"
)

// EventKind discriminates the variants of an inbound channel [Event].
type EventKind int

const (
	// KindAudio carries a synthesised PCM chunk (24 kHz s16le mono).
	KindAudio EventKind = iota

	// KindTranscript carries a text transcription of user speech or of the
	// model's spoken output.
	KindTranscript

	// KindInterrupted signals that the current response was cancelled;
	// all buffered and in-flight playback must be discarded immediately.
	KindInterrupted

	// KindError carries a non-fatal error reported by the channel.
	KindError
)

// Transcript is a text transcription event from the channel.
type Transcript struct {
	// Role is "user" for recognised user speech and "model" for the text
	// form of the model's spoken output.
	Role string

	// Text is the transcribed fragment. Fragments arrive incrementally and
	// concatenate into the full utterance.
	Text string
}

// Event is one inbound channel message.
type Event struct {
	Kind       EventKind
	PCM        []byte     // set when Kind == KindAudio
	Transcript Transcript // set when Kind == KindTranscript
	Err        error      // set when Kind == KindError
}

// SessionConfig is the initial configuration for a new live session, sent
// once at channel-open time.
type SessionConfig struct {
	// Instructions is the fixed system prompt establishing persona and
	// behaviour for the whole session.
	Instructions string

	// Voice is the provider voice name used for synthesised speech.
	Voice string
}

// Session is an open realtime channel. Callers must call Close when the
// session is no longer needed; Close is idempotent.
type Session interface {
	// SendAudio delivers one capture frame (16 kHz s16le mono PCM) to the
	// model. Returns an error if the session is closed or the transport
	// rejects the write.
	SendAudio(pcm []byte) error

	// Events returns the inbound event stream. The channel is closed when
	// the session ends; consumers must drain it promptly so the receive
	// loop is never stalled.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil after a
	// clean close. Valid once Events is closed.
	Err() error

	// Close terminates the session and releases the underlying channel.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// ChannelError wraps a realtime channel failure, including credential
// problems surfaced by the provider. The controller does not retry; recovery
// is a caller decision.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("live channel: %v", e.Err) }

func (e *ChannelError) Unwrap() error { return e.Err }
