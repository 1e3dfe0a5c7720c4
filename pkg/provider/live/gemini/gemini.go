// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It opens a bidirectional WebSocket to the BidiGenerateContent endpoint and
// exchanges JSON messages: capture audio travels upstream as base64 PCM media
// chunks tagged audio/pcm;rate=16000, and the server streams back synthesised
// 24 kHz audio, output/input transcriptions, and an interruption flag when
// the user starts speaking over the model.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/live"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// eventChanBuf is the buffer depth of the inbound event stream. Audio
	// chunks arrive faster than realtime during synthesis bursts.
	eventChanBuf = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini Live model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements live.Provider for the Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new live session. The returned session accepts audio
// immediately after the setup message is written.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, &live.ChannelError{Err: fmt.Errorf("gemini: dial: %w", err)}
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan live.Event, eventChanBuf),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, &live.ChannelError{Err: fmt.Errorf("gemini: setup: %w", err)}
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	OutputTranscript  *struct{}          `json:"outputAudioTranscription,omitempty"`
	InputTranscript   *struct{}          `json:"inputAudioTranscription,omitempty"`
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
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
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

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan live.Event

	mu     sync.Mutex
	errVal error
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup writes the initial BidiGenerateContent setup message: audio-only
// response modality, both transcription directions enabled, and the fixed
// system prompt.
func (s *session) sendSetup(model string, cfg live.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
			OutputTranscript: &struct{}{},
			InputTranscript:  &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads channel messages and converts them into typed events.
// It owns the events channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// A cancelled session context means Close was called; exit cleanly.
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		s.dispatch(&msg)
	}
}

func (s *session) dispatch(msg *serverMessage) {
	if msg.Error != nil {
		text := msg.Error.Message
		if text == "" {
			text = "unknown error"
		}
		s.emit(live.Event{Kind: live.KindError, Err: fmt.Errorf("gemini: %s", text)})
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	// Interruption first: any audio in the same message belongs to the
	// cancelled response and must not be scheduled.
	if sc.Interrupted {
		s.emit(live.Event{Kind: live.KindInterrupted})
		return
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil {
				continue
			}
			frame, err := audio.DecodeFrame(p.InlineData.Data, audio.PlaybackRate)
			if err != nil || frame.Samples() == 0 {
				continue // drop malformed or empty frames, keep the session
			}
			s.emit(live.Event{Kind: live.KindAudio, PCM: frame.Data})
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		s.emit(live.Event{Kind: live.KindTranscript, Transcript: live.Transcript{
			Role: "user",
			Text: sc.InputTranscription.Text,
		}})
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		s.emit(live.Event{Kind: live.KindTranscript, Transcript: live.Transcript{
			Role: "model",
			Text: sc.OutputTranscription.Text,
		}})
	}
}

// emit delivers ev to the event stream unless the session is shutting down.
func (s *session) emit(ev live.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// keepaliveLoop pings the WebSocket to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = &live.ChannelError{Err: err}
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// ── live.Session methods ──────────────────────────────────────────────────────

// SendAudio delivers one 16 kHz s16le mono capture frame to the model as a
// base64 media chunk.
func (s *session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: audio.CaptureMIME, Data: audio.EncodeBase64(pcm)},
			},
		},
	}
	return s.writeJSON(msg)
}

// Events returns the inbound event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Err returns the error that terminated the session, or nil after a clean close.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases the WebSocket. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
