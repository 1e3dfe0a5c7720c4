package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sentirlabs/sentir/internal/bridge"
	"github.com/sentirlabs/sentir/internal/companion"
	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/internal/observe"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/live"
)

// Client → server message types.
const (
	clientStart = "start" // begin the session
	clientAudio = "audio" // one capture frame, base64 float32le at 16 kHz
	clientEnded = "ended" // playback of unit ID finished on the client
	clientStop  = "stop"  // end the session
)

// Server → client message types.
const (
	serverState      = "state"      // lifecycle change
	serverAudio      = "audio"      // one playback unit, base64 s16le at 24 kHz
	serverStop       = "stop"       // flush unit ID immediately
	serverTranscript = "transcript" // incremental transcription fragment
	serverError      = "error"      // human-readable failure
)

type clientMsg struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
	ID    string `json:"id,omitempty"`
}

type serverMsg struct {
	Type    string  `json:"type"`
	State   string  `json:"state,omitempty"`
	ID      string  `json:"id,omitempty"`
	Audio   string  `json:"audio,omitempty"`
	Rate    int     `json:"sampleRate,omitempty"`
	StartAt float64 `json:"startAt,omitempty"` // seconds on the output clock
	Role    string  `json:"role,omitempty"`
	Text    string  `json:"text,omitempty"`
	Error   string  `json:"error,omitempty"`
}

const wsWriteTimeout = 5 * time.Second

// wsWriter serialises outbound messages. The playback sink, the transcript
// callback, and the handler itself all write through it concurrently.
type wsWriter struct {
	ctx  context.Context
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsWriter) send(msg serverMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: marshal message: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, cancel := context.WithTimeout(w.ctx, wsWriteTimeout)
	defer cancel()
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// wallClock is the session's output audio clock: monotonic seconds since the
// session started, never rewound.
type wallClock struct {
	start time.Time
}

func newWallClock() *wallClock { return &wallClock{start: time.Now()} }

func (c *wallClock) Now() time.Duration { return time.Since(c.start) }

// wsSource adapts browser capture messages to a bridge.Source. The read loop
// pushes decoded frames; the bridge consumes them from the channel.
type wsSource struct {
	mu     sync.Mutex
	frames chan []float32
	closed bool
}

func newWSSource() *wsSource {
	return &wsSource{frames: make(chan []float32, 16)}
}

func (s *wsSource) Start(context.Context) (<-chan []float32, error) {
	return s.frames, nil
}

// push hands a frame to the bridge. Frames are dropped when the bridge falls
// behind; capture must never back-pressure the websocket read loop.
func (s *wsSource) push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- samples:
		return true
	default:
		return false
	}
}

func (s *wsSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// wsSink renders scheduled playback units as websocket messages. The browser
// owns the actual audio output; the sink just tells it what to play when.
type wsSink struct {
	out     *wsWriter
	metrics *observe.Metrics
}

func (s *wsSink) Play(u bridge.Unit) error {
	err := s.out.send(serverMsg{
		Type:    serverAudio,
		ID:      u.ID,
		Audio:   audio.EncodeBase64(u.Frame.Data),
		Rate:    u.Frame.SampleRate,
		StartAt: u.Start.Seconds(),
	})
	if err == nil && s.metrics != nil {
		s.metrics.PlaybackUnits.Add(s.out.ctx, 1)
	}
	return err
}

func (s *wsSink) Stop(id string) error {
	return s.out.send(serverMsg{Type: serverStop, ID: id})
}

func (s *wsSink) Close() error { return nil }

// decodeCapture decodes a base64 little-endian float32 capture payload.
func decodeCapture(payload string) ([]float32, error) {
	raw, err := audio.DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("gateway: capture payload is %d bytes, not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := uint32(raw[4*i]) | uint32(raw[4*i+1])<<8 | uint32(raw[4*i+2])<<16 | uint32(raw[4*i+3])<<24
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Live == nil {
		writeError(w, http.StatusNotImplemented, "live sessions are not configured")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	s.serveLive(r.Context(), conn)
}

func (s *Server) serveLive(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusInternalError, "session ended")

	out := &wsWriter{ctx: ctx, conn: conn}

	// Nothing happens until the client asks for a session.
	for {
		msg, err := readClientMsg(ctx, conn)
		if err != nil {
			return
		}
		if msg.Type == clientStart {
			break
		}
	}

	voice := companion.ProviderVoice(journal.DefaultSettings().Voice)
	if settings, err := s.cfg.Store.LoadSettings(ctx); err == nil {
		voice = companion.ProviderVoice(settings.Voice)
	} else {
		s.log.Warn("load settings for live session failed", "error", err)
	}

	src := newWSSource()
	ctrl, err := bridge.New(bridge.Config{
		Live:         s.cfg.Live,
		Source:       src,
		Clock:        newWallClock(),
		Sink:         &wsSink{out: out, metrics: s.metrics},
		Instructions: s.cfg.Instructions,
		Voice:        voice,
		QueueLimit:   s.cfg.LiveQueueLimit,
		OnTranscript: func(t live.Transcript) {
			if err := out.send(serverMsg{Type: serverTranscript, Role: t.Role, Text: t.Text}); err != nil {
				s.log.Debug("transcript send failed", "error", err)
			}
		},
		OnInterrupt: func(int) {
			s.metrics.Interruptions.Add(ctx, 1)
		},
		Logger: s.log,
	})
	if err != nil {
		s.log.Error("live session setup failed", "error", err)
		_ = out.send(serverMsg{Type: serverError, Error: "could not set up live session"})
		return
	}

	_ = out.send(serverMsg{Type: serverState, State: bridge.StateOpening.String()})

	if err := ctrl.Start(ctx); err != nil {
		msg := "could not open live session"
		if errors.Is(err, bridge.ErrPermissionDenied) {
			msg = "audio input permission denied"
		}
		s.metrics.RecordProviderError(ctx, "live", "connect")
		s.log.Error("live session start failed", "error", err)
		_ = out.send(serverMsg{Type: serverError, Error: msg})
		_ = out.send(serverMsg{Type: serverState, State: bridge.StateIdle.String()})
		return
	}

	sessionStart := time.Now()
	s.metrics.ActiveLiveSessions.Add(ctx, 1)
	defer func() {
		s.metrics.ActiveLiveSessions.Add(ctx, -1)
		s.metrics.LiveSessionDuration.Record(ctx, time.Since(sessionStart).Seconds())
	}()

	_ = out.send(serverMsg{Type: serverState, State: bridge.StateActive.String()})
	s.log.Info("live session active", "voice", voice)

	// Report session end exactly once, whichever side initiates it. Closing
	// the connection also unblocks the read loop below.
	endDone := make(chan struct{})
	go func() {
		defer close(endDone)
		<-ctrl.Done()
		if err := ctrl.Err(); err != nil {
			s.metrics.RecordProviderError(ctx, "live", "session")
			s.log.Warn("live session ended with error", "error", err)
			_ = out.send(serverMsg{Type: serverError, Error: "live session lost"})
		}
		_ = out.send(serverMsg{Type: serverState, State: bridge.StateIdle.String()})
		conn.Close(websocket.StatusNormalClosure, "session ended")
	}()

	for {
		msg, err := readClientMsg(ctx, conn)
		if err != nil {
			break
		}
		switch msg.Type {
		case clientAudio:
			samples, err := decodeCapture(msg.Audio)
			if err != nil {
				s.log.Warn("bad capture frame", "error", err)
				continue
			}
			if src.push(samples) {
				s.metrics.CaptureFrames.Add(ctx, 1)
			}
		case clientEnded:
			ctrl.Scheduler().Completed(msg.ID)
		case clientStop:
			ctrl.Stop()
		}
	}

	ctrl.Stop()
	<-endDone
}

func readClientMsg(ctx context.Context, conn *websocket.Conn) (clientMsg, error) {
	var msg clientMsg
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("gateway: unmarshal client message: %w", err)
	}
	return msg, nil
}
