package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/live"
)

// State is the lifecycle state of one bridge session. It is owned exclusively
// by the Controller; callers observe it through [Controller.State].
type State int

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateClosing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config bundles the collaborators of one bridge session.
type Config struct {
	// Live opens the realtime channel to the model.
	Live live.Provider

	// Source produces microphone frames.
	Source Source

	// Clock and Sink form the output device: units scheduled on Clock's
	// domain are rendered through Sink.
	Clock Clock
	Sink  Sink

	// Instructions is the fixed system prompt sent at channel-open time.
	Instructions string

	// Voice is the provider voice name for synthesised speech.
	Voice string

	// QueueLimit bounds the pre-Active capture queue. Zero means
	// DefaultQueueLimit.
	QueueLimit int

	// OnTranscript, when set, receives transcription events as they arrive.
	OnTranscript func(live.Transcript)

	// OnInterrupt, when set, is called after each model-side interruption
	// with the number of playback units that were stopped.
	OnInterrupt func(stopped int)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c Config) validate() error {
	switch {
	case c.Live == nil:
		return fmt.Errorf("bridge: config: Live must not be nil")
	case c.Source == nil:
		return fmt.Errorf("bridge: config: Source must not be nil")
	case c.Clock == nil:
		return fmt.Errorf("bridge: config: Clock must not be nil")
	case c.Sink == nil:
		return fmt.Errorf("bridge: config: Sink must not be nil")
	}
	return nil
}

// Controller owns the lifecycle of one live voice session: it opens the
// channel, wires capture to the send path and inbound events to the playback
// scheduler, and tears everything down when the session ends for any reason.
//
// The state machine is Idle → Opening → Active → Closing → Idle. Start is
// only valid from Idle; Stop is valid from any state and idempotent.
type Controller struct {
	cfg   Config
	log   *slog.Logger
	sched *Scheduler
	cap   *capture

	mu      sync.Mutex
	state   State
	session live.Session
	cancel  context.CancelFunc
	err     error

	wg      sync.WaitGroup
	done    chan struct{}
	release sync.Once
}

// New creates a Controller in the Idle state. A Controller drives exactly
// one session: once it has ended (Done is closed and Source/Sink are
// released), the controller cannot be started again — create a new one per
// session.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		cfg:   cfg,
		log:   log,
		sched: NewScheduler(cfg.Clock, cfg.Sink),
		done:  make(chan struct{}),
	}
	c.cap = newCapture(cfg.QueueLimit, c.sendFrame)
	return c, nil
}

// Scheduler exposes the playback scheduler so the output side can report
// natural unit completion.
func (c *Controller) Scheduler() *Scheduler { return c.sched }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the session has fully ended and all resources are
// released.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Err returns the error that terminated the session, or nil after a clean
// stop. Valid once Done is closed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start opens the capture source and the live channel, then begins streaming.
// It returns ErrPermissionDenied when the source cannot be opened, and a
// *live.ChannelError when the channel cannot be established; in both cases
// the controller is back in Idle and the output sink has been released.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return fmt.Errorf("bridge: start: controller already used, create a new one")
	default:
	}
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("bridge: start: session is %s", state)
	}
	c.state = StateOpening
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	frames, err := c.cfg.Source.Start(sessCtx)
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrPermissionDenied, err))
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	// Capture runs from here on; frames land in the bounded queue until the
	// channel is Active.
	c.wg.Add(1)
	go c.captureLoop(sessCtx, frames)

	session, err := c.cfg.Live.Connect(ctx, live.SessionConfig{
		Instructions: c.cfg.Instructions,
		Voice:        c.cfg.Voice,
	})
	if err != nil {
		cerr := &live.ChannelError{Err: err}
		c.fail(cerr)
		return cerr
	}

	c.mu.Lock()
	c.session = session
	c.state = StateActive
	c.mu.Unlock()

	if err := c.cap.activate(); err != nil {
		c.log.Warn("flushing queued capture frames failed", "err", err)
	}
	if n := c.cap.drops(); n > 0 {
		c.log.Debug("dropped capture frames while opening", "count", n)
	}

	c.wg.Add(1)
	go c.eventLoop(session)
	return nil
}

// Stop closes the channel, halts capture and releases the output sink. It is
// valid from every state and idempotent: stopping an Idle session is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	session := c.session
	cancel := c.cancel
	c.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			c.log.Warn("closing live session", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.teardown()
	return nil
}

// sendFrame delivers one PCM16 capture frame to the live session.
func (c *Controller) sendFrame(pcm []byte) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("bridge: send: no open session")
	}
	return session.SendAudio(pcm)
}

func (c *Controller) captureLoop(ctx context.Context, frames <-chan []float32) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-frames:
			if !ok {
				return
			}
			if err := c.cap.submit(samples); err != nil {
				// Fatal to this frame only; the session stays up.
				c.log.Warn("capture frame send failed", "err", err)
			}
		}
	}
}

func (c *Controller) eventLoop(session live.Session) {
	defer c.wg.Done()

	for ev := range session.Events() {
		switch ev.Kind {
		case live.KindAudio:
			if len(ev.PCM)%2 != 0 {
				// Odd-length PCM would truncate a sample; drop the frame.
				c.log.Warn("dropping malformed audio frame", "bytes", len(ev.PCM))
				continue
			}
			frame := audio.Frame{Data: ev.PCM, SampleRate: audio.PlaybackRate}
			if _, _, err := c.sched.Schedule(frame); err != nil {
				c.log.Warn("scheduling playback unit", "err", err)
			}
		case live.KindTranscript:
			if c.cfg.OnTranscript != nil {
				c.cfg.OnTranscript(ev.Transcript)
			}
		case live.KindInterrupted:
			n := c.sched.Interrupt()
			c.log.Debug("playback interrupted", "stopped", n)
			if c.cfg.OnInterrupt != nil {
				c.cfg.OnInterrupt(n)
			}
		case live.KindError:
			c.log.Warn("live channel reported error", "err", ev.Err)
		}
	}

	c.mu.Lock()
	if c.err == nil {
		c.err = session.Err()
	}
	ending := c.state == StateActive
	if ending {
		c.state = StateClosing
	}
	cancel := c.cancel
	c.mu.Unlock()

	// The channel closed on its own (error or remote close) rather than via
	// Stop: halt capture and release everything here.
	if ending {
		if cancel != nil {
			cancel()
		}
		c.teardown()
	}
}

// fail aborts an in-progress Start and returns the controller to Idle with
// all resources released.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.teardown()
}

// teardown releases the capture source and the output sink exactly once and
// moves the controller back to Idle. It runs on every exit path.
func (c *Controller) teardown() {
	c.release.Do(func() {
		if err := c.cfg.Source.Close(); err != nil {
			c.log.Warn("closing capture source", "err", err)
		}
		if err := c.cfg.Sink.Close(); err != nil {
			c.log.Warn("closing output sink", "err", err)
		}
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		close(c.done)
	})
}
