// Package bridge implements the realtime audio bridge: the capture pipeline
// that streams microphone frames to the live provider, the playback scheduler
// that renders inbound synthesized audio gaplessly, and the session lifecycle
// controller that owns the state machine wiring the two to one live channel.
//
// This package lives under internal/ because it encapsulates application-private
// session logic and is not intended to be imported by external code.
package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentirlabs/sentir/pkg/audio"
)

// Clock reports the current position of the output audio clock. The zero of
// the clock domain is the moment the session's output device was acquired.
type Clock interface {
	Now() time.Duration
}

// Unit is one scheduled, in-flight playback unit.
type Unit struct {
	// ID identifies the unit across the sink boundary so that completion and
	// stop signals can be matched back to it.
	ID string

	// Frame is the decoded 24 kHz PCM audio to render.
	Frame audio.Frame

	// Start is the offset in the output clock domain at which rendering begins.
	Start time.Duration
}

// Sink renders scheduled units on the output device. The gateway's sink
// forwards units to the browser; tests substitute a recording sink.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Play begins rendering the unit at unit.Start.
	Play(unit Unit) error

	// Stop aborts an in-flight unit. Stopping an unknown or already finished
	// unit is a no-op.
	Stop(id string) error

	// Close releases the output device. After Close no further Play calls are
	// made.
	Close() error
}

// Scheduler assigns gapless start times to inbound audio frames and tracks
// the set of units currently playing.
//
// Each frame starts at max(clock.Now(), cursor) so playback never starts in
// the past and successive frames concatenate without silence or overlap. The
// cursor advances by each frame's duration and resets to zero on interruption.
//
// Safe for concurrent use.
type Scheduler struct {
	clock Clock
	sink  Sink
	newID func() string

	mu     sync.Mutex
	cursor time.Duration
	active map[string]Unit
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIDFunc overrides unit ID generation. Used in tests for deterministic IDs.
func WithIDFunc(f func() string) SchedulerOption {
	return func(s *Scheduler) { s.newID = f }
}

// NewScheduler creates a Scheduler rendering through sink on the given clock.
func NewScheduler(clock Clock, sink Sink, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		sink:   sink,
		newID:  uuid.NewString,
		active: make(map[string]Unit),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule assigns the next gapless start time to frame and hands it to the
// sink. A zero-length frame is a no-op: nothing is scheduled, the cursor does
// not move, and ok is false.
func (s *Scheduler) Schedule(frame audio.Frame) (unit Unit, ok bool, err error) {
	if frame.Samples() == 0 {
		return Unit{}, false, nil
	}

	s.mu.Lock()
	start := s.clock.Now()
	if s.cursor > start {
		start = s.cursor
	}
	unit = Unit{ID: s.newID(), Frame: frame, Start: start}
	s.cursor = start + frame.Duration()
	s.active[unit.ID] = unit
	s.mu.Unlock()

	if err := s.sink.Play(unit); err != nil {
		s.mu.Lock()
		delete(s.active, unit.ID)
		s.mu.Unlock()
		return Unit{}, false, fmt.Errorf("bridge: play unit: %w", err)
	}
	return unit, true, nil
}

// Completed removes a naturally finished unit from the active set. Unknown or
// already removed IDs are ignored, so a completion racing an interruption
// removes the unit exactly once.
func (s *Scheduler) Completed(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Interrupt stops every active unit, clears the set and resets the cursor to
// zero so the next turn starts cleanly. With an empty active set it is a
// no-op. It returns the number of units stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	stopped := make([]string, 0, len(s.active))
	for id := range s.active {
		stopped = append(stopped, id)
	}
	s.active = make(map[string]Unit)
	s.cursor = 0
	s.mu.Unlock()

	for _, id := range stopped {
		// Best effort: a unit that finished on the sink side while we held the
		// lock is already gone there.
		_ = s.sink.Stop(id)
	}
	return len(stopped)
}

// ActiveCount returns the number of units currently scheduled or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the output-clock offset at which the next unit would start
// if it arrived while playback is still ahead of the clock.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
