package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/sentirlabs/sentir/pkg/audio"
)

// ErrPermissionDenied is returned by Controller.Start when the capture source
// cannot be opened, typically because microphone access was refused.
var ErrPermissionDenied = errors.New("bridge: audio input permission denied")

// DefaultQueueLimit bounds the number of capture frames held while the session
// is still Opening. At 4096 samples per 16 kHz frame this is roughly eight
// seconds of audio.
const DefaultQueueLimit = 32

// Source produces raw microphone audio as float sample frames at the capture
// rate. The gateway's source decodes frames arriving over the WebSocket;
// tests substitute a channel-backed fake.
type Source interface {
	// Start opens the input device and returns the frame stream. The stream is
	// closed when the source ends or Close is called. An open failure means the
	// platform refused audio input.
	Start(ctx context.Context) (<-chan []float32, error)

	// Close releases the input device.
	Close() error
}

// capture converts float sample frames to PCM16 and forwards them to the live
// channel. Until activate is called, frames are held in a bounded queue so
// that nothing is sent against a channel that is not yet Active; on overflow
// the oldest frame is dropped first.
type capture struct {
	send func(pcm []byte) error

	mu        sync.Mutex
	limit     int
	queue     [][]byte
	streaming bool
	dropped   int
}

func newCapture(limit int, send func(pcm []byte) error) *capture {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &capture{send: send, limit: limit}
}

// submit converts one sample frame and either queues it (pre-Active) or sends
// it directly. Empty frames are dropped.
func (c *capture) submit(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	pcm := audio.FloatToPCM16(samples)

	c.mu.Lock()
	if !c.streaming {
		if len(c.queue) >= c.limit {
			c.queue = c.queue[1:]
			c.dropped++
		}
		c.queue = append(c.queue, pcm)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.send(pcm)
}

// activate flushes the held queue in arrival order and switches to direct
// sending. Frames submitted concurrently with the flush are queued behind it
// and flushed in the same call, so ordering is preserved.
func (c *capture) activate() error {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.streaming = true
			c.mu.Unlock()
			return nil
		}
		pcm := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.send(pcm); err != nil {
			return err
		}
	}
}

// queued reports the number of frames currently held pre-Active.
func (c *capture) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// drops reports how many frames were discarded by queue overflow.
func (c *capture) drops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
