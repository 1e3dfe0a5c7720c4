// Package audio provides the PCM frame type and the lossless codec used at
// the realtime channel boundary: base64 text (wire format), raw byte buffers,
// and float32 sample slices suitable for audio output hardware.
package audio

import "time"

// Standard sample rates of the realtime channel. Capture audio travels
// upstream at 16 kHz; synthesised audio arrives at 24 kHz.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000

	// CaptureFrameSamples is the fixed capture frame size. 4096 samples at
	// 16 kHz is 256 ms per frame, balancing latency against per-frame
	// overhead on the channel.
	CaptureFrameSamples = 4096
)

// CaptureMIME tags outbound capture frames on the realtime channel.
const CaptureMIME = "audio/pcm;rate=16000"

// Frame is one discrete unit of little-endian signed 16-bit mono PCM,
// sent or received as a single channel message. A Frame is immutable once
// produced: it is created by the codec from either a capture buffer or a
// decoded inbound message, consumed exactly once, and then discarded.
type Frame struct {
	// Data holds s16le PCM bytes. Always an even number of bytes.
	Data []byte

	// SampleRate in Hz.
	SampleRate int
}

// Samples returns the number of PCM samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Seconds returns the playback duration in seconds, the unit of the output
// audio clock domain.
func (f Frame) Seconds() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(f.Samples()) / float64(f.SampleRate)
}
