// Package tts defines the Provider interface for text-to-speech synthesis.
//
// Synthesis input is plain text (markup already stripped) plus a provider
// voice name; output is raw 24 kHz s16le mono PCM ready for the playback
// path. Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/sentirlabs/sentir/pkg/audio"
)

// Provider synthesises one utterance per call. A failed generation returns an
// error rather than empty audio; callers degrade to a text-only turn.
type Provider interface {
	Synthesize(ctx context.Context, text, voice string) (audio.Frame, error)
}
