package companion

import (
	"regexp"
	"strings"

	"github.com/sentirlabs/sentir/internal/journal"
)

// voiceMarker locates the VERSIÓN PARA VOZ section heading, tolerating the
// bold wrappers the model is instructed to emit (**…** or <b>…</b>) and an
// optional trailing colon.
var voiceMarker = regexp.MustCompile(`(?i)(?:\*\*|<b>)?\s*VERSIÓN PARA VOZ\s*:?\s*(?:\*\*|</b>)?`)

// markupTags matches HTML-style tags left in model output.
var markupTags = regexp.MustCompile(`<[^>]*>`)

// SplitVoice separates a model reply into its display text and the spoken
// version. When the reply carries no voice section, display is the whole
// reply and voice is empty.
func SplitVoice(reply string) (display, voice string) {
	loc := voiceMarker.FindStringIndex(reply)
	if loc == nil {
		return strings.TrimSpace(reply), ""
	}
	display = strings.TrimSpace(reply[:loc[0]])
	voice = strings.TrimSpace(StripMarkup(reply[loc[1]:]))
	return display, voice
}

// StripMarkup removes the markdown and HTML decorations the persona prompt
// mandates, leaving plain text suitable for speech synthesis.
func StripMarkup(s string) string {
	s = markupTags.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}

// ProviderVoice maps the persisted voice choice to the provider voice name.
func ProviderVoice(v journal.VoiceID) string {
	if v == journal.VoiceMale {
		return "Puck"
	}
	return "Zephyr"
}
