// Package companion implements the conversation engine: it carries each user
// message to the chat provider with the persona prompt and rolling history,
// derives the spoken version of the reply, tags recognised symptoms, records
// both turns in the journal, and synthesises audio when autoplay is on.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/internal/symptoms"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/chat"
	"github.com/sentirlabs/sentir/pkg/provider/tts"
)

// fallbackReply is shown in place of a model turn when the chat call fails
// for any reason other than a credential problem.
const fallbackReply = "Error al conectar con el acompañante. Intenta de nuevo."

// historyLimit caps how many prior turns accompany each chat request.
const historyLimit = 20

// ErrEntryNotFound is returned by Revoice for an unknown entry ID.
var ErrEntryNotFound = errors.New("companion: entry not found")

// Turn is the result of one exchange: the recorded model entry plus optional
// synthesised audio.
type Turn struct {
	Entry journal.Entry

	// Audio is the spoken version at the playback rate; empty when autoplay
	// is off, the reply has no voice section, or synthesis failed.
	Audio audio.Frame

	// Fallback is true when the model call failed and Entry carries the
	// apologetic stand-in text instead of a real reply.
	Fallback bool
}

// Engine is the conversation engine. Safe for concurrent use as long as the
// injected collaborators are.
type Engine struct {
	chat    chat.Provider
	tts     tts.Provider
	store   journal.Store
	matcher *symptoms.Matcher
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMatcher overrides the default symptom matcher.
func WithMatcher(m *symptoms.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// NewEngine wires a conversation engine. chatProvider and store are
// required; ttsProvider may be nil to disable audio entirely.
func NewEngine(chatProvider chat.Provider, ttsProvider tts.Provider, store journal.Store, opts ...Option) (*Engine, error) {
	if chatProvider == nil {
		return nil, fmt.Errorf("companion: chat provider must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("companion: store must not be nil")
	}
	e := &Engine{
		chat:    chatProvider,
		tts:     ttsProvider,
		store:   store,
		matcher: symptoms.New(nil),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Respond handles one user message end to end.
//
// A credential failure (chat.ErrAuth) propagates so the caller can prompt
// re-authentication; any other chat failure degrades to a Fallback turn that
// keeps the conversation usable. The user message is journaled in both
// cases, so nothing the person wrote is lost.
func (e *Engine) Respond(ctx context.Context, message string) (Turn, error) {
	history, err := e.store.Recent(ctx, historyLimit)
	if err != nil {
		return Turn{}, fmt.Errorf("companion: load history: %w", err)
	}

	userEntry := journal.Entry{
		Role:     chat.RoleUser,
		Text:     message,
		Symptoms: e.matcher.Tag(message),
	}
	if userEntry, err = e.store.Append(ctx, userEntry); err != nil {
		return Turn{}, fmt.Errorf("companion: journal user turn: %w", err)
	}

	reply, err := e.chat.Complete(ctx, chat.Request{
		System:  systemInstruction,
		History: toMessages(history),
		Message: message,
	})
	if err != nil {
		if errors.Is(err, chat.ErrAuth) {
			return Turn{}, err
		}
		e.log.Warn("chat call failed, serving fallback turn", "err", err)
		entry, aerr := e.store.Append(ctx, journal.Entry{Role: chat.RoleModel, Text: fallbackReply})
		if aerr != nil {
			return Turn{}, fmt.Errorf("companion: journal fallback turn: %w", aerr)
		}
		return Turn{Entry: entry, Fallback: true}, nil
	}

	display, voice := SplitVoice(reply.Text)
	modelEntry := journal.Entry{
		Role:      chat.RoleModel,
		Text:      display,
		VoiceText: voice,
		Symptoms:  e.matcher.Tag(display),
		Citations: reply.Citations,
	}
	if modelEntry, err = e.store.Append(ctx, modelEntry); err != nil {
		return Turn{}, fmt.Errorf("companion: journal model turn: %w", err)
	}

	turn := Turn{Entry: modelEntry}
	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		e.log.Warn("loading settings failed, skipping autoplay", "err", err)
		return turn, nil
	}
	if settings.AutoPlay && voice != "" && e.tts != nil {
		frame, err := e.tts.Synthesize(ctx, voice, ProviderVoice(settings.Voice))
		if err != nil {
			// Text-only turn; the reply itself already succeeded.
			e.log.Warn("speech synthesis failed", "err", err)
		} else {
			turn.Audio = frame
		}
	}
	return turn, nil
}

// Revoice synthesises the spoken version of a past journal entry with the
// currently configured voice. Entries without a voice section fall back to
// their stripped display text.
func (e *Engine) Revoice(ctx context.Context, entryID string) (audio.Frame, error) {
	if e.tts == nil {
		return audio.Frame{}, fmt.Errorf("companion: revoice: no speech provider configured")
	}
	entries, err := e.store.Recent(ctx, 0)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("companion: revoice: load journal: %w", err)
	}

	var (
		text  string
		found bool
	)
	for _, entry := range entries {
		if entry.ID != entryID {
			continue
		}
		found = true
		text = entry.VoiceText
		if text == "" {
			text = StripMarkup(entry.Text)
		}
		break
	}
	if !found {
		return audio.Frame{}, ErrEntryNotFound
	}

	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("companion: revoice: load settings: %w", err)
	}
	frame, err := e.tts.Synthesize(ctx, text, ProviderVoice(settings.Voice))
	if err != nil {
		return audio.Frame{}, fmt.Errorf("companion: revoice: %w", err)
	}
	return frame, nil
}

func toMessages(entries []journal.Entry) []chat.Message {
	msgs := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, chat.Message{Role: e.Role, Text: e.Text})
	}
	return msgs
}
