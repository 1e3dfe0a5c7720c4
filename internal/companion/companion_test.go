package companion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/chat"
)

type fakeChat struct {
	mu    sync.Mutex
	reqs  []chat.Request
	reply *chat.Reply
	err   error
}

func (f *fakeChat) Complete(_ context.Context, req chat.Request) (*chat.Reply, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type fakeTTS struct {
	mu     sync.Mutex
	texts  []string
	voices []string
	err    error
}

func (f *fakeTTS) Synthesize(_ context.Context, text, voice string) (audio.Frame, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	if f.err != nil {
		return audio.Frame{}, f.err
	}
	return audio.Frame{Data: []byte{1, 2}, SampleRate: audio.PlaybackRate}, nil
}

const sampleReply = "Te acompaño con tu **<u>insomnio</u>**.\n\n**VERSIÓN PARA VOZ**\nRespira y suelta el día."

func TestRespond(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	ch := &fakeChat{reply: &chat.Reply{
		Text:      sampleReply,
		Citations: []chat.Citation{{Title: "Fuente", URI: "https://example.org"}},
	}}
	speech := &fakeTTS{}

	e, err := NewEngine(ch, speech, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	turn, err := e.Respond(ctx, "no puedo dormir, otra vez insomnio")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if turn.Fallback {
		t.Fatal("unexpected fallback turn")
	}
	if turn.Entry.Role != chat.RoleModel {
		t.Errorf("entry role = %q", turn.Entry.Role)
	}
	if turn.Entry.VoiceText != "Respira y suelta el día." {
		t.Errorf("voice text = %q", turn.Entry.VoiceText)
	}
	if len(turn.Entry.Citations) != 1 {
		t.Errorf("citations = %v", turn.Entry.Citations)
	}
	if len(turn.Entry.Symptoms) == 0 || turn.Entry.Symptoms[0] != "insomnio" {
		t.Errorf("model symptoms = %v", turn.Entry.Symptoms)
	}
	if turn.Audio.Samples() == 0 {
		t.Error("autoplay produced no audio")
	}

	// The request carried the persona prompt and the raw message.
	ch.mu.Lock()
	req := ch.reqs[0]
	ch.mu.Unlock()
	if req.System == "" || req.Message != "no puedo dormir, otra vez insomnio" {
		t.Errorf("request = %+v", req)
	}
	if len(req.History) != 0 {
		t.Errorf("first turn carried history: %v", req.History)
	}

	// Both turns are journaled, user first.
	entries, _ := store.Recent(ctx, 0)
	if len(entries) != 2 {
		t.Fatalf("journal has %d entries, want 2", len(entries))
	}
	if entries[0].Role != chat.RoleUser || entries[0].Symptoms[0] != "insomnio" {
		t.Errorf("user entry = %+v", entries[0])
	}

	// TTS used the spoken text and the default female voice.
	speech.mu.Lock()
	defer speech.mu.Unlock()
	if len(speech.texts) != 1 || speech.texts[0] != "Respira y suelta el día." {
		t.Errorf("tts texts = %v", speech.texts)
	}
	if speech.voices[0] != "Zephyr" {
		t.Errorf("tts voice = %q", speech.voices[0])
	}
}

func TestRespondCarriesHistory(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	store.Append(ctx, journal.Entry{Role: chat.RoleUser, Text: "hola"})
	store.Append(ctx, journal.Entry{Role: chat.RoleModel, Text: "hola, te escucho"})

	ch := &fakeChat{reply: &chat.Reply{Text: "seguimos"}}
	e, _ := NewEngine(ch, nil, store)

	if _, err := e.Respond(ctx, "sigo aquí"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.reqs[0].History) != 2 {
		t.Fatalf("history length = %d, want 2", len(ch.reqs[0].History))
	}
	if ch.reqs[0].History[1].Role != chat.RoleModel {
		t.Errorf("history order wrong: %v", ch.reqs[0].History)
	}
}

func TestRespondFallbackOnChatError(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	ch := &fakeChat{err: errors.New("upstream 500")}
	e, _ := NewEngine(ch, &fakeTTS{}, store)

	turn, err := e.Respond(ctx, "hola")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !turn.Fallback {
		t.Fatal("expected fallback turn")
	}
	if turn.Entry.Text != fallbackReply {
		t.Errorf("fallback text = %q", turn.Entry.Text)
	}
	if turn.Audio.Samples() != 0 {
		t.Error("fallback turn carried audio")
	}

	// The user's message is still journaled.
	entries, _ := store.Recent(ctx, 0)
	if len(entries) != 2 || entries[0].Text != "hola" {
		t.Errorf("journal = %v", entries)
	}
}

func TestRespondAuthErrorPropagates(t *testing.T) {
	store := journal.NewMemStore()
	ch := &fakeChat{err: chat.ErrAuth}
	e, _ := NewEngine(ch, nil, store)

	_, err := e.Respond(context.Background(), "hola")
	if !errors.Is(err, chat.ErrAuth) {
		t.Fatalf("err = %v, want chat.ErrAuth", err)
	}
}

func TestRespondAutoplayOff(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	store.SaveSettings(ctx, journal.Settings{Voice: journal.VoiceFemale, AutoPlay: false, Theme: "sage"})
	speech := &fakeTTS{}
	e, _ := NewEngine(&fakeChat{reply: &chat.Reply{Text: sampleReply}}, speech, store)

	turn, err := e.Respond(ctx, "hola")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if turn.Audio.Samples() != 0 {
		t.Error("audio produced with autoplay off")
	}
	speech.mu.Lock()
	defer speech.mu.Unlock()
	if len(speech.texts) != 0 {
		t.Error("tts called with autoplay off")
	}
}

func TestRespondTTSFailureDegrades(t *testing.T) {
	store := journal.NewMemStore()
	speech := &fakeTTS{err: errors.New("quota")}
	e, _ := NewEngine(&fakeChat{reply: &chat.Reply{Text: sampleReply}}, speech, store)

	turn, err := e.Respond(context.Background(), "hola")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if turn.Fallback || turn.Entry.VoiceText == "" {
		t.Errorf("turn degraded wrongly: %+v", turn)
	}
	if turn.Audio.Samples() != 0 {
		t.Error("audio present despite synthesis failure")
	}
}

func TestRevoice(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	store.SaveSettings(ctx, journal.Settings{Voice: journal.VoiceMale, AutoPlay: true, Theme: "sage"})
	entry, _ := store.Append(ctx, journal.Entry{Role: chat.RoleModel, Text: "texto", VoiceText: "versión hablada"})

	speech := &fakeTTS{}
	e, _ := NewEngine(&fakeChat{reply: &chat.Reply{Text: "x"}}, speech, store)

	frame, err := e.Revoice(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Revoice: %v", err)
	}
	if frame.Samples() == 0 {
		t.Error("no audio returned")
	}
	speech.mu.Lock()
	defer speech.mu.Unlock()
	if speech.texts[0] != "versión hablada" {
		t.Errorf("revoiced text = %q", speech.texts[0])
	}
	if speech.voices[0] != "Puck" {
		t.Errorf("revoice voice = %q, want the configured male voice", speech.voices[0])
	}
}

func TestRevoiceStripsWhenNoVoiceText(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemStore()
	entry, _ := store.Append(ctx, journal.Entry{Role: chat.RoleModel, Text: "**<u>migraña</u>** y calma"})

	speech := &fakeTTS{}
	e, _ := NewEngine(&fakeChat{reply: &chat.Reply{Text: "x"}}, speech, store)

	if _, err := e.Revoice(ctx, entry.ID); err != nil {
		t.Fatalf("Revoice: %v", err)
	}
	speech.mu.Lock()
	defer speech.mu.Unlock()
	if speech.texts[0] != "migraña y calma" {
		t.Errorf("stripped text = %q", speech.texts[0])
	}
}

func TestRevoiceUnknownEntry(t *testing.T) {
	e, _ := NewEngine(&fakeChat{reply: &chat.Reply{Text: "x"}}, &fakeTTS{}, journal.NewMemStore())
	if _, err := e.Revoice(context.Background(), "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}
