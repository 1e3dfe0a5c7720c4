package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sentirlabs/sentir/internal/companion"
	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/chat"
	"github.com/sentirlabs/sentir/pkg/provider/media"
)

type fakeCompanion struct {
	turn       companion.Turn
	respondErr error
	frame      audio.Frame
	revoiceErr error

	lastMessage string
	lastEntryID string
}

func (f *fakeCompanion) Respond(_ context.Context, message string) (companion.Turn, error) {
	f.lastMessage = message
	if f.respondErr != nil {
		return companion.Turn{}, f.respondErr
	}
	return f.turn, nil
}

func (f *fakeCompanion) Revoice(_ context.Context, entryID string) (audio.Frame, error) {
	f.lastEntryID = entryID
	if f.revoiceErr != nil {
		return audio.Frame{}, f.revoiceErr
	}
	return f.frame, nil
}

type fakeMedia struct {
	uri      string
	url      string
	imageErr error
	videoErr error

	imageReq media.ImageRequest
	videoReq media.VideoRequest
}

func (f *fakeMedia) GenerateImage(_ context.Context, req media.ImageRequest) (string, error) {
	f.imageReq = req
	return f.uri, f.imageErr
}

func (f *fakeMedia) GenerateVideo(_ context.Context, req media.VideoRequest) (string, error) {
	f.videoReq = req
	return f.url, f.videoErr
}

func newTestServer(t *testing.T, comp Companion, med media.Provider, store journal.Store) *Server {
	t.Helper()
	if comp == nil {
		comp = &fakeCompanion{}
	}
	if store == nil {
		store = journal.NewMemStore()
	}
	s, err := New(Config{Companion: comp, Media: med, Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestChatReturnsTurn(t *testing.T) {
	comp := &fakeCompanion{
		turn: companion.Turn{
			Entry: journal.Entry{
				ID:   "e1",
				Role: "model",
				Text: "Respira profundo.",
				Citations: []chat.Citation{
					{Title: "Fuente", URI: "https://example.org"},
				},
			},
			Audio: audio.Frame{Data: []byte{1, 0, 2, 0}, SampleRate: audio.PlaybackRate},
		},
	}
	s := newTestServer(t, comp, nil, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{Message: "no puedo dormir"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	resp := decode[chatResponse](t, rec)
	if resp.Entry.Text != "Respira profundo." {
		t.Errorf("entry text = %q", resp.Entry.Text)
	}
	if resp.Audio == "" || resp.Rate != audio.PlaybackRate {
		t.Errorf("audio = %q rate = %d, want encoded audio at %d", resp.Audio, resp.Rate, audio.PlaybackRate)
	}
	if comp.lastMessage != "no puedo dormir" {
		t.Errorf("message passed = %q", comp.lastMessage)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{Message: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestChatAuthErrorMapsTo401(t *testing.T) {
	comp := &fakeCompanion{respondErr: chat.ErrAuth}
	s := newTestServer(t, comp, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{Message: "hola"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestChatFallbackStillReturns200(t *testing.T) {
	comp := &fakeCompanion{turn: companion.Turn{
		Entry:    journal.Entry{Role: "model", Text: "Error al conectar con el acompañante. Intenta de nuevo."},
		Fallback: true,
	}}
	s := newTestServer(t, comp, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{Message: "hola"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decode[chatResponse](t, rec)
	if !resp.Fallback {
		t.Error("fallback flag not set")
	}
}

func TestTTSReturnsAudio(t *testing.T) {
	comp := &fakeCompanion{frame: audio.Frame{Data: []byte{3, 0}, SampleRate: audio.PlaybackRate}}
	s := newTestServer(t, comp, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tts", ttsRequest{EntryID: "e7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	resp := decode[ttsResponse](t, rec)
	if resp.Audio == "" || resp.Rate != audio.PlaybackRate {
		t.Errorf("audio = %q rate = %d", resp.Audio, resp.Rate)
	}
	if comp.lastEntryID != "e7" {
		t.Errorf("entry id passed = %q", comp.lastEntryID)
	}
}

func TestTTSUnknownEntryMapsTo404(t *testing.T) {
	comp := &fakeCompanion{revoiceErr: companion.ErrEntryNotFound}
	s := newTestServer(t, comp, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tts", ttsRequest{EntryID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTTSFailureMapsTo502(t *testing.T) {
	comp := &fakeCompanion{revoiceErr: errors.New("synthesis exploded")}
	s := newTestServer(t, comp, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tts", ttsRequest{EntryID: "e1"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestImageGeneration(t *testing.T) {
	med := &fakeMedia{uri: "data:image/png;base64,aGk="}
	s := newTestServer(t, nil, med, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/art/image", imageRequest{
		Prompt:      "un bosque en calma",
		AspectRatio: media.RatioLandscape,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	resp := decode[map[string]string](t, rec)
	if resp["dataUri"] != med.uri {
		t.Errorf("dataUri = %q", resp["dataUri"])
	}
	if med.imageReq.AspectRatio != media.RatioLandscape {
		t.Errorf("aspect ratio passed = %q", med.imageReq.AspectRatio)
	}
}

func TestVideoGeneration(t *testing.T) {
	med := &fakeMedia{url: "https://example.org/v.mp4"}
	s := newTestServer(t, nil, med, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/art/video", videoRequest{Prompt: "olas suaves"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	resp := decode[map[string]string](t, rec)
	if resp["url"] != med.url {
		t.Errorf("url = %q", resp["url"])
	}
}

func TestMediaUnconfiguredMapsTo501(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/art/image", imageRequest{Prompt: "x"})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := journal.NewMemStore()
	s := newTestServer(t, nil, nil, store)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[journal.Settings](t, rec)
	if got != journal.DefaultSettings() {
		t.Errorf("defaults = %+v, want %+v", got, journal.DefaultSettings())
	}

	rec = doJSON(t, s.Handler(), http.MethodPut, "/api/settings", journal.Settings{
		Voice: journal.VoiceMale, AutoPlay: false, Theme: "dusk",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d (body %s)", rec.Code, rec.Body)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/settings", nil)
	got = decode[journal.Settings](t, rec)
	if got.Voice != journal.VoiceMale || got.AutoPlay || got.Theme != "dusk" {
		t.Errorf("after save = %+v", got)
	}
}

func TestSettingsRejectInvalidVoice(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPut, "/api/settings", map[string]any{
		"voice": "robot", "autoPlay": true, "theme": "sage",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestJournalGroupsByDay(t *testing.T) {
	store := journal.NewMemStore()
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)
	day2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	for _, e := range []journal.Entry{
		{Role: "user", Text: "hola", CreatedAt: day1},
		{Role: "model", Text: "hola, ¿cómo estás?", CreatedAt: day1.Add(time.Minute)},
		{Role: "user", Text: "mejor hoy", CreatedAt: day2},
	} {
		if _, err := store.Append(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	s := newTestServer(t, nil, nil, store)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/journal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[journalResponse](t, rec)
	if len(resp.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(resp.Days))
	}
	if resp.Days[0].Date != "2026-03-01" || len(resp.Days[0].Entries) != 2 {
		t.Errorf("first day = %q with %d entries", resp.Days[0].Date, len(resp.Days[0].Entries))
	}
	if resp.Days[1].Date != "2026-03-02" || len(resp.Days[1].Entries) != 1 {
		t.Errorf("second day = %q with %d entries", resp.Days[1].Date, len(resp.Days[1].Entries))
	}
}

func TestJournalClear(t *testing.T) {
	store := journal.NewMemStore()
	if _, err := store.Append(context.Background(), journal.Entry{Role: "user", Text: "hola"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := newTestServer(t, nil, nil, store)

	rec := doJSON(t, s.Handler(), http.MethodDelete, "/api/journal", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	entries, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after clear = %d", len(entries))
	}
}

func TestRelatedRequiresQuery(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/journal/related", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRelatedReturnsMatches(t *testing.T) {
	store := journal.NewMemStore()
	ctx := context.Background()
	for _, text := range []string{
		"anoche no pude dormir por el insomnio",
		"hoy caminé por el parque",
	} {
		if _, err := store.Append(ctx, journal.Entry{Role: "user", Text: text}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	s := newTestServer(t, nil, nil, store)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/journal/related?q=insomnio&limit=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body)
	}
	resp := decode[map[string][]journal.Entry](t, rec)
	entries := resp["entries"]
	if len(entries) != 1 || !strings.Contains(entries[0].Text, "insomnio") {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]any{
		"message": "hola", "model": "gpt-9",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestNewRequiresCompanionAndStore(t *testing.T) {
	if _, err := New(Config{Store: journal.NewMemStore()}); err == nil {
		t.Error("missing companion accepted")
	}
	if _, err := New(Config{Companion: &fakeCompanion{}}); err == nil {
		t.Error("missing store accepted")
	}
}
