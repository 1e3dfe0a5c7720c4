package gemini_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/tts/gemini"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     audio.EncodeBase64(pcm),
					}}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	p, err := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	frame, err := p.Synthesize(context.Background(), "Respira con calma.", "Zephyr")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(frame.Data, pcm) {
		t.Error("decoded PCM mismatch")
	}
	if frame.SampleRate != audio.PlaybackRate {
		t.Errorf("sample rate: got %d, want %d", frame.SampleRate, audio.PlaybackRate)
	}

	// Request must carry the audio modality, the voice, and the warm
	// read-aloud framing around the text.
	gen, _ := captured["generationConfig"].(map[string]any)
	mods, _ := gen["responseModalities"].([]any)
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("responseModalities: got %v", mods)
	}
	raw, _ := json.Marshal(captured)
	if !strings.Contains(string(raw), "Zephyr") {
		t.Error("request must name the voice")
	}
	if !strings.Contains(string(raw), "Lee pausadamente") {
		t.Error("request must frame the text for a slow warm read")
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "sin audio"}}},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	p, _ := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hola", "Zephyr"); err == nil {
		t.Fatal("expected error when the response carries no audio")
	}
}
