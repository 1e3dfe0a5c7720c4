package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentirlabs/sentir/pkg/provider/chat"
	"github.com/sentirlabs/sentir/pkg/provider/chat/gemini"
)

func TestComplete_RequestShapeAndReply(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": "**Acogida Empática**\n..."}},
				},
				"groundingMetadata": map[string]any{
					"groundingChunks": []any{
						map[string]any{"web": map[string]any{"uri": "https://example.org/a", "title": "Fuente A"}},
						map[string]any{"web": map[string]any{"uri": ""}},
					},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	p, err := gemini.New("test-key", gemini.WithBaseURL(srv.URL), gemini.WithModel("test-model"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := p.Complete(context.Background(), chat.Request{
		System: "Eres un acompañante.",
		History: []chat.Message{
			{Role: chat.RoleUser, Text: "Hola"},
			{Role: chat.RoleModel, Text: "Hola, te escucho."},
		},
		Message: "Me duele la cabeza",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	contents, _ := captured["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents length: got %d, want 3 (history + new message)", len(contents))
	}
	last, _ := contents[2].(map[string]any)
	if last["role"] != "user" {
		t.Errorf("last turn role: got %v, want user", last["role"])
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Error("request must carry systemInstruction")
	}
	tools, _ := captured["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools: got %v, want the googleSearch tool", tools)
	}
	gen, _ := captured["generationConfig"].(map[string]any)
	think, _ := gen["thinkingConfig"].(map[string]any)
	if think["thinkingBudget"] != float64(32768) {
		t.Errorf("thinkingBudget: got %v, want 32768", think["thinkingBudget"])
	}

	if reply.Text == "" {
		t.Error("reply text must not be empty")
	}
	if len(reply.Citations) != 1 {
		t.Fatalf("citations: got %d, want 1 (empty URIs dropped)", len(reply.Citations))
	}
	if reply.Citations[0].Title != "Fuente A" {
		t.Errorf("citation title: got %q", reply.Citations[0].Title)
	}
}

func TestComplete_NotFoundIsAuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    404,
				"message": "Requested entity was not found.",
				"status":  "NOT_FOUND",
			},
		})
	}))
	t.Cleanup(srv.Close)

	p, err := gemini.New("bad-key", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Complete(context.Background(), chat.Request{Message: "hola"})
	if !errors.Is(err, chat.ErrAuth) {
		t.Fatalf("got %v, want chat.ErrAuth", err)
	}
}

func TestComplete_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"},
		})
	}))
	t.Cleanup(srv.Close)

	p, _ := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), chat.Request{Message: "hola"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, chat.ErrAuth) {
		t.Fatal("quota errors must not be classified as credential errors")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
