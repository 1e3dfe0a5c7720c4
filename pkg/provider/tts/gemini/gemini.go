// Package gemini implements tts.Provider against the Gemini TTS preview
// models. Audio comes back as base64 24 kHz s16le mono PCM inline data.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-2.5-flash-preview-tts"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 60 * time.Second

	// readAloudPrefix frames every utterance for a warm, unhurried read.
	readAloudPrefix = "Lee pausadamente y con calidez: "
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini TTS model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the REST base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// Provider implements tts.Provider via the Gemini REST API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a Gemini TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini tts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── REST message types ────────────────────────────────────────────────────────

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded PCM
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status,omitempty"`
	} `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. It returns the decoded 24 kHz PCM frame
// or an error when the model produced no audio.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (audio.Frame, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: readAloudPrefix + text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: read response: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: decode response: %w", err)
	}
	if resp.Error != nil {
		return audio.Frame{}, fmt.Errorf("gemini tts: %s (status %s)", resp.Error.Message, resp.Error.Status)
	}
	if httpResp.StatusCode != http.StatusOK {
		return audio.Frame{}, fmt.Errorf("gemini tts: unexpected status %d", httpResp.StatusCode)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, pt := range cand.Content.Parts {
			if pt.InlineData == nil || pt.InlineData.Data == "" {
				continue
			}
			return audio.DecodeFrame(pt.InlineData.Data, audio.PlaybackRate)
		}
	}
	return audio.Frame{}, fmt.Errorf("gemini tts: response carried no audio")
}
