// Package gemini implements chat.Provider against the Gemini generateContent
// REST endpoint, with Google Search grounding and a thinking budget suited to
// the symbolic-exploration persona.
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

	"github.com/sentirlabs/sentir/pkg/provider/chat"
)

// Compile-time interface assertion.
var _ chat.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-3-pro-preview"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 2 * time.Minute

	// thinkingBudget is the token budget granted to the model's internal
	// reasoning pass before it produces the structured response.
	thinkingBudget = 32768
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for chat calls.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the REST base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements chat.Provider via the Gemini REST API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a Gemini chat Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
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

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content           *content           `json:"content,omitempty"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *webSource `json:"web,omitempty"`
}

type webSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Complete implements chat.Provider. The new message is appended to the
// prior turns and the whole conversation is sent in one generateContent call.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (*chat.Reply, error) {
	body := generateRequest{
		Contents: make([]content, 0, len(req.History)+1),
		GenerationConfig: &generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingBudget: thinkingBudget},
		},
		Tools: []tool{{GoogleSearch: &struct{}{}}},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.History {
		body.Contents = append(body.Contents, content{Role: m.Role, Parts: []part{{Text: m.Text}}})
	}
	body.Contents = append(body.Contents, content{Role: chat.RoleUser, Parts: []part{{Text: req.Message}}})

	var resp generateResponse
	if err := p.post(ctx, fmt.Sprintf("/models/%s:generateContent", p.model), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: empty response")
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, pt := range cand.Content.Parts {
		text.WriteString(pt.Text)
	}

	reply := &chat.Reply{Text: text.String()}
	if cand.GroundingMetadata != nil {
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			reply.Citations = append(reply.Citations, chat.Citation{
				Title: gc.Web.Title,
				URI:   gc.Web.URI,
			})
		}
	}
	return reply, nil
}

// post issues one JSON POST to the Gemini REST API and decodes the result.
func (p *Provider) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gemini: request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("gemini: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp generateResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != nil {
			// An entity-not-found status means the key does not grant access
			// to the model: surface as a credential problem.
			if errResp.Error.Status == "NOT_FOUND" || httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
				return fmt.Errorf("%w: %s", chat.ErrAuth, errResp.Error.Message)
			}
			return fmt.Errorf("gemini: %s (status %s)", errResp.Error.Message, errResp.Error.Status)
		}
		return fmt.Errorf("gemini: unexpected status %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}
