// Package gemini implements embeddings.Provider against the Gemini
// embedContent REST API.
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

	"github.com/sentirlabs/sentir/pkg/provider/embeddings"
)

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

const (
	defaultModel   = "text-embedding-004"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 30 * time.Second

	// text-embedding-004 produces 768-dimensional vectors.
	defaultDimensions = 768
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the embedding model. When the model's vector length differs
// from the default, pair this with WithDimensions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithDimensions overrides the expected vector length.
func WithDimensions(n int) Option {
	return func(p *Provider) { p.dimensions = n }
}

// WithBaseURL overrides the REST base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// Provider implements embeddings.Provider via the Gemini REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
}

// New creates a Gemini embeddings Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embeddings: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		dimensions: defaultDimensions,
		client:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── REST message types ────────────────────────────────────────────────────────

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding *vector `json:"embedding,omitempty"`
}

type batchRequest struct {
	Requests []batchItem `json:"requests"`
}

type batchItem struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type batchResponse struct {
	Embeddings []vector `json:"embeddings"`
}

type vector struct {
	Values []float32 `json:"values"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{Content: content{Parts: []part{{Text: text}}}}
	var resp embedResponse
	if err := p.post(ctx, ":embedContent", req, &resp); err != nil {
		return nil, err
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embeddings: response carried no vector")
	}
	return resp.Embedding.Values, nil
}

// EmbedBatch implements embeddings.Provider using a single batchEmbedContents
// call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := batchRequest{Requests: make([]batchItem, len(texts))}
	for i, t := range texts {
		req.Requests[i] = batchItem{
			Model:   "models/" + p.model,
			Content: content{Parts: []part{{Text: t}}},
		}
	}
	var resp batchResponse
	if err := p.post(ctx, ":batchEmbedContents", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, v := range resp.Embeddings {
		out[i] = v.Values
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }

func (p *Provider) post(ctx context.Context, method string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gemini embeddings: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s%s", p.baseURL, p.model, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gemini embeddings: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gemini embeddings: request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("gemini embeddings: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		var errResp struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != nil {
			return fmt.Errorf("gemini embeddings: %s (status %s)", errResp.Error.Message, errResp.Error.Status)
		}
		return fmt.Errorf("gemini embeddings: unexpected status %d", httpResp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gemini embeddings: decode response: %w", err)
	}
	return nil
}
