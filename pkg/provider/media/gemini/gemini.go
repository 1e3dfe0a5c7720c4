// Package gemini implements media.Provider against the Gemini image preview
// model and the Veo video generation endpoint.
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

	"github.com/sentirlabs/sentir/pkg/provider/media"
)

// Compile-time interface assertion.
var _ media.Provider = (*Provider)(nil)

const (
	defaultImageModel = "gemini-3-pro-image-preview"
	defaultVideoModel = "veo-3.1-fast-generate-preview"
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout    = 2 * time.Minute

	// defaultPollInterval is the delay between long-running operation polls.
	defaultPollInterval = 10 * time.Second

	// Prompt templates framing user text as healing conceptual art.
	imagePromptFmt = "A symbolic, artistic representation of: %s. Minimalist, healing, professional, conceptual art style."
	videoPromptFmt = "Cinematic meditative video of %s. Slow movement, calm, high quality."
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the REST base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithImageModel sets the image generation model.
func WithImageModel(model string) Option {
	return func(p *Provider) { p.imageModel = model }
}

// WithVideoModel sets the video generation model.
func WithVideoModel(model string) Option {
	return func(p *Provider) { p.videoModel = model }
}

// WithPollInterval overrides the long-running operation poll delay. Useful in
// tests to keep suite execution fast.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// Provider implements media.Provider via the Gemini REST API.
type Provider struct {
	apiKey       string
	imageModel   string
	videoModel   string
	baseURL      string
	pollInterval time.Duration
	client       *http.Client
}

// New creates a Gemini media Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini media: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		imageModel:   defaultImageModel,
		videoModel:   defaultVideoModel,
		baseURL:      defaultBaseURL,
		pollInterval: defaultPollInterval,
		client:       &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── REST message types ────────────────────────────────────────────────────────

type imageRequest struct {
	Contents         content               `json:"contents"`
	GenerationConfig imageGenerationConfig `json:"generationConfig"`
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
	Data     string `json:"data"`
}

type imageGenerationConfig struct {
	ImageConfig imageConfig `json:"imageConfig"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

type imageResponse struct {
	Candidates []struct {
		Content *content `json:"content,omitempty"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type videoStartRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoInstance struct {
	Prompt string `json:"prompt"`
}

type videoParameters struct {
	AspectRatio    string `json:"aspectRatio"`
	Resolution     string `json:"resolution"`
	NumberOfVideos int    `json:"numberOfVideos"`
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Response *operationResponse `json:"response,omitempty"`
	Error    *apiError          `json:"error,omitempty"`
}

type operationResponse struct {
	GeneratedVideos []struct {
		Video struct {
			URI string `json:"uri"`
		} `json:"video"`
	} `json:"generatedVideos"`
}

// GenerateImage implements media.Provider.
func (p *Provider) GenerateImage(ctx context.Context, req media.ImageRequest) (string, error) {
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = media.RatioSquare
	}
	size := req.Size
	if size == "" {
		size = "1K"
	}

	body := imageRequest{
		Contents: content{Parts: []part{{Text: fmt.Sprintf(imagePromptFmt, req.Prompt)}}},
		GenerationConfig: imageGenerationConfig{
			ImageConfig: imageConfig{AspectRatio: ratio, ImageSize: size},
		},
	}

	var resp imageResponse
	path := fmt.Sprintf("/models/%s:generateContent", p.imageModel)
	if err := p.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini media: %s (status %s)", resp.Error.Message, resp.Error.Status)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, pt := range cand.Content.Parts {
			if pt.InlineData != nil && pt.InlineData.Data != "" {
				return "data:image/png;base64," + pt.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("gemini media: response carried no image")
}

// GenerateVideo implements media.Provider. It starts the long-running Veo
// operation and polls until done or ctx is cancelled.
func (p *Provider) GenerateVideo(ctx context.Context, req media.VideoRequest) (string, error) {
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = media.RatioLandscape
	}

	start := videoStartRequest{
		Instances: []videoInstance{{Prompt: fmt.Sprintf(videoPromptFmt, req.Prompt)}},
		Parameters: videoParameters{
			AspectRatio:    ratio,
			Resolution:     "720p",
			NumberOfVideos: 1,
		},
	}

	var op operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", p.videoModel)
	if err := p.doJSON(ctx, http.MethodPost, path, start, &op); err != nil {
		return "", err
	}
	if op.Error != nil {
		return "", fmt.Errorf("gemini media: %s (status %s)", op.Error.Message, op.Error.Status)
	}
	if op.Name == "" {
		return "", fmt.Errorf("gemini media: operation start returned no name")
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("gemini media: video generation: %w", ctx.Err())
		case <-ticker.C:
		}
		if err := p.doJSON(ctx, http.MethodGet, "/"+op.Name, nil, &op); err != nil {
			return "", err
		}
		if op.Error != nil {
			return "", fmt.Errorf("gemini media: %s (status %s)", op.Error.Message, op.Error.Status)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", fmt.Errorf("gemini media: operation finished without a video")
	}
	uri := op.Response.GeneratedVideos[0].Video.URI
	if uri == "" {
		return "", fmt.Errorf("gemini media: operation finished without a video URI")
	}

	// The download link requires the API key appended to be fetchable.
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "key=" + p.apiKey, nil
}

// doJSON issues one request against the Gemini REST API and decodes the result.
func (p *Provider) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gemini media: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gemini media: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gemini media: request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("gemini media: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gemini media: decode response (status %d): %w", httpResp.StatusCode, err)
	}
	return nil
}
