// Package openai provides an alternate chat.Provider backed by the OpenAI
// API. It carries no search grounding — replies never include citations.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/sentirlabs/sentir/pkg/provider/chat"
)

// Compile-time interface assertion.
var _ chat.Provider = (*Provider)(nil)

// Provider implements chat.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI chat Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements chat.Provider.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (*chat.Reply, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch m.Role {
		case chat.RoleModel:
			messages = append(messages, oai.AssistantMessage(m.Text))
		default:
			messages = append(messages, oai.UserMessage(m.Text))
		}
	}
	messages = append(messages, oai.UserMessage(req.Message))

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", chat.ErrAuth, err)
		}
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}

	return &chat.Reply{Text: resp.Choices[0].Message.Content}, nil
}
