// Package chat defines the Provider interface for turn-based text generation.
//
// A chat provider receives the user's message plus the ordered prior turns and
// returns generated text, optionally accompanied by search-grounding citations
// when the model consulted external search. Implementations must be safe for
// concurrent use.
package chat

import (
	"context"
	"errors"
)

// ErrAuth reports a credential problem (missing, invalid, or revoked API key).
// The gateway maps it to a re-authentication prompt instead of a chat bubble.
var ErrAuth = errors.New("chat: invalid or missing credential")

// Role values for conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one role-tagged conversation turn.
type Message struct {
	Role string
	Text string
}

// Citation is a search-grounding source reference returned alongside
// generated text.
type Citation struct {
	Title string
	URI   string
}

// Request is one chat call: the new user message plus rolling history.
type Request struct {
	// System is the fixed system instruction for the conversation.
	System string

	// History holds prior turns in chronological order.
	History []Message

	// Message is the new user input.
	Message string
}

// Reply is the model's response to a Request.
type Reply struct {
	Text      string
	Citations []Citation
}

// Provider generates one model turn per call. Implementations do not retry;
// failures surface to the caller, which decides how to degrade.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}
