// Package media defines the Provider interface for symbolic image and
// meditative video generation.
//
// Image generation is a single call returning a displayable data URI. Video
// generation is a long-running operation: the provider starts it and polls
// until done, honouring context cancellation between polls.
package media

import "context"

// Aspect ratios accepted by the generation endpoints.
const (
	RatioSquare    = "1:1"
	RatioLandscape = "16:9"
	RatioPortrait  = "9:16"
)

// ImageRequest configures one symbolic image generation.
type ImageRequest struct {
	// Prompt is the user's free-text description of their inner state.
	Prompt string

	// AspectRatio is one of the Ratio constants. Defaults to 1:1.
	AspectRatio string

	// Size is the provider size enum (e.g. "1K", "2K"). Defaults to 1K.
	Size string
}

// VideoRequest configures one meditative video generation.
type VideoRequest struct {
	Prompt string

	// AspectRatio is 16:9 or 9:16. Defaults to 16:9.
	AspectRatio string
}

// Provider generates symbolic media. Implementations must be safe for
// concurrent use.
type Provider interface {
	// GenerateImage returns a data URI (data:image/png;base64,…) for the
	// generated image.
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)

	// GenerateVideo starts a long-running generation, polls until done, and
	// returns a playable video URL.
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)
}
