package llmclient

import "context"

// ModelTier selects which configured model serves a request.
type ModelTier string

const (
	// TierFast is the cheap high-throughput model used for first attempts.
	TierFast ModelTier = "fast"
	// TierPowerful is the fallback model used when fast-tier output fails
	// validation.
	TierPowerful ModelTier = "powerful"
)

// GenerationRequest is one remote completion call. UserPrompt is either a
// single string or a JSON-encoded array, depending on the caller.
type GenerationRequest struct {
	Tier         ModelTier
	SystemPrompt string
	UserPrompt   string
	// ForceJSONFormat asks the service to respond with a JSON document.
	ForceJSONFormat bool
}

// Client is the remote text-completion surface.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Embedder produces a vector embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
