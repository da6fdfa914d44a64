package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Router implements Client and dispatches requests to the per-tier clients.
type Router struct {
	logger  *zap.Logger
	clients map[ModelTier]Client
}

// NewRouter creates a router over the fast and powerful tier clients.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient Client) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[ModelTier]Client{
			TierFast:     fastClient,
			TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate selects the client for the request's tier. An unset tier runs on
// the powerful model.
func (r *Router) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}
