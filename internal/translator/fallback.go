package translator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/llmclient"
)

// tierAttempt is one rung of the model fallback ladder.
type tierAttempt struct {
	tier     llmclient.ModelTier
	attempts int
}

// ladder returns the standard two-tier fallback: the fast model gets the
// configured attempt count, the powerful model one final shot.
func (p *Pipeline) ladder() []tierAttempt {
	attempts := p.cfg.BatchAttempts
	if attempts < 1 {
		attempts = 2
	}
	return []tierAttempt{
		{tier: llmclient.TierFast, attempts: attempts},
		{tier: llmclient.TierPowerful, attempts: 1},
	}
}

// generateTiered walks the fallback ladder. Each rung calls the remote
// service under the hard client-side timeout and runs the caller's
// validator over the raw response; the first response that validates wins.
func (p *Pipeline) generateTiered(
	ctx context.Context,
	req llmclient.GenerationRequest,
	validate func(raw string) error,
) (string, error) {
	var lastErr error
	for _, rung := range p.ladder() {
		req.Tier = rung.tier
		for i := 0; i < rung.attempts; i++ {
			raw, err := p.generateWithTimeout(ctx, req)
			if err == nil {
				if err = validate(raw); err == nil {
					return raw, nil
				}
			}
			lastErr = err
			p.logger.Warn("Generation attempt failed.",
				zap.String("tier", string(rung.tier)),
				zap.Int("attempt", i+1),
				zap.Error(err))
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("all model tiers exhausted: %w", lastErr)
}

// generateWithTimeout races the remote call against the pipeline's own
// timer. The service advertises its own deadline, but a hung connection
// must never stall the crawl, so the local timer always wins.
func (p *Pipeline) generateWithTimeout(ctx context.Context, req llmclient.GenerationRequest) (string, error) {
	timeout := p.cfg.CallTimeout
	if timeout <= 0 {
		timeout = 50 * time.Second
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.client.Generate(callCtx, req)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.text, res.err
	case <-timer.C:
		cancel()
		return "", fmt.Errorf("remote call exceeded client-side timeout of %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
