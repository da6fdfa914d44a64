package navigator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimitState tracks 429 pressure from the remote surface. Each hit
// doubles the pending backoff up to a cap; the pending value is consumed by
// the traversal loop as an enforced sleep.
type RateLimitState struct {
	Hits           int
	PendingBackoff time.Duration
	LastHit        time.Time
}

// Signals is the process-shared coordination state between the session's
// network observer and the traversal loop. The observer runs on the CDP
// event loop, so all access is mutex-guarded.
type Signals struct {
	mu sync.Mutex

	blocked bool
	rate    RateLimitState

	initialBackoff time.Duration
	maxBackoff     time.Duration

	logger *zap.Logger
}

// NewSignals creates signal state with the given backoff band.
func NewSignals(initialBackoff, maxBackoff time.Duration, logger *zap.Logger) *Signals {
	if initialBackoff <= 0 {
		initialBackoff = 30 * time.Second
	}
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}
	return &Signals{
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger.Named("signals"),
	}
}

// ObserveResponse implements browser.ResponseObserver. 403 and 424 mark the
// session as blocked outright; 429 marks it blocked and escalates the
// rate-limit backoff.
func (s *Signals) ObserveResponse(statusCode int64, url string) {
	switch statusCode {
	case 403, 424:
		s.mu.Lock()
		s.blocked = true
		s.mu.Unlock()
		s.logger.Warn("Block status observed on response.",
			zap.Int64("status", statusCode), zap.String("url", url))
	case 429:
		s.mu.Lock()
		s.blocked = true
		s.rate.Hits++
		s.rate.LastHit = time.Now()
		if s.rate.PendingBackoff == 0 {
			s.rate.PendingBackoff = s.initialBackoff
		} else {
			s.rate.PendingBackoff *= 2
			if s.rate.PendingBackoff > s.maxBackoff {
				s.rate.PendingBackoff = s.maxBackoff
			}
		}
		pending := s.rate.PendingBackoff
		s.mu.Unlock()
		s.logger.Warn("Rate limit observed, backoff escalated.",
			zap.String("url", url), zap.Duration("pending_backoff", pending))
	}
}

// MarkBlocked flips the block flag from the loop side, used when a blocked
// address is classified rather than an HTTP status observed.
func (s *Signals) MarkBlocked() {
	s.mu.Lock()
	s.blocked = true
	s.mu.Unlock()
}

// Blocked reports whether a block marker has been observed since the last
// clear.
func (s *Signals) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// ClearBlock resets the block flag after recovery completes. The rate-limit
// history is kept; backoff pressure decays only via EnforceBackoff.
func (s *Signals) ClearBlock() {
	s.mu.Lock()
	s.blocked = false
	s.mu.Unlock()
}

// RateLimit returns a copy of the current rate-limit state.
func (s *Signals) RateLimit() RateLimitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// EnforceBackoff sleeps out any pending rate-limit backoff, then resets the
// pending value to zero so the next 429 starts the doubling again from the
// initial step. Returns early only on context cancellation.
func (s *Signals) EnforceBackoff(ctx context.Context) error {
	s.mu.Lock()
	pending := s.rate.PendingBackoff
	s.rate.PendingBackoff = 0
	s.mu.Unlock()

	if pending <= 0 {
		return nil
	}

	s.logger.Info("Enforcing rate-limit backoff.", zap.Duration("sleep", pending))
	timer := time.NewTimer(pending)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
