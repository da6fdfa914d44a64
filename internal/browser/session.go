package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/browser/stealth"
	"github.com/mobhervr3-png/chinak2/internal/config"
)

// ResponseObserver receives the status code and URL of every network
// response observed on the session's tab. Implementations must be safe for
// concurrent use; the callback runs on the CDP event loop.
type ResponseObserver interface {
	ObserveResponse(statusCode int64, url string)
}

// runActions is swapped out in tests so sessions never need a live browser.
var runActions = chromedp.Run

// Session manages a single, isolated browser tab.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	onClose func()

	isClosed bool
	mu       sync.Mutex
}

// newSession creates a tab off the allocator context, applies the stealth
// persona, and wires the response observer before any navigation happens.
func newSession(
	allocCtx context.Context,
	cfg *config.Config,
	persona stealth.Persona,
	logger *zap.Logger,
	observer ResponseObserver,
) (*Session, error) {
	id := uuid.New().String()

	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", id[:8])),
	}

	sessionCtx, cancel := chromedp.NewContext(allocCtx)
	s.sessionCtx = sessionCtx
	s.sessionCancel = cancel

	// Register the listener before the first Run so no response slips past.
	if observer != nil {
		chromedp.ListenTarget(sessionCtx, func(ev interface{}) {
			if resp, ok := ev.(*network.EventResponseReceived); ok {
				observer.ObserveResponse(resp.Response.Status, resp.Response.URL)
			}
		})
	}

	// An empty Run attaches the target; failure here means the tab is dead.
	if err := runActions(sessionCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach browser tab: %w", err)
	}

	// Detection evasion is best effort: a partially applied persona is
	// still a usable session.
	if err := runActions(sessionCtx, stealth.Apply(persona, s.logger)); err != nil {
		s.logger.Warn("Stealth persona only partially applied, continuing.", zap.Error(err))
	}

	s.logger.Info("Browser session initialized.")
	return s, nil
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string {
	return s.id
}

// Context returns the underlying tab context for callers that dispatch raw
// CDP commands (input events, cookie management).
func (s *Session) Context() context.Context {
	return s.sessionCtx
}

// Navigate loads a URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	runCtx, cancel := s.boundedCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// NavigateBack walks one entry back in the tab's history. It returns an
// error when there is no previous entry to go back to.
func (s *Session) NavigateBack(ctx context.Context) error {
	runCtx, cancel := s.boundedCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		currentIndex, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return fmt.Errorf("read navigation history: %w", err)
		}
		if currentIndex <= 0 {
			return fmt.Errorf("no history entry to go back to")
		}
		return page.NavigateToHistoryEntry(entries[currentIndex-1].ID).Do(ctx)
	}))
}

// CurrentURL returns the address of the tab's active document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := s.boundedCtx(ctx)
	defer cancel()
	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Reload forces a reload of the current document and waits for the body.
func (s *Session) Reload(ctx context.Context) error {
	runCtx, cancel := s.boundedCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Evaluate runs a JavaScript expression in the page and unmarshals the
// result into res. Pass nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, expression string, res interface{}) error {
	runCtx, cancel := s.boundedCtx(ctx)
	defer cancel()
	if res == nil {
		return chromedp.Run(runCtx, chromedp.Evaluate(expression, nil))
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(expression, res))
}

// boundedCtx derives a tab-bound context that also respects the caller's
// deadline and the configured navigation timeout.
func (s *Session) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Crawler.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return context.WithTimeout(s.sessionCtx, timeout)
}

// Close safely terminates the browser tab.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	sessionCancel := s.sessionCancel
	sessionCtx := s.sessionCtx
	onClose := s.onClose
	s.mu.Unlock()

	if sessionCancel != nil {
		sessionCancel()
	}

	if sessionCtx != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
		defer cancelWait()

		select {
		case <-sessionCtx.Done():
			s.logger.Debug("Browser session closed gracefully.")
		case <-waitCtx.Done():
			s.logger.Warn("Deadline exceeded waiting for browser session to close.", zap.Error(waitCtx.Err()))
		}
	}

	if onClose != nil {
		onClose()
	}
	return nil
}
