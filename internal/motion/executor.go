// Filename: internal/motion/executor.go
package motion

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Executor defines the contract for dispatching simulated input to the
// browser, allowing for mocking during tests.
type Executor interface {
	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a mouse event using agnostic data structures.
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error

	// Viewport retrieves the current visible viewport dimensions.
	Viewport(ctx context.Context) (Viewport, error)
}

// CDPExecutor is the production implementation of the Executor interface.
type CDPExecutor struct{}

// NewCDPExecutor creates a production-ready executor.
func NewCDPExecutor() *CDPExecutor {
	return &CDPExecutor{}
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Sleep(d).Do(ctx)
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, data MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y)
	if data.Button != "" && data.Button != ButtonNone {
		p = p.WithButton(input.MouseButton(data.Button))
	}
	if data.ClickCount > 0 {
		p = p.WithClickCount(int64(data.ClickCount))
	}
	if data.Type == MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	ts := input.TimeSinceEpoch(time.Now())
	return p.WithTimestamp(&ts).Do(ctx)
}

func (e *CDPExecutor) Viewport(ctx context.Context) (Viewport, error) {
	_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
	if err != nil {
		return Viewport{}, err
	}
	if cssVisualViewport == nil {
		return Viewport{Width: 1280, Height: 800}, nil
	}
	return Viewport{
		Width:  cssVisualViewport.ClientWidth,
		Height: cssVisualViewport.ClientHeight,
	}, nil
}
