package orchestrator

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/browser"
	"github.com/mobhervr3-png/chinak2/internal/credentials"
	"github.com/mobhervr3-png/chinak2/internal/motion"
)

// tabMotion binds the motion simulator to one browser tab. Simulated input
// must be dispatched on an executor-carrying CDP context, not the traversal
// loop's context; chromedp.Run provides one. Loop cancellation is
// cooperative: it is observed at action boundaries, in-flight gestures
// finish naturally.
type tabMotion struct {
	sim     *motion.Simulator
	session *browser.Session
}

func newTabMotion(sim *motion.Simulator, session *browser.Session) *tabMotion {
	return &tabMotion{sim: sim, session: session}
}

func (t *tabMotion) onTab(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(t.session.Context(), chromedp.ActionFunc(fn))
}

func (t *tabMotion) Click(ctx context.Context, x, y float64) error {
	return t.onTab(ctx, func(cdpCtx context.Context) error {
		return t.sim.Click(cdpCtx, x, y)
	})
}

func (t *tabMotion) Scroll(ctx context.Context, distance, variance float64) error {
	return t.onTab(ctx, func(cdpCtx context.Context) error {
		return t.sim.Scroll(cdpCtx, distance, variance)
	})
}

func (t *tabMotion) SlowScroll(ctx context.Context, totalHeight float64) error {
	return t.onTab(ctx, func(cdpCtx context.Context) error {
		return t.sim.SlowScroll(cdpCtx, totalHeight)
	})
}

func (t *tabMotion) Pause(ctx context.Context, meanMs, stdDevMs float64) error {
	return t.onTab(ctx, func(cdpCtx context.Context) error {
		return t.sim.Pause(cdpCtx, meanMs, stdDevMs)
	})
}

func (t *tabMotion) Break(ctx context.Context) error {
	return t.onTab(ctx, func(cdpCtx context.Context) error {
		return t.sim.Break(cdpCtx)
	})
}

// viewport reads the tab's visible dimensions through the simulator's
// executor.
func viewport(session *browser.Session, exec motion.Executor) (float64, float64, error) {
	var vp motion.Viewport
	err := chromedp.Run(session.Context(), chromedp.ActionFunc(func(cdpCtx context.Context) error {
		var vpErr error
		vp, vpErr = exec.Viewport(cdpCtx)
		return vpErr
	}))
	if err != nil {
		return 0, 0, fmt.Errorf("read viewport: %w", err)
	}
	return vp.Width, vp.Height, nil
}

// cookieRotator swaps browsing-session credential profiles on the live tab.
// It remembers the installed profile so refreshed cookies can be written
// back at shutdown.
type cookieRotator struct {
	pool    *credentials.Pool
	session *browser.Session
	logger  *zap.Logger
	active  *credentials.Profile
}

func newCookieRotator(pool *credentials.Pool, session *browser.Session, logger *zap.Logger) *cookieRotator {
	return &cookieRotator{pool: pool, session: session, logger: logger.Named("rotator")}
}

// Rotate wipes the active cookies and installs a freshly drawn profile.
// An empty pool fails soft: the session continues without credentials.
func (r *cookieRotator) Rotate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(r.session.Context(), chromedp.ActionFunc(func(cdpCtx context.Context) error {
		if err := r.pool.ClearActive(cdpCtx); err != nil {
			return err
		}
		profile, err := r.pool.LoadRandom()
		if err != nil {
			return err
		}
		if err := r.pool.Install(cdpCtx, profile); err != nil {
			return err
		}
		r.active = profile
		return nil
	}))
}

// PersistActive writes the tab's current cookies back to the installed
// profile's file. A no-op when nothing was installed.
func (r *cookieRotator) PersistActive(ctx context.Context) error {
	if r.active == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(r.session.Context(), chromedp.ActionFunc(func(cdpCtx context.Context) error {
		return r.pool.Persist(cdpCtx, r.active)
	}))
}
