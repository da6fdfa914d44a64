package navigator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mobhervr3-png/chinak2/internal/config"
)

// Browser is the slice of the session surface the traversal loop needs.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
}

// Motion is the slice of the human-motion simulator the loop drives.
type Motion interface {
	Click(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, distance, variance float64) error
	Pause(ctx context.Context, meanMs, stdDevMs float64) error
	Break(ctx context.Context) error
}

// CredentialRotator swaps the active session credentials for fresh ones.
type CredentialRotator interface {
	Rotate(ctx context.Context) error
}

// ProductHandler processes the product page the tab is currently showing.
// Any error it returns is logged and the traversal moves on; handlers must
// not leave the tab on a page they cannot recover from.
type ProductHandler func(ctx context.Context) error

// region is a rectangular click target on the listing screen.
type region struct {
	x, y, w, h float64
}

// Navigator walks the listing by clicking screen regions, classifying what
// each click landed on, and invoking the product handler for detail pages.
type Navigator struct {
	cfg     config.CrawlerConfig
	logger  *zap.Logger
	browser Browser
	motion  Motion
	creds   CredentialRotator
	signals *Signals
	markers Markers
	limiter *rate.Limiter
	rng     *rand.Rand

	viewportW float64
	viewportH float64

	onProduct ProductHandler

	visited       int
	restCountdown int
}

// New assembles a traversal loop over the given collaborators. The viewport
// dimensions bound the click regions; rng drives region order, jitter, and
// the rest cadence.
func New(
	cfg config.CrawlerConfig,
	logger *zap.Logger,
	b Browser,
	m Motion,
	creds CredentialRotator,
	signals *Signals,
	viewportW, viewportH float64,
	rng *rand.Rand,
	onProduct ProductHandler,
) *Navigator {
	aps := cfg.ActionsPerSecond
	if aps <= 0 {
		aps = 0.5
	}
	n := &Navigator{
		cfg:       cfg,
		logger:    logger.Named("navigator"),
		browser:   b,
		motion:    m,
		creds:     creds,
		signals:   signals,
		markers:   DefaultMarkers(),
		limiter:   rate.NewLimiter(rate.Limit(aps), 1),
		rng:       rng,
		viewportW: viewportW,
		viewportH: viewportH,
		onProduct: onProduct,
	}
	n.restCountdown = n.drawRestCountdown()
	return n
}

// Visited returns how many product detail pages have been processed.
func (n *Navigator) Visited() int {
	return n.visited
}

// Run drives the traversal until the product limit is reached or ctx is
// cancelled. Individual product failures never stop the loop.
func (n *Navigator) Run(ctx context.Context) error {
	if err := n.navigateListingRoot(ctx); err != nil {
		return fmt.Errorf("initial navigation to listing: %w", err)
	}

	for n.visited < n.cfg.ProductLimit {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := n.sweepScreen(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			n.logger.Warn("Screen sweep failed, renavigating to listing.", zap.Error(err))
			if navErr := n.navigateListingRoot(ctx); navErr != nil {
				return fmt.Errorf("recover listing after sweep failure: %w", navErr)
			}
			continue
		}

		if n.visited >= n.cfg.ProductLimit {
			break
		}

		// Advance one screen-full down the listing.
		if err := n.motion.Scroll(ctx, n.viewportH*0.9, 0.2); err != nil {
			return err
		}
		if err := n.motion.Pause(ctx, 900, 250); err != nil {
			return err
		}
	}

	n.logger.Info("Traversal complete.", zap.Int("products_visited", n.visited))
	return nil
}

// sweepScreen clicks each region of the current screen-full once.
func (n *Navigator) sweepScreen(ctx context.Context) error {
	regions := n.regions()
	if n.cfg.RandomizeOrder {
		n.rng.Shuffle(len(regions), func(i, j int) {
			regions[i], regions[j] = regions[j], regions[i]
		})
	}

	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.visited >= n.cfg.ProductLimit {
			return nil
		}

		if n.signals.Blocked() {
			if err := n.recoverFromBlock(ctx); err != nil {
				return err
			}
			// The listing was re-entered from the root; restart the sweep.
			return nil
		}

		if err := n.signals.EnforceBackoff(ctx); err != nil {
			return err
		}
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}

		x, y := n.jitteredPoint(r)
		if err := n.motion.Click(ctx, x, y); err != nil {
			n.logger.Warn("Region click failed.", zap.Error(err))
			continue
		}

		if err := n.observe(ctx); err != nil {
			return err
		}

		state, addr := n.classifyCurrent(ctx)
		switch state {
		case StateProductDetail:
			n.handleProduct(ctx, addr)
			if err := n.returnToListing(ctx); err != nil {
				return err
			}
			if err := n.maybeRest(ctx); err != nil {
				return err
			}
		case StateBlocked:
			n.signals.MarkBlocked()
		case StateListing:
			n.logger.Debug("Region click stayed on listing, skipping.",
				zap.Float64("x", x), zap.Float64("y", y))
		default:
			n.logger.Debug("Region click landed on unclassified page.",
				zap.String("url", addr))
			if err := n.returnToListing(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Navigator) handleProduct(ctx context.Context, addr string) {
	n.logger.Info("Product detail reached.",
		zap.String("url", addr), zap.Int("visited", n.visited))
	if err := n.onProduct(ctx); err != nil {
		n.logger.Warn("Product handler failed, moving on.",
			zap.String("url", addr), zap.Error(err))
	}
	n.visited++
}

// observe waits the configured observation window with some spread, giving
// the click's navigation time to land.
func (n *Navigator) observe(ctx context.Context) error {
	window := n.cfg.ObserveWindow
	if window <= 0 {
		window = 4 * time.Second
	}
	mean := float64(window.Milliseconds())
	return n.motion.Pause(ctx, mean, mean*0.2)
}

func (n *Navigator) classifyCurrent(ctx context.Context) (State, string) {
	addr, err := n.browser.CurrentURL(ctx)
	if err != nil {
		n.logger.Warn("Could not read current address.", zap.Error(err))
		return StateUnknown, ""
	}
	return Classify(addr, n.markers), addr
}

// returnToListing issues bounded back-navigations, re-classifying after
// each, and falls back to a forced reload of the listing root.
func (n *Navigator) returnToListing(ctx context.Context) error {
	attempts := n.cfg.BackAttempts
	if attempts < 1 {
		attempts = 3
	}
	for i := 0; i < attempts; i++ {
		if err := n.browser.NavigateBack(ctx); err != nil {
			n.logger.Debug("Back navigation failed.", zap.Int("attempt", i+1), zap.Error(err))
			break
		}
		if err := n.motion.Pause(ctx, 1200, 300); err != nil {
			return err
		}
		if state, _ := n.classifyCurrent(ctx); state == StateListing {
			return nil
		}
	}

	n.logger.Debug("Back navigation exhausted, forcing listing reload.")
	return n.navigateListingRoot(ctx)
}

// navigateListingRoot loads the listing root, retrying transient failures
// with exponential backoff.
func (n *Navigator) navigateListingRoot(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		return n.browser.Navigate(ctx, n.cfg.ListingURL)
	}, policy)
}

// recoverFromBlock rotates credentials, re-enters the listing from the
// root, and clears the block flag.
func (n *Navigator) recoverFromBlock(ctx context.Context) error {
	n.logger.Warn("Block flag set, rotating credentials.")

	if err := n.signals.EnforceBackoff(ctx); err != nil {
		return err
	}
	if err := n.creds.Rotate(ctx); err != nil {
		return fmt.Errorf("credential rotation: %w", err)
	}
	if err := n.navigateListingRoot(ctx); err != nil {
		return fmt.Errorf("re-enter listing after rotation: %w", err)
	}
	n.signals.ClearBlock()
	n.logger.Info("Block recovery complete.")
	return nil
}

// maybeRest inserts a long idle pause after a randomized number of detail
// visits, then redraws the countdown.
func (n *Navigator) maybeRest(ctx context.Context) error {
	n.restCountdown--
	if n.restCountdown > 0 {
		return nil
	}
	n.restCountdown = n.drawRestCountdown()
	n.logger.Info("Taking a rest pause.", zap.Int("next_rest_after", n.restCountdown))
	return n.motion.Break(ctx)
}

func (n *Navigator) drawRestCountdown() int {
	lo, hi := n.cfg.RestEveryMin, n.cfg.RestEveryMax
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo + n.rng.Intn(hi-lo+1)
}

// regions divides the current screen-full into click targets. Quadrant
// layout yields a 2x2 grid below the header band; slot layout yields five
// stacked full-width bands.
func (n *Navigator) regions() []region {
	// The top band is masthead and filters, never product cells.
	top := n.viewportH * 0.15
	usableH := n.viewportH - top

	if n.cfg.Layout == config.LayoutVerticalSlot {
		const slots = 5
		out := make([]region, 0, slots)
		slotH := usableH / slots
		for i := 0; i < slots; i++ {
			out = append(out, region{
				x: 0, y: top + float64(i)*slotH,
				w: n.viewportW, h: slotH,
			})
		}
		return out
	}

	halfW, halfH := n.viewportW/2, usableH/2
	return []region{
		{x: 0, y: top, w: halfW, h: halfH},
		{x: halfW, y: top, w: halfW, h: halfH},
		{x: 0, y: top + halfH, w: halfW, h: halfH},
		{x: halfW, y: top + halfH, w: halfW, h: halfH},
	}
}

// jitteredPoint picks a uniformly random point within the central 60% of a
// region, keeping clicks off cell borders.
func (n *Navigator) jitteredPoint(r region) (float64, float64) {
	x := r.x + r.w*0.2 + n.rng.Float64()*r.w*0.6
	y := r.y + r.h*0.2 + n.rng.Float64()*r.h*0.6
	return x, y
}
