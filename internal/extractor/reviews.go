package extractor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Candidate selectors for the review tab; layouts vary per category.
var reviewTabSelectors = []string{
	".product-intro__review-entry",
	".goods-review__tab",
	"a[href*='review']",
	"[class*='comment'] a",
}

const reviewBackAttempts = 3

// reviewTabRectExpr finds the first visible candidate and returns its
// center in viewport coordinates.
const reviewTabRectExpr = `((selectors) => {
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (!el) continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		return {found: true, x: r.left + r.width / 2, y: r.top + r.height / 2};
	}
	return {found: false, x: 0, y: 0};
})(%s)`

const reviewItemsExpr = `(() => {
	const root = document.querySelector('.review-list, .comment-list, [class*="review"] ul');
	if (!root) return [];
	return Array.from(root.querySelectorAll('li, .review-item')).map(item => {
		const name = item.querySelector('[class*="name"], [class*="author"]');
		const text = item.querySelector('[class*="content"], [class*="text"], p');
		const variant = item.querySelector('[class*="sku"], [class*="spec"], [class*="variant"]');
		const photos = Array.from(item.querySelectorAll('img'))
			.map(img => img.dataset.src || img.src || '').filter(Boolean);
		return {
			author: name ? name.textContent.trim() : '',
			text: text ? text.textContent.trim() : '',
			variant: variant ? variant.textContent.trim() : '',
			photos: photos
		};
	}).filter(r => r.text !== '');
})()`

type reviewTabRect struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type rawReviewItem struct {
	Author  string   `json:"author"`
	Text    string   `json:"text"`
	Variant string   `json:"variant"`
	Photos  []string `json:"photos"`
}

// extractReviews opens the review screen, harvests one pass of reviews, and
// returns to the product page. An address that never changes after the tab
// click means the click missed; no reviews are reported.
func (e *Extractor) extractReviews(ctx context.Context) ([]Review, error) {
	productURL, err := e.page.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}

	var rect reviewTabRect
	expr := fmt.Sprintf(reviewTabRectExpr, jsStringArray(reviewTabSelectors))
	if err := e.page.Evaluate(ctx, expr, &rect); err != nil {
		return nil, err
	}
	if !rect.Found {
		e.logger.Debug("No review tab found.")
		return nil, nil
	}

	if err := e.motion.Click(ctx, rect.X, rect.Y); err != nil {
		return nil, err
	}
	if err := e.motion.Pause(ctx, 1500, 400); err != nil {
		return nil, err
	}

	afterURL, err := e.page.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	if afterURL == productURL {
		e.logger.Debug("Review tab click did not change the address, skipping reviews.")
		return nil, nil
	}

	// Bounded sweep to flush lazy-loaded review items.
	if err := e.motion.SlowScroll(ctx, e.viewportH*3); err != nil {
		return nil, err
	}

	var items []rawReviewItem
	readErr := e.page.Evaluate(ctx, reviewItemsExpr, &items)

	if err := e.returnTo(ctx, productURL); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}

	reviews := make([]Review, 0, len(items))
	for _, it := range items {
		reviews = append(reviews, Review{
			Author:           it.Author,
			Text:             it.Text,
			PurchasedVariant: it.Variant,
			PhotoURLs:        cleanImageURLs(it.Photos),
		})
	}
	return reviews, nil
}

// returnTo walks back in history until the tab shows targetURL, falling
// back to a forced navigation when the bounded attempts run out.
func (e *Extractor) returnTo(ctx context.Context, targetURL string) error {
	for i := 0; i < reviewBackAttempts; i++ {
		if err := e.page.NavigateBack(ctx); err != nil {
			e.logger.Debug("Back navigation failed.", zap.Int("attempt", i+1), zap.Error(err))
			break
		}
		if err := e.motion.Pause(ctx, 1000, 250); err != nil {
			return err
		}
		addr, err := e.page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if addr == targetURL {
			return nil
		}
	}

	e.logger.Debug("Forcing direct navigation back to the product page.", zap.String("url", targetURL))
	if err := e.page.Navigate(ctx, targetURL); err != nil {
		return err
	}
	addr, err := e.page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if addr == targetURL {
		return nil
	}
	// Some review overlays trap in-page navigation; a hard reload clears
	// the stuck state.
	e.logger.Debug("Direct navigation did not settle, reloading.", zap.String("url", targetURL))
	return e.page.Reload(ctx)
}

// jsStringArray renders a Go string slice as a JS array literal.
func jsStringArray(items []string) string {
	out := "["
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", s)
	}
	return out + "]"
}
