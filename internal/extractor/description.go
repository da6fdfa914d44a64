package extractor

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Address keyword checks guarding description scraping. The slow-scroll is
// expensive and must never run against a listing the tab drifted back to.
var (
	productAddressAllow = []string{"goods_id=", "/goods/", "/product/", "item.htm"}
	productAddressDeny  = []string{"/category", "/search", "/list", "captcha", "verify"}
)

const descriptionHeightExpr = `(() => {
	const el = document.querySelector('.product-detail__description, .goods-detail, [class*="detail-content"]');
	return el ? el.scrollHeight : 0;
})()`

const descriptionImagesExpr = `(() => {
	const root = document.querySelector('.product-detail__description, .goods-detail, [class*="detail-content"]');
	if (!root) return [];
	const tagged = Array.from(root.querySelectorAll('[data-detail-block] img'));
	const imgs = tagged.length > 0 ? tagged : Array.from(root.querySelectorAll('img'));
	return imgs.map(img => img.dataset.src || img.src || '').filter(Boolean);
})()`

// extractDescriptionImages collects the long-form description imagery.
// Lazy loading means the container must be scrolled through before any
// image src attributes are populated.
func (e *Extractor) extractDescriptionImages(ctx context.Context) ([]string, error) {
	addr, err := e.page.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	if !isProductAddress(addr) {
		e.logger.Debug("Not on a product page, skipping description images.", zap.String("url", addr))
		return nil, nil
	}

	var height float64
	if err := e.page.Evaluate(ctx, descriptionHeightExpr, &height); err != nil {
		return nil, err
	}
	if height <= 0 {
		return nil, nil
	}

	if err := e.motion.SlowScroll(ctx, height); err != nil {
		return nil, err
	}

	var urls []string
	if err := e.page.Evaluate(ctx, descriptionImagesExpr, &urls); err != nil {
		return nil, err
	}
	return cleanImageURLs(urls), nil
}

// isProductAddress reports whether the address still looks like a product
// detail page. Deny markers win over allow markers.
func isProductAddress(addr string) bool {
	lower := strings.ToLower(addr)
	for _, d := range productAddressDeny {
		if strings.Contains(lower, d) {
			return false
		}
	}
	for _, a := range productAddressAllow {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
