package extractor

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// imageDenylist drops non-product imagery by URL substring.
var imageDenylist = []string{
	"icon", "avatar", "coupon", "video-thumb", "play-btn",
	"logo", "sprite", "placeholder", "loading",
}

// imageStrategies are tried in order; the first strategy yielding any URL
// wins and the rest are skipped.
var imageStrategies = []struct {
	name string
	expr string
}{
	{
		// The gallery thumbnails carry an explicit ordering attribute.
		"ordered gallery attribute",
		`(() => {
			const els = Array.from(document.querySelectorAll('[data-gallery-index]'));
			els.sort((a, b) => Number(a.dataset.galleryIndex) - Number(b.dataset.galleryIndex));
			return els.map(el => el.dataset.src || el.src || '').filter(Boolean);
		})()`,
	},
	{
		"main gallery container",
		`(() => {
			const root = document.querySelector('.product-intro__main-image, .goods-gallery');
			if (!root) return [];
			return Array.from(root.querySelectorAll('img'))
				.map(img => img.dataset.src || img.src || '').filter(Boolean);
		})()`,
	},
	{
		"generic sliders",
		`(() => {
			const root = document.querySelector('.swiper-wrapper, .slider, [class*="carousel"]');
			if (!root) return [];
			return Array.from(root.querySelectorAll('img'))
				.map(img => img.dataset.src || img.src || '').filter(Boolean);
		})()`,
	},
	{
		// Last resort: large images in the upper 60% of the viewport with a
		// roughly square aspect ratio.
		"viewport heuristic",
		`(() => {
			const limitY = window.innerHeight * 0.6;
			return Array.from(document.images).filter(img => {
				const r = img.getBoundingClientRect();
				if (r.top > limitY || r.width < 200 || r.height === 0) return false;
				const ratio = r.width / r.height;
				return ratio > 0.6 && ratio < 1.8;
			}).map(img => img.dataset.src || img.src || '').filter(Boolean);
		})()`,
	},
}

func (e *Extractor) extractImages(ctx context.Context) ([]string, error) {
	for _, s := range imageStrategies {
		var urls []string
		if err := e.page.Evaluate(ctx, s.expr, &urls); err != nil {
			e.logger.Debug("Image strategy errored.", zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		if cleaned := cleanImageURLs(urls); len(cleaned) > 0 {
			e.logger.Debug("Images resolved.",
				zap.String("strategy", s.name), zap.Int("count", len(cleaned)))
			return cleaned, nil
		}
	}
	return nil, nil
}

// cleanImageURLs normalizes scheme-relative URLs, applies the denylist, and
// deduplicates by URL path ignoring the query string. Order is preserved;
// the first occurrence of a path wins.
func cleanImageURLs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, r := range raw {
		u := normalizeImageURL(r)
		if u == "" || deniedImageURL(u) {
			continue
		}
		key := pathKey(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

func normalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "data:") {
		return ""
	}
	return raw
}

func deniedImageURL(u string) bool {
	lower := strings.ToLower(u)
	for _, d := range imageDenylist {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// pathKey reduces a URL to host+path. Query strings carry sizing and cache
// noise and never distinguish product images.
func pathKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host + u.Path
}
