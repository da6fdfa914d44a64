package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// The variant selector has no stable trigger selector, so it is opened and
// closed by clicking fixed proportional screen positions: the option bar,
// then the expanded panel's header; closing hits the panel's dismiss
// region twice to cover both overlay layouts.
type relPoint struct{ x, y float64 }

var (
	variantOpenPoints  = []relPoint{{0.50, 0.86}, {0.50, 0.60}}
	variantClosePoints = []relPoint{{0.92, 0.10}, {0.50, 0.06}}
)

// variantItemsExpr reads the open selector's option list.
const variantItemsExpr = `(() => {
	const root = document.querySelector('.product-variant__list, .sku-list, [class*="variant"] ul');
	if (!root) return [];
	return Array.from(root.querySelectorAll('li')).map(li => {
		const img = li.querySelector('img');
		const priceEl = li.querySelector('[class*="price"]');
		return {
			label: li.textContent.trim(),
			image: img ? (img.dataset.src || img.src || '') : '',
			price: priceEl ? priceEl.textContent.trim() : ''
		};
	});
})()`

type rawVariantItem struct {
	Label string `json:"label"`
	Image string `json:"image"`
	Price string `json:"price"`
}

func (e *Extractor) extractVariants(ctx context.Context) ([]VariantOption, error) {
	for _, p := range variantOpenPoints {
		if err := e.motion.Click(ctx, p.x*e.viewportW, p.y*e.viewportH); err != nil {
			return nil, err
		}
		if err := e.motion.Pause(ctx, 600, 150); err != nil {
			return nil, err
		}
	}

	var items []rawVariantItem
	readErr := e.page.Evaluate(ctx, variantItemsExpr, &items)

	// Close the selector regardless of how the read went; leaving it open
	// breaks every later geometric interaction on the page.
	for _, p := range variantClosePoints {
		if err := e.motion.Click(ctx, p.x*e.viewportW, p.y*e.viewportH); err != nil {
			e.logger.Warn("Variant selector close click failed.", zap.Error(err))
			break
		}
		if err := e.motion.Pause(ctx, 400, 100); err != nil {
			return nil, err
		}
	}

	if readErr != nil {
		return nil, readErr
	}
	return buildVariants(items), nil
}

// buildVariants cleans labels, drops junk fragments, and deduplicates by
// cleaned label, keeping first occurrence order.
func buildVariants(items []rawVariantItem) []VariantOption {
	seen := make(map[string]struct{}, len(items))
	out := make([]VariantOption, 0, len(items))

	for _, it := range items {
		label := cleanVariantLabel(it.Label)
		if !keepVariantLabel(label) {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, VariantOption{
			Label:    label,
			ImageURL: normalizeImageURL(it.Image),
			Price:    parseVariantPrice(it.Price),
		})
	}
	return out
}

var (
	trailingPriceRe = regexp.MustCompile(`¥\s*[0-9]+(?:\.[0-9]{1,2})?\s*$`)
	bracketedRe     = regexp.MustCompile(`[【\[(（][^】\])）]*[】\])）]`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// Promotional tails the storefront appends to option labels.
var promoSuffixes = []string{"热卖", "包邮", "促销", "秒杀", "新品", "推荐", "现货"}

// cleanVariantLabel strips promotional suffixes and a trailing embedded
// price, then normalizes whitespace.
func cleanVariantLabel(raw string) string {
	s := bracketedRe.ReplaceAllString(raw, " ")
	s = trailingPriceRe.ReplaceAllString(strings.TrimSpace(s), "")
	for _, suffix := range promoSuffixes {
		s = strings.TrimSuffix(strings.TrimSpace(s), suffix)
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// keepVariantLabel rejects empty labels and single-character fragments
// unless the character is an ideograph or Hangul syllable, which are valid
// one-character color names ("白", "빨").
func keepVariantLabel(label string) bool {
	if label == "" {
		return false
	}
	if utf8.RuneCountInString(label) > 1 {
		return true
	}
	r, _ := utf8.DecodeRuneInString(label)
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r)
}

func parseVariantPrice(raw string) float64 {
	m := priceRe.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
