package extractor

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrLoginWall signals that the product page rendered without any usable
// name, which in practice means the storefront demanded a login. The
// product is abandoned; the traversal continues.
var ErrLoginWall = errors.New("extractor: login wall detected, product name unavailable")

// Page is the slice of the browser session the extractor reads through.
type Page interface {
	Evaluate(ctx context.Context, expression string, res interface{}) error
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
	Reload(ctx context.Context) error
}

// Motion drives the interactive parts of extraction (variant selector,
// review tab, lazy-load scrolling).
type Motion interface {
	Click(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, distance, variance float64) error
	SlowScroll(ctx context.Context, totalHeight float64) error
	Pause(ctx context.Context, meanMs, stdDevMs float64) error
}

// Extractor reads one product detail page into a Snapshot. Field failures
// short of a login wall are partial: logged, left empty, extraction
// continues.
type Extractor struct {
	page   Page
	motion Motion
	logger *zap.Logger

	viewportW float64
	viewportH float64
}

// New creates an extractor bound to a session and motion simulator. The
// viewport dimensions anchor the geometric clicks.
func New(page Page, motion Motion, viewportW, viewportH float64, logger *zap.Logger) *Extractor {
	return &Extractor{
		page:      page,
		motion:    motion,
		logger:    logger.Named("extractor"),
		viewportW: viewportW,
		viewportH: viewportH,
	}
}

// Extract reads every field of the current product page. Only a login wall
// returns an error; anything else degrades to an empty field.
func (e *Extractor) Extract(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	addr, err := e.page.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	snap.SourceURL = addr

	name, err := e.extractName(ctx)
	if err != nil {
		return nil, err
	}
	snap.Name = name

	if price, err := e.extractMainPrice(ctx); err != nil {
		e.logger.Warn("Price extraction failed.", zap.Error(err))
	} else {
		snap.MainPagePrice = price
	}

	if images, err := e.extractImages(ctx); err != nil {
		e.logger.Warn("Image extraction failed.", zap.Error(err))
	} else {
		snap.Images = images
	}

	if text, err := e.extractDescriptionText(ctx); err != nil {
		e.logger.Warn("Description text extraction failed.", zap.Error(err))
	} else {
		snap.DescriptionText = text
	}

	if variants, err := e.extractVariants(ctx); err != nil {
		e.logger.Warn("Variant extraction failed.", zap.Error(err))
	} else {
		snap.Variants = variants
	}

	if reviews, err := e.extractReviews(ctx); err != nil {
		e.logger.Warn("Review extraction failed.", zap.Error(err))
	} else {
		snap.Reviews = reviews
	}

	if descImages, err := e.extractDescriptionImages(ctx); err != nil {
		e.logger.Warn("Description image extraction failed.", zap.Error(err))
	} else {
		snap.DescriptionImages = descImages
	}

	return snap, nil
}

// -- Name --

// nameStrategies are tried in order; the first non-empty result wins.
var nameStrategies = []struct {
	name string
	expr string
}{
	{
		"scoped title",
		`(() => {
			const el = document.querySelector('.product-intro .product-intro__head-name');
			return el ? el.textContent.trim() : '';
		})()`,
	},
	{
		"unscoped title",
		`(() => {
			const el = document.querySelector('.product-intro__head-name, .goods-name, h1[class*="name"]');
			return el ? el.textContent.trim() : '';
		})()`,
	},
	{
		"document title",
		`(() => (document.title || '').trim())()`,
	},
}

func (e *Extractor) extractName(ctx context.Context) (string, error) {
	for _, s := range nameStrategies {
		var name string
		if err := e.page.Evaluate(ctx, s.expr, &name); err != nil {
			e.logger.Debug("Name strategy errored.", zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		if name != "" {
			e.logger.Debug("Name resolved.", zap.String("strategy", s.name))
			return name, nil
		}
	}
	return "", ErrLoginWall
}

// -- Price --

var priceRe = regexp.MustCompile(`¥\s*([0-9]+(?:\.[0-9]{1,2})?)`)

// leafTextsExpr collects the text of element nodes with no element
// children, the only places the storefront renders a bare price.
const leafTextsExpr = `(() => {
	const out = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	let node;
	while ((node = walker.nextNode())) {
		if (node.children.length === 0) {
			const t = node.textContent.trim();
			if (t) out.push(t);
		}
	}
	return out.slice(0, 2000);
})()`

func (e *Extractor) extractMainPrice(ctx context.Context) (float64, error) {
	var texts []string
	if err := e.page.Evaluate(ctx, leafTextsExpr, &texts); err != nil {
		return 0, err
	}
	return parsePrice(texts), nil
}

// parsePrice finds the first currency-prefixed number among leaf texts.
// Returns zero when no price is present.
func parsePrice(texts []string) float64 {
	for _, t := range texts {
		m := priceRe.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return v
	}
	return 0
}

// -- Description text --

const descriptionTextExpr = `(() => {
	const el = document.querySelector('.product-intro__description, .goods-desc, [class*="description"]');
	return el ? el.innerText.trim() : '';
})()`

func (e *Extractor) extractDescriptionText(ctx context.Context) (string, error) {
	var text string
	if err := e.page.Evaluate(ctx, descriptionTextExpr, &text); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
