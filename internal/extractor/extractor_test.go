package extractor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -- Test Doubles --

type scriptStub struct {
	// marker is a substring identifying which script the stub answers.
	marker string
	value  interface{}
}

// fakePage answers Evaluate calls by matching the expression against an
// ordered stub list; unmatched scripts yield a zero result.
type fakePage struct {
	current   string
	stubs     []scriptStub
	navigated []string
	backs     int
	reloads   int
	// navStuck keeps the address unchanged across navigation, simulating
	// a page that traps in-place.
	navStuck bool
}

func (f *fakePage) Evaluate(_ context.Context, expr string, res interface{}) error {
	for _, s := range f.stubs {
		if strings.Contains(expr, s.marker) {
			if res == nil {
				return nil
			}
			b, err := json.Marshal(s.value)
			if err != nil {
				return err
			}
			return json.Unmarshal(b, res)
		}
	}
	return nil
}

func (f *fakePage) CurrentURL(context.Context) (string, error) { return f.current, nil }

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if !f.navStuck {
		f.current = url
	}
	return nil
}

func (f *fakePage) NavigateBack(context.Context) error {
	f.backs++
	return nil
}

func (f *fakePage) Reload(context.Context) error {
	f.reloads++
	return nil
}

type noopMotion struct {
	clicks int
}

func (m *noopMotion) Click(context.Context, float64, float64) error {
	m.clicks++
	return nil
}
func (m *noopMotion) Scroll(context.Context, float64, float64) error { return nil }
func (m *noopMotion) SlowScroll(context.Context, float64) error      { return nil }
func (m *noopMotion) Pause(context.Context, float64, float64) error  { return nil }

// -- Pure helpers --

func TestCleanVariantLabel(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"plain label untouched", "黑色T恤", "黑色T恤"},
		{"trailing price stripped", "黑色T恤 ¥29.90", "黑色T恤"},
		{"promo suffix stripped", "黑色T恤包邮", "黑色T恤"},
		{"bracketed promo removed", "黑色T恤【限时特价】", "黑色T恤"},
		{"whitespace normalized", "  黑色   T恤  ", "黑色 T恤"},
		{"price and promo combined", "白色促销 ¥15", "白色"},
		{"empty input", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanVariantLabel(tc.in))
		})
	}
}

func TestKeepVariantLabel(t *testing.T) {
	testCases := []struct {
		name  string
		label string
		want  bool
	}{
		{"multi-character label kept", "黑色", true},
		{"single ideograph kept", "白", true},
		{"single hangul syllable kept", "빨", true},
		{"single latin letter dropped", "a", false},
		{"single digit dropped", "3", false},
		{"single punctuation dropped", "-", false},
		{"empty dropped", "", false},
		{"multi-character latin kept", "XL", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, keepVariantLabel(tc.label))
		})
	}
}

func TestBuildVariantsDedup(t *testing.T) {
	items := []rawVariantItem{
		{Label: "白 ¥20", Image: "//img.example.com/w.jpg", Price: "¥20"},
		{Label: "白", Image: "//img.example.com/w2.jpg"},
		{Label: "黑色", Price: "¥25.50"},
		{Label: "a"},
		{Label: ""},
	}

	got := buildVariants(items)
	require.Len(t, got, 2)

	assert.Equal(t, "白", got[0].Label)
	assert.Equal(t, "https://img.example.com/w.jpg", got[0].ImageURL)
	assert.Equal(t, 20.0, got[0].Price)

	assert.Equal(t, "黑色", got[1].Label)
	assert.Equal(t, 25.5, got[1].Price)
}

func TestCleanImageURLs(t *testing.T) {
	t.Run("dedup ignores query string", func(t *testing.T) {
		got := cleanImageURLs([]string{
			"https://img.example.com/a.jpg?size=200",
			"https://img.example.com/a.jpg?size=800",
			"https://img.example.com/b.jpg",
		})
		assert.Equal(t, []string{
			"https://img.example.com/a.jpg?size=200",
			"https://img.example.com/b.jpg",
		}, got)
	})

	t.Run("denylist filters non-product imagery", func(t *testing.T) {
		got := cleanImageURLs([]string{
			"https://img.example.com/product/1.jpg",
			"https://img.example.com/icon/cart.png",
			"https://img.example.com/user-avatar.png",
			"https://img.example.com/coupon-banner.jpg",
		})
		assert.Equal(t, []string{"https://img.example.com/product/1.jpg"}, got)
	})

	t.Run("scheme-relative URLs normalized, data URIs dropped", func(t *testing.T) {
		got := cleanImageURLs([]string{
			"//img.example.com/c.jpg",
			"data:image/gif;base64,R0lGOD",
			"",
		})
		assert.Equal(t, []string{"https://img.example.com/c.jpg"}, got)
	})
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name  string
		texts []string
		want  float64
	}{
		{"first match wins", []string{"热卖", "¥ 10", "¥ 99"}, 10},
		{"decimal price", []string{"¥29.90"}, 29.9},
		{"no currency symbol no match", []string{"10", "29.90"}, 0},
		{"empty input", nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parsePrice(tc.texts))
		})
	}
}

func TestIsProductAddress(t *testing.T) {
	assert.True(t, isProductAddress("https://shop.example.com/detail?goods_id=1"))
	assert.True(t, isProductAddress("https://shop.example.com/goods/1"))
	assert.False(t, isProductAddress("https://shop.example.com/search?q=shirt"))
	assert.False(t, isProductAddress("https://shop.example.com/category/tops"))
	// Deny markers win even when an allow marker is present.
	assert.False(t, isProductAddress("https://shop.example.com/captcha?goods_id=1"))
}

// -- Field strategies --

func TestExtractNameFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("scoped selector wins", func(t *testing.T) {
		page := &fakePage{stubs: []scriptStub{
			{marker: "'.product-intro .product-intro__head-name'", value: "黑色T恤"},
			{marker: "document.title", value: "fallback title"},
		}}
		e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

		name, err := e.extractName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "黑色T恤", name)
	})

	t.Run("falls back to document title", func(t *testing.T) {
		page := &fakePage{stubs: []scriptStub{
			{marker: "document.title", value: "宽松短袖"},
		}}
		e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

		name, err := e.extractName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "宽松短袖", name)
	})

	t.Run("empty everywhere is a login wall", func(t *testing.T) {
		page := &fakePage{}
		e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

		_, err := e.extractName(ctx)
		require.ErrorIs(t, err, ErrLoginWall)
	})
}

func TestExtractImagesStrategyOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("ordered gallery attribute wins over container", func(t *testing.T) {
		page := &fakePage{stubs: []scriptStub{
			{marker: "data-gallery-index", value: []string{"https://img.example.com/1.jpg"}},
			{marker: "product-intro__main-image", value: []string{"https://img.example.com/other.jpg"}},
		}}
		e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

		got, err := e.extractImages(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://img.example.com/1.jpg"}, got)
	})

	t.Run("empty strategy falls through to the next", func(t *testing.T) {
		page := &fakePage{stubs: []scriptStub{
			{marker: "data-gallery-index", value: []string{}},
			{marker: "product-intro__main-image", value: []string{"https://img.example.com/2.jpg"}},
		}}
		e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

		got, err := e.extractImages(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://img.example.com/2.jpg"}, got)
	})
}

// -- Review return path --

func TestReturnToSettlesViaDirectNavigation(t *testing.T) {
	target := "https://shop.example.com/detail?goods_id=123"
	page := &fakePage{current: "https://shop.example.com/reviews"}
	e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

	require.NoError(t, e.returnTo(context.Background(), target))
	assert.Equal(t, reviewBackAttempts, page.backs)
	assert.Equal(t, []string{target}, page.navigated)
	assert.Zero(t, page.reloads)
}

func TestReturnToForcesReloadWhenNavigationSticks(t *testing.T) {
	target := "https://shop.example.com/detail?goods_id=123"
	page := &fakePage{current: "https://shop.example.com/reviews", navStuck: true}
	e := New(page, &noopMotion{}, 1280, 800, zap.NewNop())

	require.NoError(t, e.returnTo(context.Background(), target))
	assert.Equal(t, []string{target}, page.navigated)
	assert.Equal(t, 1, page.reloads)
}

// -- Full extraction pass --

func TestExtractFullSnapshot(t *testing.T) {
	page := &fakePage{
		current: "https://shop.example.com/detail?goods_id=123",
		stubs: []scriptStub{
			{marker: "'.product-intro .product-intro__head-name'", value: "黑色T恤"},
			{marker: "createTreeWalker", value: []string{"配送", "¥ 10", "¥ 99"}},
			{marker: "data-gallery-index", value: []string{
				"https://img.example.com/a.jpg?x=1",
				"https://img.example.com/a.jpg?x=2",
			}},
			{marker: "product-intro__description", value: "纯棉材质"},
			{marker: "product-variant__list", value: []rawVariantItem{
				{Label: "白"},
				{Label: "黑色 ¥12"},
				{Label: "a"},
			}},
			// No review tab on this fixture; rect stub returns not-found.
			{marker: "getBoundingClientRect", value: reviewTabRect{Found: false}},
			{marker: "scrollHeight", value: 0},
		},
	}
	motion := &noopMotion{}
	e := New(page, motion, 1280, 800, zap.NewNop())

	snap, err := e.Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/detail?goods_id=123", snap.SourceURL)
	assert.Equal(t, "黑色T恤", snap.Name)
	assert.Equal(t, 10.0, snap.MainPagePrice)
	assert.Equal(t, []string{"https://img.example.com/a.jpg?x=1"}, snap.Images)
	assert.Equal(t, "纯棉材质", snap.DescriptionText)

	require.Len(t, snap.Variants, 2)
	assert.Equal(t, "白", snap.Variants[0].Label)
	assert.Equal(t, "黑色", snap.Variants[1].Label)

	assert.Empty(t, snap.Reviews)
	assert.Empty(t, snap.DescriptionImages)
	// Variant selector open and close clicks happened.
	assert.Equal(t, 4, motion.clicks)
}
