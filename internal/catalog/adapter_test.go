package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/pricing"
)

type fakeStorer struct {
	mu sync.Mutex

	existing map[string]*Product

	findErr   error
	createErr error
	imagesErr error

	createdProducts []*Product
	createdOptions  [][]ProductOption
	createdVariants [][]ProductVariant
	addedImages     [][]ProductImage
	embeddings      map[uuid.UUID][]float32
}

func newFakeStorer() *fakeStorer {
	return &fakeStorer{
		existing:   make(map[string]*Product),
		embeddings: make(map[uuid.UUID][]float32),
	}
}

func (f *fakeStorer) FindProductByURLKey(ctx context.Context, key string) (*Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.existing[key], nil
}

func (f *fakeStorer) CreateProduct(ctx context.Context, p *Product, options []ProductOption, variants []ProductVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.createdProducts = append(f.createdProducts, p)
	f.createdOptions = append(f.createdOptions, options)
	f.createdVariants = append(f.createdVariants, variants)
	f.existing[URLKey(p.SourceURL)] = p
	return nil
}

func (f *fakeStorer) AddImages(ctx context.Context, images []ProductImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imagesErr != nil {
		return f.imagesErr
	}
	f.addedImages = append(f.addedImages, images)
	return nil
}

func (f *fakeStorer) SetEmbedding(ctx context.Context, productID uuid.UUID, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[productID] = embedding
	return nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func testNormalizer() *pricing.Normalizer {
	return &pricing.Normalizer{ExchangeRate: 200.0, MarginPercent: 15.0, RoundUnit: 10}
}

func sampleDraft() *Draft {
	return &Draft{
		SourceURL:       "https://shop.example.com/detail?goods_id=123&ref=home",
		Name:            "검정 반팔 티셔츠",
		MainPagePrice:   10.0,
		DescriptionText: "부드러운 면 소재",
		Keywords:        []string{"티셔츠", "반팔"},
		Specs:           map[string]string{"소재": "면"},
		Variants: []DraftVariant{
			{Label: "검정 M", Price: 10.0},
			{Label: "검정 L", Price: 10.5},
			{Label: "하양 M", Price: 10.0, ImageURL: "https://img.example.com/w.jpg"},
		},
		Images:     []string{"https://img.example.com/1.jpg", "https://img.example.com/2.jpg"},
		DescImages: []string{"https://img.example.com/d1.jpg"},
	}
}

func TestUpsertIfNewCreates(t *testing.T) {
	storer := newFakeStorer()
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	id, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, uuid.Nil, id)

	require.Len(t, storer.createdProducts, 1)
	p := storer.createdProducts[0]
	assert.Equal(t, "검정 반팔 티셔츠", p.Name)
	// 10 CNY * 200 = 2000 base, +15% margin = 2300, already a multiple of 10.
	assert.Equal(t, int64(2000), p.BasePrice)
	assert.Equal(t, int64(2300), p.FinalPrice)

	// Two colors and two sizes, in first-seen order.
	options := storer.createdOptions[0]
	require.Len(t, options, 2)
	assert.Equal(t, "색상", options[0].Name)
	assert.Equal(t, []string{"검정", "하양"}, options[0].Values)
	assert.Equal(t, "사이즈", options[1].Name)
	assert.Equal(t, []string{"M", "L"}, options[1].Values)

	variants := storer.createdVariants[0]
	require.Len(t, variants, 3)
	assert.Equal(t, "검정", variants[0].Color)
	assert.Equal(t, "M", variants[0].Size)
	assert.Equal(t, int64(2000), variants[0].BasePrice)
	// 10.5 CNY -> 2100 base -> 2415 -> rounds up to 2420.
	assert.Equal(t, int64(2100), variants[1].BasePrice)
	assert.Equal(t, int64(2420), variants[1].FinalPrice)

	require.Len(t, storer.addedImages, 1)
	images := storer.addedImages[0]
	require.Len(t, images, 3)
	assert.Equal(t, ImageKindGallery, images[0].Kind)
	assert.Equal(t, ImageKindDescription, images[2].Kind)
}

func TestUpsertIfNewSkipsDuplicate(t *testing.T) {
	storer := newFakeStorer()
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	first, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.NoError(t, err)
	require.True(t, created)

	// Same goods_id behind different campaign noise must dedup silently.
	dup := sampleDraft()
	dup.SourceURL = "https://shop.example.com/detail?goods_id=123&utm_source=ads"

	second, created, err := adapter.UpsertIfNew(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Len(t, storer.createdProducts, 1)
}

func TestUpsertIfNewVariantComboDedup(t *testing.T) {
	storer := newFakeStorer()
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	draft := sampleDraft()
	draft.Variants = []DraftVariant{
		{Label: "검정 M"},
		{Label: "검정 M"}, // identical combination
		{Label: "검정"},
	}

	_, _, err := adapter.UpsertIfNew(context.Background(), draft)
	require.NoError(t, err)
	require.Len(t, storer.createdVariants[0], 2)
}

func TestUpsertIfNewZeroVariantPriceInheritsMainPrice(t *testing.T) {
	storer := newFakeStorer()
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	draft := sampleDraft()
	draft.Variants = []DraftVariant{{Label: "검정"}}

	_, _, err := adapter.UpsertIfNew(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), storer.createdVariants[0][0].BasePrice)
	assert.Equal(t, int64(2300), storer.createdVariants[0][0].FinalPrice)
}

func TestUpsertIfNewCreateErrorPropagates(t *testing.T) {
	storer := newFakeStorer()
	storer.createErr = ErrPermissionDenied
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	_, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, created)
}

func TestUpsertIfNewImageFailureIsNonFatal(t *testing.T) {
	storer := newFakeStorer()
	storer.imagesErr = errors.New("copy failed")
	adapter := NewAdapter(storer, testNormalizer(), nil, zap.NewNop())

	_, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, storer.createdProducts, 1)
}

func TestUpsertIfNewBackgroundEmbedding(t *testing.T) {
	storer := newFakeStorer()
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	adapter := NewAdapter(storer, testNormalizer(), embedder, zap.NewNop())

	id, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.NoError(t, err)
	require.True(t, created)

	adapter.Wait()

	storer.mu.Lock()
	defer storer.mu.Unlock()
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, storer.embeddings[id])
}

func TestUpsertIfNewEmbeddingFailureIsNonFatal(t *testing.T) {
	storer := newFakeStorer()
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	adapter := NewAdapter(storer, testNormalizer(), embedder, zap.NewNop())

	_, created, err := adapter.UpsertIfNew(context.Background(), sampleDraft())
	require.NoError(t, err)
	assert.True(t, created)

	done := make(chan struct{})
	go func() {
		adapter.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("embedding goroutine did not finish")
	}
	assert.Empty(t, storer.embeddings)
}

func TestURLKey(t *testing.T) {
	testCases := []struct {
		name     string
		rawURL   string
		expected string
	}{
		{
			name:     "goods_id_param",
			rawURL:   "https://shop.example.com/detail?goods_id=123&ref=home",
			expected: "goods_id=123",
		},
		{
			name:     "no_param_falls_back_to_host_path",
			rawURL:   "https://shop.example.com/goods/456",
			expected: "shop.example.com/goods/456",
		},
		{
			name:     "unparseable_returns_raw",
			rawURL:   "://not a url",
			expected: "://not a url",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, URLKey(tc.rawURL))
		})
	}
}

func TestSplitVariantLabel(t *testing.T) {
	testCases := []struct {
		label string
		color string
		size  string
	}{
		{label: "검정 XL", color: "검정", size: "XL"},
		{label: "검정", color: "검정", size: ""},
		{label: "XL", color: "", size: "XL"},
		{label: "진한 파랑 m", color: "진한 파랑", size: "M"},
		{label: "운동화 270", color: "운동화", size: "270"},
		{label: "", color: "", size: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.label, func(t *testing.T) {
			color, size := SplitVariantLabel(tc.label)
			assert.Equal(t, tc.color, color)
			assert.Equal(t, tc.size, size)
		})
	}
}
