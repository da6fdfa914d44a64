package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/catalog"
	"github.com/mobhervr3-png/chinak2/internal/extractor"
	"github.com/mobhervr3-png/chinak2/internal/translator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	snap *extractor.Snapshot
	err  error
}

func (f *fakeSource) Extract(ctx context.Context) (*extractor.Snapshot, error) {
	return f.snap, f.err
}

// fakeTranslator prefixes inputs so tests can see which strings flowed
// through which call, and records the name keyword generation was given.
type fakeTranslator struct {
	mu           sync.Mutex
	keywordInput string
}

func (f *fakeTranslator) TranslateText(ctx context.Context, text, translationContext string) string {
	if text == "" {
		return ""
	}
	return "ko:" + text
}

func (f *fakeTranslator) TranslateBatch(ctx context.Context, texts []string, translationContext string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			continue
		}
		out[i] = "ko:" + t
	}
	return out
}

func (f *fakeTranslator) GenerateKeywords(ctx context.Context, name string) []string {
	f.mu.Lock()
	f.keywordInput = name
	f.mu.Unlock()
	return []string{"키워드"}
}

func (f *fakeTranslator) FormatSpecs(ctx context.Context, description string) map[string]string {
	if description == "" {
		return map[string]string{}
	}
	return map[string]string{"소재": "면"}
}

type fakePersister struct {
	mu     sync.Mutex
	drafts []*catalog.Draft

	id      uuid.UUID
	created bool
	err     error
}

func (f *fakePersister) UpsertIfNew(ctx context.Context, draft *catalog.Draft) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	f.drafts = append(f.drafts, draft)
	return f.id, f.created, nil
}

func sampleSnapshot() *extractor.Snapshot {
	return &extractor.Snapshot{
		SourceURL:       "https://shop.example.com/detail?goods_id=123",
		Name:            "黑色T恤",
		MainPagePrice:   10.0,
		Images:          []string{"https://img.example.com/1.jpg"},
		DescriptionText: "纯棉材质",
		Variants: []extractor.VariantOption{
			{Label: "黑色 M", Price: 10.0},
			{Label: "白色 L", Price: 10.5, ImageURL: "https://img.example.com/w.jpg"},
		},
		Reviews: []extractor.Review{
			{Author: "买家", Text: "质量很好"},
		},
		DescriptionImages: []string{"https://img.example.com/d1.jpg"},
	}
}

func newTestProcessor(source *fakeSource, persist *fakePersister) (*productProcessor, *fakeTranslator) {
	trans := &fakeTranslator{}
	return newProductProcessor(source, trans, persist, zap.NewNop()), trans
}

func TestProcessPersistsTranslatedDraft(t *testing.T) {
	persist := &fakePersister{id: uuid.New(), created: true}
	proc, trans := newTestProcessor(&fakeSource{snap: sampleSnapshot()}, persist)

	require.NoError(t, proc.Process(context.Background()))
	require.Len(t, persist.drafts, 1)

	draft := persist.drafts[0]
	assert.Equal(t, "ko:黑色T恤", draft.Name)
	assert.Equal(t, 10.0, draft.MainPagePrice)
	assert.Equal(t, "ko:纯棉材质", draft.DescriptionText)
	assert.Equal(t, []string{"키워드"}, draft.Keywords)
	assert.Equal(t, map[string]string{"소재": "면"}, draft.Specs)

	require.Len(t, draft.Variants, 2)
	assert.Equal(t, "ko:黑色 M", draft.Variants[0].Label)
	assert.Equal(t, 10.5, draft.Variants[1].Price)
	assert.Equal(t, "https://img.example.com/w.jpg", draft.Variants[1].ImageURL)

	assert.Equal(t, []string{"https://img.example.com/1.jpg"}, draft.Images)
	assert.Equal(t, []string{"https://img.example.com/d1.jpg"}, draft.DescImages)

	// Keyword generation must see the translated name, not the source name.
	assert.Equal(t, "ko:黑色T恤", trans.keywordInput)
}

func TestProcessLoginWallSkipsProduct(t *testing.T) {
	persist := &fakePersister{}
	proc, _ := newTestProcessor(&fakeSource{err: extractor.ErrLoginWall}, persist)

	require.NoError(t, proc.Process(context.Background()))
	assert.Empty(t, persist.drafts)
}

func TestProcessExtractionFailurePropagates(t *testing.T) {
	extractErr := errors.New("page torn down")
	persist := &fakePersister{}
	proc, _ := newTestProcessor(&fakeSource{err: extractErr}, persist)

	err := proc.Process(context.Background())
	require.ErrorIs(t, err, extractErr)
	assert.Empty(t, persist.drafts)
}

func TestProcessPermissionDeniedPropagatesUnwrapped(t *testing.T) {
	persist := &fakePersister{err: catalog.ErrPermissionDenied}
	proc, _ := newTestProcessor(&fakeSource{snap: sampleSnapshot()}, persist)

	err := proc.Process(context.Background())
	require.ErrorIs(t, err, catalog.ErrPermissionDenied)
}

func TestProcessDuplicateIsNotAnError(t *testing.T) {
	persist := &fakePersister{id: uuid.New(), created: false}
	proc, _ := newTestProcessor(&fakeSource{snap: sampleSnapshot()}, persist)

	require.NoError(t, proc.Process(context.Background()))
	assert.Len(t, persist.drafts, 1)
}

func TestBuildDraftCancelledContext(t *testing.T) {
	proc, _ := newTestProcessor(&fakeSource{snap: sampleSnapshot()}, &fakePersister{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.buildDraft(ctx, sampleSnapshot())
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildDraftEmptySnapshotSections(t *testing.T) {
	snap := &extractor.Snapshot{
		SourceURL: "https://shop.example.com/detail?goods_id=9",
		Name:      "连衣裙",
	}
	proc, _ := newTestProcessor(&fakeSource{snap: snap}, &fakePersister{})

	draft, err := proc.buildDraft(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "ko:连衣裙", draft.Name)
	assert.Empty(t, draft.Variants)
	assert.Empty(t, draft.Images)
	assert.Empty(t, draft.DescriptionText)
}

var _ Translator = (*translator.Pipeline)(nil)
var _ Persister = (*catalog.Adapter)(nil)
