package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mobhervr3-png/chinak2/internal/catalog"
	"github.com/mobhervr3-png/chinak2/internal/extractor"
	"github.com/mobhervr3-png/chinak2/internal/translator"
)

// SnapshotSource reads the product detail page the tab currently shows.
type SnapshotSource interface {
	Extract(ctx context.Context) (*extractor.Snapshot, error)
}

// Translator is the slice of the translation pipeline the per-product
// processing uses.
type Translator interface {
	TranslateText(ctx context.Context, text, translationContext string) string
	TranslateBatch(ctx context.Context, texts []string, translationContext string) []string
	GenerateKeywords(ctx context.Context, name string) []string
	FormatSpecs(ctx context.Context, description string) map[string]string
}

// Persister dedups and writes finished drafts.
type Persister interface {
	UpsertIfNew(ctx context.Context, draft *catalog.Draft) (uuid.UUID, bool, error)
}

// productProcessor turns one product detail visit into a persisted catalog
// record: extract, translate, normalize, upsert.
type productProcessor struct {
	source    SnapshotSource
	translate Translator
	persist   Persister
	logger    *zap.Logger
}

func newProductProcessor(source SnapshotSource, translate Translator, persist Persister, logger *zap.Logger) *productProcessor {
	return &productProcessor{
		source:    source,
		translate: translate,
		persist:   persist,
		logger:    logger.Named("processor"),
	}
}

// Process handles the product page the tab is currently on. A login wall
// skips the product without error; a categorical persistence block
// propagates untouched so the session can abort.
func (p *productProcessor) Process(ctx context.Context) error {
	snap, err := p.source.Extract(ctx)
	if err != nil {
		if errors.Is(err, extractor.ErrLoginWall) {
			p.logger.Warn("Login wall on product page, skipping.")
			return nil
		}
		return fmt.Errorf("extract product: %w", err)
	}

	draft, err := p.buildDraft(ctx, snap)
	if err != nil {
		return err
	}

	id, created, err := p.persist.UpsertIfNew(ctx, draft)
	if err != nil {
		if errors.Is(err, catalog.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("persist product: %w", err)
	}
	if !created {
		p.logger.Info("Known product revisited.", zap.String("product_id", id.String()))
		return nil
	}
	p.logger.Info("Product captured.",
		zap.String("product_id", id.String()),
		zap.String("name", draft.Name),
		zap.Int("variants", len(draft.Variants)),
		zap.Int("images", len(draft.Images)))
	return nil
}

// buildDraft runs the independent translation tasks concurrently, then the
// metadata step that depends on the translated name.
func (p *productProcessor) buildDraft(ctx context.Context, snap *extractor.Snapshot) (*catalog.Draft, error) {
	labels := make([]string, len(snap.Variants))
	for i, v := range snap.Variants {
		labels[i] = v.Label
	}
	reviewTexts := make([]string, len(snap.Reviews))
	for i, r := range snap.Reviews {
		reviewTexts[i] = r.Text
	}

	var (
		name            string
		translatedOpts  []string
		translatedRevs  []string
		descriptionText string
		specs           map[string]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name = p.translate.TranslateText(gctx, snap.Name, translator.ContextName)
		return gctx.Err()
	})
	g.Go(func() error {
		translatedOpts = p.translate.TranslateBatch(gctx, labels, translator.ContextOption)
		return gctx.Err()
	})
	g.Go(func() error {
		translatedRevs = p.translate.TranslateBatch(gctx, reviewTexts, translator.ContextReview)
		return gctx.Err()
	})
	g.Go(func() error {
		descriptionText = p.translate.TranslateText(gctx, snap.DescriptionText, translator.ContextDescription)
		specs = p.translate.FormatSpecs(gctx, snap.DescriptionText)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("translate product: %w", err)
	}

	// Keyword generation needs the translated name, so it runs after the
	// fan-in.
	keywords := p.translate.GenerateKeywords(ctx, name)

	p.logger.Debug("Reviews translated.", zap.Int("count", len(translatedRevs)))

	variants := make([]catalog.DraftVariant, len(snap.Variants))
	for i, v := range snap.Variants {
		variants[i] = catalog.DraftVariant{
			Label:    translatedOpts[i],
			ImageURL: v.ImageURL,
			Price:    v.Price,
		}
	}

	return &catalog.Draft{
		SourceURL:       snap.SourceURL,
		Name:            name,
		MainPagePrice:   snap.MainPagePrice,
		DescriptionText: descriptionText,
		Keywords:        keywords,
		Specs:           specs,
		Variants:        variants,
		Images:          snap.Images,
		DescImages:      snap.DescriptionImages,
	}, nil
}
