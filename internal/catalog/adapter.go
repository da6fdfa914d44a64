package catalog

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/pricing"
)

// Draft is a fully translated product ready for persistence. The
// orchestrator assembles it from the extraction snapshot and the
// translation pipeline's output.
type Draft struct {
	SourceURL       string
	Name            string
	MainPagePrice   float64
	DescriptionText string
	Keywords        []string
	Specs           map[string]string
	Variants        []DraftVariant
	Images          []string
	DescImages      []string
}

// DraftVariant is one translated variant option. Price is in source
// currency; zero inherits the main page price.
type DraftVariant struct {
	Label    string
	ImageURL string
	Price    float64
}

// Storer is the slice of the store the adapter writes through.
type Storer interface {
	FindProductByURLKey(ctx context.Context, key string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product, options []ProductOption, variants []ProductVariant) error
	AddImages(ctx context.Context, images []ProductImage) error
	SetEmbedding(ctx context.Context, productID uuid.UUID, embedding []float32) error
}

// Embedder produces a vector embedding for the background indexing step.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Adapter dedups and persists product drafts.
type Adapter struct {
	store      Storer
	normalizer *pricing.Normalizer
	embedder   Embedder
	logger     *zap.Logger

	// wg tracks background embedding requests for a clean shutdown.
	wg sync.WaitGroup
}

// NewAdapter wires the persistence adapter. embedder may be nil, which
// disables the background embedding step.
func NewAdapter(store Storer, normalizer *pricing.Normalizer, embedder Embedder, logger *zap.Logger) *Adapter {
	return &Adapter{
		store:      store,
		normalizer: normalizer,
		embedder:   embedder,
		logger:     logger.Named("catalog_adapter"),
	}
}

// UpsertIfNew persists the draft unless a record with the same canonical
// URL key already exists. Returns the persisted ID and whether a new
// record was created; a duplicate is a silent skip, not an error.
func (a *Adapter) UpsertIfNew(ctx context.Context, draft *Draft) (uuid.UUID, bool, error) {
	key := URLKey(draft.SourceURL)

	existing, err := a.store.FindProductByURLKey(ctx, key)
	if err != nil {
		return uuid.Nil, false, err
	}
	if existing != nil {
		a.logger.Info("Duplicate product, skipping.",
			zap.String("url_key", key), zap.String("existing_id", existing.ID.String()))
		return existing.ID, false, nil
	}

	basePrice := a.normalizer.ConvertBase(draft.MainPagePrice)
	product := &Product{
		ID:              uuid.New(),
		Name:            draft.Name,
		SourceURL:       draft.SourceURL,
		BasePrice:       basePrice,
		FinalPrice:      a.normalizer.Normalize(basePrice),
		DescriptionText: draft.DescriptionText,
		Keywords:        draft.Keywords,
		Specs:           draft.Specs,
		CreatedAt:       time.Now().UTC(),
	}

	options, variants := a.buildVariants(product.ID, draft)

	if err := a.store.CreateProduct(ctx, product, options, variants); err != nil {
		return uuid.Nil, false, err
	}

	// Image records are a secondary step; their failure must never roll
	// back the already-created product.
	if err := a.store.AddImages(ctx, buildImages(product.ID, draft)); err != nil {
		a.logger.Warn("Image persistence failed, product kept.",
			zap.String("product_id", product.ID.String()), zap.Error(err))
	}

	a.requestEmbedding(product.ID, product.Name)

	a.logger.Info("Product created.",
		zap.String("product_id", product.ID.String()), zap.String("url_key", key))
	return product.ID, true, nil
}

// Wait blocks until all background embedding requests have finished.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

// requestEmbedding runs the embedding call off the main loop. Failure is
// logged only, never fatal.
func (a *Adapter) requestEmbedding(productID uuid.UUID, name string) {
	if a.embedder == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		vec, err := a.embedder.Embed(ctx, name)
		if err != nil {
			a.logger.Warn("Embedding request failed.",
				zap.String("product_id", productID.String()), zap.Error(err))
			return
		}
		if err := a.store.SetEmbedding(ctx, productID, vec); err != nil {
			a.logger.Warn("Embedding persistence failed.",
				zap.String("product_id", productID.String()), zap.Error(err))
		}
	}()
}

// buildVariants maps draft variants into the color and size option sets
// plus per-combination variant records, deduplicating identical color x
// size pairs.
func (a *Adapter) buildVariants(productID uuid.UUID, draft *Draft) ([]ProductOption, []ProductVariant) {
	if len(draft.Variants) == 0 {
		return nil, nil
	}

	type combo struct{ color, size string }
	seen := make(map[combo]struct{}, len(draft.Variants))

	var colors, sizes []string
	colorSet := make(map[string]struct{})
	sizeSet := make(map[string]struct{})
	variants := make([]ProductVariant, 0, len(draft.Variants))

	for _, v := range draft.Variants {
		color, size := SplitVariantLabel(v.Label)
		if color == "" && size == "" {
			continue
		}
		c := combo{color: color, size: size}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}

		if color != "" {
			if _, ok := colorSet[color]; !ok {
				colorSet[color] = struct{}{}
				colors = append(colors, color)
			}
		}
		if size != "" {
			if _, ok := sizeSet[size]; !ok {
				sizeSet[size] = struct{}{}
				sizes = append(sizes, size)
			}
		}

		price := v.Price
		if price <= 0 {
			price = draft.MainPagePrice
		}
		base := a.normalizer.ConvertBase(price)
		variants = append(variants, ProductVariant{
			ID:         uuid.New(),
			ProductID:  productID,
			Color:      color,
			Size:       size,
			BasePrice:  base,
			FinalPrice: a.normalizer.Normalize(base),
			ImageURL:   v.ImageURL,
		})
	}

	var options []ProductOption
	if len(colors) > 0 {
		options = append(options, ProductOption{
			ID: uuid.New(), ProductID: productID,
			Name: "색상", Values: colors, Position: 0,
		})
	}
	if len(sizes) > 0 {
		options = append(options, ProductOption{
			ID: uuid.New(), ProductID: productID,
			Name: "사이즈", Values: sizes, Position: 1,
		})
	}
	return options, variants
}

func buildImages(productID uuid.UUID, draft *Draft) []ProductImage {
	images := make([]ProductImage, 0, len(draft.Images)+len(draft.DescImages))
	for i, u := range draft.Images {
		images = append(images, ProductImage{
			ID: uuid.New(), ProductID: productID,
			URL: u, Kind: ImageKindGallery, Position: i,
		})
	}
	for i, u := range draft.DescImages {
		images = append(images, ProductImage{
			ID: uuid.New(), ProductID: productID,
			URL: u, Kind: ImageKindDescription, Position: i,
		})
	}
	return images
}

// URLKey derives the stable external key from a source URL: the canonical
// goods_id query parameter. Referrer and campaign noise make the full URL
// useless for deduplication. URLs without the parameter fall back to
// host+path.
func URLKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if id := u.Query().Get("goods_id"); id != "" {
		return "goods_id=" + id
	}
	return u.Host + u.Path
}

var sizeTokenRe = regexp.MustCompile(`^(XXS|XS|S|M|L|XL|XXL|XXXL|[0-9]{2,3})$`)

// SplitVariantLabel separates a variant label into color and size parts.
// Labels like "검정 XL" carry both; a bare size token is size-only.
func SplitVariantLabel(label string) (color, size string) {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return "", ""
	}

	last := strings.ToUpper(fields[len(fields)-1])
	if sizeTokenRe.MatchString(last) {
		return strings.Join(fields[:len(fields)-1], " "), last
	}
	return strings.Join(fields, " "), ""
}
