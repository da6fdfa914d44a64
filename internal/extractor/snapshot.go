package extractor

// VariantOption is one purchasable option read from the variant selector.
type VariantOption struct {
	Label    string
	ImageURL string
	// Price is the option's own price in source currency; zero means the
	// option inherits the main page price.
	Price float64
}

// Review is one customer review read from the review screen.
type Review struct {
	Author           string
	Text             string
	PurchasedVariant string
	PhotoURLs        []string
}

// Snapshot is the raw, untranslated extraction result for one product.
// It is immutable once Extract returns; downstream stages build their own
// derived records.
type Snapshot struct {
	SourceURL         string
	Name              string
	MainPagePrice     float64
	Images            []string
	DescriptionText   string
	Variants          []VariantOption
	Reviews           []Review
	DescriptionImages []string
}
