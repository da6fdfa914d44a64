package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product is one persisted catalog record. Prices are stored in KRW.
type Product struct {
	ID              uuid.UUID
	Name            string
	SourceURL       string
	BasePrice       int64
	FinalPrice      int64
	DescriptionText string
	Keywords        []string
	Specs           map[string]string
	CreatedAt       time.Time
}

// ProductOption is a named option set ("색상", "사이즈") with its values.
type ProductOption struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Name      string
	Values    []string
	Position  int
}

// ProductVariant is one purchasable color x size combination.
type ProductVariant struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Color      string
	Size       string
	BasePrice  int64
	FinalPrice int64
	ImageURL   string
}

// Image kinds.
const (
	ImageKindGallery     = "gallery"
	ImageKindDescription = "description"
)

// ProductImage is one persisted image reference.
type ProductImage struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	URL       string
	Kind      string
	Position  int
}
