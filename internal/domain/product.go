package domain

// Product is the canonical catalog record served to the storefront
type Product struct {
	ID                  ProductID `json:"id"`
	Slug                string    `json:"slug"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Price               float64   `json:"price"`
	PriceBeforeDiscount *float64  `json:"price_before_discount,omitempty"`
	DiscountPercentage  float64   `json:"discountPercentage,omitempty"`
	Category            string    `json:"category,omitempty"`
	CategoryLevel2      string    `json:"category_level2,omitempty"`
	CategoryLevel3      string    `json:"category_level3,omitempty"`
	CategoryLevel4      string    `json:"category_level4,omitempty"`
	CategoryIDs         []string  `json:"categoryIds,omitempty"`
	Image               string    `json:"image"`
	Rating              float64   `json:"rating"`
	InStock             bool      `json:"inStock"`
	Stock               *float64  `json:"stock,omitempty"`
	AvailabilityStatus  string    `json:"availabilityStatus,omitempty"`
	Status              string    `json:"status,omitempty"`
	ReturnPolicy        string    `json:"returnPolicy,omitempty"`
	Brand               string    `json:"brand,omitempty"`
	Vendor              string    `json:"vendor,omitempty"`
	Highlights          []string  `json:"highlights"`
	SKU                 string    `json:"sku,omitempty"`
	Tag                 string    `json:"tag,omitempty"`
	Recency             FlexValue `json:"recency,omitzero"`
	Link                string    `json:"link"`
}

// Categories returns the hierarchical category labels that are set, top level first
func (p *Product) Categories() []string {
	levels := []string{p.Category, p.CategoryLevel2, p.CategoryLevel3, p.CategoryLevel4}
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		if level != "" {
			out = append(out, level)
		}
	}
	return out
}

// RemoteProduct is one record of the upstream product feed. Field shapes vary
// between feed dialects, so loosely typed values use FlexValue.
type RemoteProduct struct {
	ID                  FlexValue   `json:"id"`
	Title               string      `json:"title"`
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	Category            string      `json:"category"`
	CategoryLevel2      string      `json:"category_level2"`
	CategoryLevel3      string      `json:"category_level3"`
	CategoryLevel4      string      `json:"category_level4"`
	CategoryIDs         []FlexValue `json:"categoryIds"`
	Link                string      `json:"link"`
	Price               FlexValue   `json:"price"`
	PriceBeforeDiscount FlexValue   `json:"price_before_discount"`
	DiscountPercentage  FlexValue   `json:"discountPercentage"`
	Rating              FlexValue   `json:"rating"`
	Stock               FlexValue   `json:"stock"`
	InStock             *bool       `json:"inStock"`
	AvailabilityStatus  string      `json:"availabilityStatus"`
	Availability        string      `json:"availability"`
	Status              string      `json:"status"`
	ReturnPolicy        string      `json:"returnPolicy"`
	Brand               string      `json:"brand"`
	Vendor              string      `json:"vendor"`
	SKU                 FlexValue   `json:"sku"`
	Thumbnail           string      `json:"thumbnail"`
	Image               string      `json:"image"`
	Tag                 string      `json:"tag"`
	Recency             FlexValue   `json:"recency"`
}

// RemoteResponse is the single internal shape every upstream listing
// envelope is adapted to before anything else reads it
type RemoteResponse struct {
	Items      []RemoteProduct
	NextCursor string
	// HasCursor is true when the upstream speaks the cursor dialect
	HasCursor bool
}

// RemoteQuery carries the upstream filter parameters
type RemoteQuery struct {
	VendorID   string
	BrandID    string
	CategoryID string
	Search     string
}

// Vendor is a tenant/supplier whose catalog subset the storefront can be scoped to
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
