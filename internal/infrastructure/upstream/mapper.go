package upstream

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/valcommerce/storefront/internal/domain"
)

const (
	// PlaceholderImage is served when a record has no usable thumbnail
	PlaceholderImage = "https://images.weserv.nl/?url=assets-manager.abtasty.com/placeholder.png"

	imageProxyPrefix = "https://images.weserv.nl/?url="
	genericHighlight = "Curated selection from our partner catalog."
)

var (
	nonSlugCharsRegex  = regexp.MustCompile(`[^a-z0-9]+`)
	leadingNumberRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	protocolRegex      = regexp.MustCompile(`(?i)^https?://`)
)

// Normalizer maps raw feed records to canonical products. Records without a
// usable id receive sequential fallback ids, so use one Normalizer per batch
// to keep the ids deterministic within that batch.
type Normalizer struct {
	nextFallbackID int
}

// NewNormalizer creates a Normalizer with a fresh fallback id sequence
func NewNormalizer() *Normalizer {
	return &Normalizer{nextFallbackID: 1}
}

// NormalizeRemoteProduct converts one raw record. It never fails.
func NormalizeRemoteProduct(raw domain.RemoteProduct) domain.Product {
	return NewNormalizer().Normalize(raw)
}

// NormalizeBatch converts a page or a whole feed with a shared fallback id sequence
func NormalizeBatch(raws []domain.RemoteProduct) []domain.Product {
	n := NewNormalizer()
	products := make([]domain.Product, 0, len(raws))
	for _, raw := range raws {
		products = append(products, n.Normalize(raw))
	}
	return products
}

// Normalize converts one raw record
func (n *Normalizer) Normalize(raw domain.RemoteProduct) domain.Product {
	id := canonicalID(raw.ID)
	if id == "" {
		id = n.fallbackID()
	}

	name := repairMojibake(firstNonEmpty(raw.Title, raw.Name))
	if name == "" {
		name = "Product " + id
	}

	priceSource := raw.Price
	if !priceSource.IsSet() {
		priceSource = raw.PriceBeforeDiscount
	}

	brand := repairMojibake(strings.TrimSpace(raw.Brand))
	vendor := strings.TrimSpace(raw.Vendor)
	discount := math.Max(ParseNumber(raw.DiscountPercentage), 0)
	availability := strings.TrimSpace(firstNonEmpty(raw.AvailabilityStatus, raw.Availability))
	status := strings.TrimSpace(raw.Status)
	returnPolicy := strings.TrimSpace(raw.ReturnPolicy)

	var stock *float64
	if raw.Stock.IsSet() {
		s := math.Max(ParseNumber(raw.Stock), 0)
		stock = &s
	}

	product := domain.Product{
		ID:                 domain.ProductID(id),
		Slug:               slugify(name, "product") + "-" + slugify(id, "item"),
		Name:               name,
		Description:        repairMojibake(strings.TrimSpace(raw.Description)),
		Price:              math.Max(ParseNumber(priceSource), 0),
		DiscountPercentage: discount,
		Category:           strings.TrimSpace(raw.Category),
		CategoryLevel2:     strings.TrimSpace(raw.CategoryLevel2),
		CategoryLevel3:     strings.TrimSpace(raw.CategoryLevel3),
		CategoryLevel4:     strings.TrimSpace(raw.CategoryLevel4),
		CategoryIDs:        categoryIDs(raw.CategoryIDs),
		Image:              buildImageURL(firstNonEmpty(raw.Thumbnail, raw.Image)),
		Rating:             math.Min(math.Max(ParseNumber(raw.Rating), 0), 5),
		InStock:            resolveInStock(availability, status, stock, raw.InStock),
		Stock:              stock,
		AvailabilityStatus: availability,
		Status:             status,
		ReturnPolicy:       returnPolicy,
		Brand:              brand,
		Vendor:             vendor,
		Highlights:         buildHighlights(brand, vendor, discount, returnPolicy, availability, status),
		SKU:                raw.SKU.String(),
		Tag:                strings.TrimSpace(raw.Tag),
		Recency:            raw.Recency,
		Link:               "/products/" + url.PathEscape(id),
	}

	if raw.PriceBeforeDiscount.IsSet() {
		before := math.Max(ParseNumber(raw.PriceBeforeDiscount), 0)
		product.PriceBeforeDiscount = &before
	}

	return product
}

func (n *Normalizer) fallbackID() string {
	id := fmt.Sprintf("item-%d", n.nextFallbackID)
	n.nextFallbackID++
	return id
}

// ParseNumber reads a loosely typed numeric field. Like a lenient float parse
// it accepts a leading numeric prefix ("12.5 EUR"); anything else is 0.
func ParseNumber(v domain.FlexValue) float64 {
	s := v.String()
	if s == "" {
		return 0
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return finiteOrZero(f)
	}

	if prefix := leadingNumberRegex.FindString(s); prefix != "" {
		if f, err := strconv.ParseFloat(prefix, 64); err == nil {
			return finiteOrZero(f)
		}
	}
	return 0
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// canonicalID turns integral numeric ids such as 1589.0 into "1589"
func canonicalID(v domain.FlexValue) string {
	s := v.String()
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// resolveInStock treats the product as sellable unless a stock signal says otherwise.
// The explicit inStock flag is only consulted when no other signal is present.
func resolveInStock(availability, status string, stock *float64, explicit *bool) bool {
	if availability == "" && status == "" && stock == nil {
		if explicit != nil {
			return *explicit
		}
		return true
	}

	return strings.EqualFold(availability, "in stock") ||
		strings.EqualFold(status, "active") ||
		(stock != nil && *stock > 0)
}

func buildHighlights(brand, vendor string, discount float64, returnPolicy, availability, status string) []string {
	highlights := make([]string, 0, 5)

	if brand != "" {
		highlights = append(highlights, "Brand: "+brand)
	}
	if vendor != "" {
		highlights = append(highlights, "Sold by "+vendor)
	}
	if discount > 0 {
		highlights = append(highlights, fmt.Sprintf("Save %.0f%% today", discount))
	}
	if returnPolicy != "" {
		highlights = append(highlights, "Returns: "+returnPolicy)
	}
	if availability != "" {
		highlights = append(highlights, "Availability: "+availability)
	} else if status != "" {
		highlights = append(highlights, "Status: "+status)
	}

	if len(highlights) == 0 {
		highlights = append(highlights, genericHighlight)
	}
	return highlights
}

// buildImageURL proxies external images through weserv; already proxied URLs are kept
func buildImageURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return PlaceholderImage
	}
	if strings.HasPrefix(trimmed, imageProxyPrefix) {
		return trimmed
	}

	withoutProtocol := protocolRegex.ReplaceAllString(trimmed, "")
	return imageProxyPrefix + strings.ReplaceAll(url.QueryEscape(withoutProtocol), "+", "%20")
}

func categoryIDs(values []domain.FlexValue) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Slugify lowercases s and collapses every run of non-alphanumerics into one dash
func Slugify(s string) string {
	return slugify(s, "")
}

func slugify(s, fallback string) string {
	normalized := nonSlugCharsRegex.ReplaceAllString(strings.ToLower(s), "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return fallback
	}
	return normalized
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
