package usecase

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/valcommerce/storefront/internal/domain"
)

// allFilter is the UI value meaning "no category/brand restriction"
const allFilter = "All"

const offsetCursorPrefix = "o:"

// matcher filters products with case-folded comparisons.
// A matcher holds a Caser and must not be shared between goroutines.
type matcher struct {
	folder cases.Caser
}

func newMatcher() *matcher {
	return &matcher{folder: cases.Fold()}
}

func (m *matcher) fold(s string) string {
	return m.folder.String(strings.TrimSpace(s))
}

func (m *matcher) equal(a, b string) bool {
	return m.fold(a) == m.fold(b)
}

// vendor matches when the product carries any of the scope's names; an empty scope matches all
func (m *matcher) vendor(p *domain.Product, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, name := range scope {
		if m.equal(p.Vendor, name) {
			return true
		}
	}
	return false
}

func (m *matcher) brand(p *domain.Product, brand string) bool {
	return brand == "" || m.equal(p.Brand, brand)
}

// category matches any hierarchical level or any flat category id
func (m *matcher) category(p *domain.Product, category string) bool {
	if category == "" {
		return true
	}
	for _, level := range p.Categories() {
		if m.equal(level, category) {
			return true
		}
	}
	for _, id := range p.CategoryIDs {
		if m.equal(id, category) {
			return true
		}
	}
	return false
}

// search is a case-insensitive substring match over the descriptive fields
func (m *matcher) search(p *domain.Product, term string) bool {
	if term == "" {
		return true
	}
	needle := m.fold(term)
	fields := append([]string{p.Name, p.Description, p.Brand}, p.Categories()...)
	for _, field := range fields {
		if field != "" && strings.Contains(m.fold(field), needle) {
			return true
		}
	}
	return false
}

func filterProducts(products []domain.Product, keep func(p *domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if keep(&products[i]) {
			out = append(out, products[i])
		}
	}
	return out
}

// facetSet collects distinct values case-insensitively, keeping the first casing seen
type facetSet struct {
	m      *matcher
	seen   map[string]bool
	values []string
}

func newFacetSet(m *matcher) *facetSet {
	return &facetSet{m: m, seen: make(map[string]bool)}
}

func (f *facetSet) add(value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return
	}
	key := f.m.fold(trimmed)
	if f.seen[key] {
		return
	}
	f.seen[key] = true
	f.values = append(f.values, trimmed)
}

// sorted returns the values in locale order
func (f *facetSet) sorted() []string {
	out := append([]string{}, f.values...)
	collate.New(language.English).SortStrings(out)
	return out
}

func deriveCategories(products []domain.Product) []string {
	set := newFacetSet(newMatcher())
	for i := range products {
		for _, level := range products[i].Categories() {
			set.add(level)
		}
	}
	return set.sorted()
}

func deriveBrands(products []domain.Product) []string {
	set := newFacetSet(newMatcher())
	for i := range products {
		set.add(products[i].Brand)
	}
	return set.sorted()
}

// sortFacets de-duplicates and orders a facet list fetched from upstream
func sortFacets(values []string) []string {
	set := newFacetSet(newMatcher())
	for _, v := range values {
		set.add(v)
	}
	return set.sorted()
}

func normalizeFacetParam(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, allFilter) {
		return ""
	}
	return trimmed
}

// encodeOffsetCursor turns a list offset into an opaque cursor
func encodeOffsetCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(offsetCursorPrefix + strconv.Itoa(offset)))
}

func decodeOffsetCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), offsetCursorPrefix) {
		return 0, fmt.Errorf("%w: invalid cursor", domain.ErrInvalidRequest)
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), offsetCursorPrefix))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: invalid cursor", domain.ErrInvalidRequest)
	}
	return offset, nil
}

// paginate slices items starting at offset; the page number is derived from it
func paginate(items []domain.Product, offset, pageSize int) *domain.PagedResult {
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	lastStart := (totalPages - 1) * pageSize
	start := min(max(offset, 0), lastStart)
	end := min(start+pageSize, total)

	result := &domain.PagedResult{
		Products:   items[start:end:end],
		Page:       start/pageSize + 1,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
	if end < total {
		result.NextCursor = encodeOffsetCursor(end)
	}
	return result
}

func describeEmpty(filters domain.ProductFilters, catalogEmpty bool) (domain.EmptyReason, string) {
	if catalogEmpty {
		return domain.EmptyNoProducts, "No products are available right now."
	}

	switch {
	case filters.Category != "":
		return domain.EmptyNoMatches, fmt.Sprintf("No products found in the %q category.", filters.Category)
	case filters.Brand != "":
		return domain.EmptyNoMatches, fmt.Sprintf("No products found for the %q brand.", filters.Brand)
	case filters.Query != "":
		return domain.EmptyNoMatches, fmt.Sprintf("No products match %q.", filters.Query)
	default:
		return domain.EmptyNoMatches, "No products match the selected filters."
	}
}
