package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/infrastructure/upstream"
)

// QueryEngineConfig holds configuration for paged listings
type QueryEngineConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	CacheTTL        time.Duration
	// DelegatePaging forwards cursors to the upstream feed instead of slicing the local catalog
	DelegatePaging bool
}

// QueryEngine filters, pages and facets the catalog for listing requests.
// Results are kept in the response cache for a short time and concurrent
// identical requests share one computation.
type QueryEngine struct {
	catalog domain.Catalog
	pages   domain.PageSource
	facets  domain.FacetSource
	cache   domain.CacheRepository
	vendors domain.VendorLookup

	defaultPageSize int
	maxPageSize     int
	cacheTTL        time.Duration
	delegate        bool

	inflight singleflight.Group
}

// NewQueryEngine creates a query engine. pages, facets and cache may be nil.
func NewQueryEngine(
	catalog domain.Catalog,
	pages domain.PageSource,
	facets domain.FacetSource,
	cache domain.CacheRepository,
	config QueryEngineConfig,
) *QueryEngine {
	defaultPageSize := config.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = 12
	}
	maxPageSize := config.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 60
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	return &QueryEngine{
		catalog:         catalog,
		pages:           pages,
		facets:          facets,
		cache:           cache,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		cacheTTL:        config.CacheTTL,
		delegate:        config.DelegatePaging && pages != nil,
	}
}

// SetVendorLookup lets vendor scoping match products labelled with the vendor's name
func (e *QueryEngine) SetVendorLookup(vendors domain.VendorLookup) {
	e.vendors = vendors
}

// GetPagedProducts returns one page of the filtered catalog.
// Flow: response cache -> shared computation -> cache -> return
func (e *QueryEngine) GetPagedProducts(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error) {
	filters = e.normalizeFilters(filters)
	key := pagedCacheKey(filters)

	var cached domain.PagedResult
	if e.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	// Callers sharing the computation may leave early without cancelling it for the others
	shared := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(key, func() (interface{}, error) {
		result, err := e.computePage(shared, filters)
		if err != nil {
			return nil, err
		}
		e.setCached(shared, key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PagedResult), nil
	}
}

// Products returns the whole catalog, scoped to vendor when set
func (e *QueryEngine) Products(ctx context.Context, vendor string) ([]domain.Product, error) {
	products, err := e.catalog.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	scope := e.vendorScope(ctx, vendor)
	m := newMatcher()
	return filterProducts(products, func(p *domain.Product) bool { return m.vendor(p, scope) }), nil
}

// VisibleTo reports whether product belongs to vendor's catalog; an empty vendor sees everything
func (e *QueryEngine) VisibleTo(ctx context.Context, vendor string, product *domain.Product) bool {
	return newMatcher().vendor(product, e.vendorScope(ctx, vendor))
}

// vendorScope lists the values a product's vendor field may carry for vendor:
// its id and, when the directory knows it, its display name
func (e *QueryEngine) vendorScope(ctx context.Context, vendor string) []string {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return nil
	}
	scope := []string{vendor}
	if e.vendors != nil {
		if v, ok := e.vendors.Lookup(ctx, vendor); ok && v.Name != "" {
			scope = append(scope, v.Name)
		}
	}
	return scope
}

// Search returns every product whose descriptive fields contain query
func (e *QueryEngine) Search(ctx context.Context, vendor, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrInvalidRequest)
	}

	scoped, err := e.Products(ctx, vendor)
	if err != nil {
		return nil, err
	}
	m := newMatcher()
	return filterProducts(scoped, func(p *domain.Product) bool { return m.search(p, query) }), nil
}

// ByCategory returns the products in category; no match is ErrProductNotFound
func (e *QueryEngine) ByCategory(ctx context.Context, vendor, category string) ([]domain.Product, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", domain.ErrInvalidRequest)
	}

	scoped, err := e.Products(ctx, vendor)
	if err != nil {
		return nil, err
	}
	m := newMatcher()
	matched := filterProducts(scoped, func(p *domain.Product) bool { return m.category(p, category) })
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: no products in category %q", domain.ErrProductNotFound, category)
	}
	return matched, nil
}

// ByBrand returns the products of brand; an empty list is a valid answer
func (e *QueryEngine) ByBrand(ctx context.Context, vendor, brand string) ([]domain.Product, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return nil, fmt.Errorf("%w: brand is required", domain.ErrInvalidRequest)
	}

	scoped, err := e.Products(ctx, vendor)
	if err != nil {
		return nil, err
	}
	m := newMatcher()
	return filterProducts(scoped, func(p *domain.Product) bool { return m.brand(p, brand) }), nil
}

// Brands lists brand names from the upstream facet endpoint, falling back to the catalog
func (e *QueryEngine) Brands(ctx context.Context, vendor string) ([]string, error) {
	return e.facetList(ctx, "brands", vendor, func(ctx context.Context) ([]string, error) {
		return e.facets.FetchBrands(ctx, vendor)
	}, deriveBrands)
}

// Categories lists category names from the upstream facet endpoint, falling back to the catalog
func (e *QueryEngine) Categories(ctx context.Context, vendor string) ([]string, error) {
	return e.facetList(ctx, "categories", vendor, func(ctx context.Context) ([]string, error) {
		return e.facets.FetchCategories(ctx, vendor)
	}, deriveCategories)
}

func (e *QueryEngine) facetList(
	ctx context.Context,
	kind, vendor string,
	fetch func(ctx context.Context) ([]string, error),
	derive func([]domain.Product) []string,
) ([]string, error) {
	key := fmt.Sprintf("facets:%s:%s", kind, strings.ToLower(vendor))

	var cached []string
	if e.getCached(ctx, key, &cached) {
		return cached, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(key, func() (interface{}, error) {
		if e.facets != nil {
			values, err := fetch(shared)
			if err == nil && len(values) > 0 {
				sorted := sortFacets(values)
				e.setCached(shared, key, sorted)
				return sorted, nil
			}
			log.Printf("[Query] upstream %s unavailable, deriving from catalog vendor=%q err=%v", kind, vendor, err)
		}

		scoped, err := e.Products(shared, vendor)
		if err != nil {
			return nil, err
		}
		derived := derive(scoped)
		e.setCached(shared, key, derived)
		return derived, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func (e *QueryEngine) normalizeFilters(f domain.ProductFilters) domain.ProductFilters {
	f.Category = normalizeFacetParam(f.Category)
	f.Brand = normalizeFacetParam(f.Brand)
	f.Vendor = strings.TrimSpace(f.Vendor)
	f.Query = strings.TrimSpace(f.Query)
	f.Cursor = strings.TrimSpace(f.Cursor)

	if f.PageSize <= 0 {
		f.PageSize = e.defaultPageSize
	}
	if f.PageSize > e.maxPageSize {
		f.PageSize = e.maxPageSize
	}
	if f.Page < 1 {
		f.Page = 1
	}
	// Keeps (Page-1)*PageSize from overflowing; paginate clamps to the last page
	if maxPage := math.MaxInt / f.PageSize; f.Page > maxPage {
		f.Page = maxPage
	}
	return f
}

func (e *QueryEngine) computePage(ctx context.Context, f domain.ProductFilters) (*domain.PagedResult, error) {
	if e.delegate {
		result, err := e.delegatedPage(ctx, f)
		switch {
		case err == nil && (len(result.Products) > 0 || f.Cursor != ""):
			return result, nil
		case err != nil && errors.Is(err, domain.ErrInvalidRequest):
			return nil, err
		case err != nil:
			log.Printf("[Query] delegated page failed, using catalog cursor=%q err=%v", f.Cursor, err)
		default:
			log.Printf("[Query] delegated page empty, using catalog filters=%s", pagedCacheKey(f))
		}
		// Upstream cursors mean nothing to the local catalog
		f.Cursor = ""
	}

	return e.localPage(ctx, f)
}

func (e *QueryEngine) localPage(ctx context.Context, f domain.ProductFilters) (*domain.PagedResult, error) {
	offset := (f.Page - 1) * f.PageSize
	if f.Cursor != "" {
		var err error
		if offset, err = decodeOffsetCursor(f.Cursor); err != nil {
			return nil, err
		}
	}

	products, err := e.catalog.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}

	scope := e.vendorScope(ctx, f.Vendor)
	m := newMatcher()
	// Vendor scoping comes first so facets and empty states reflect the tenant's catalog
	scoped := filterProducts(products, func(p *domain.Product) bool { return m.vendor(p, scope) })
	searched := filterProducts(scoped, func(p *domain.Product) bool { return m.search(p, f.Query) })
	brandFiltered := filterProducts(searched, func(p *domain.Product) bool { return m.brand(p, f.Brand) })
	matched := filterProducts(brandFiltered, func(p *domain.Product) bool { return m.category(p, f.Category) })

	result := paginate(matched, offset, f.PageSize)

	if !f.SkipFacets {
		if f.Category == "" {
			result.Categories = deriveCategories(brandFiltered)
		} else {
			result.Categories = deriveCategories(matched)
		}
		result.Brands = deriveBrands(scoped)
	}

	if result.Total == 0 {
		result.EmptyReason, result.Message = describeEmpty(f, len(scoped) == 0)
	}
	return result, nil
}

// delegatedPage lets the upstream feed do the paging; the page number is
// derived from the caller's page count since cursors are opaque
func (e *QueryEngine) delegatedPage(ctx context.Context, f domain.ProductFilters) (*domain.PagedResult, error) {
	query := domain.RemoteQuery{
		VendorID:   f.Vendor,
		BrandID:    f.Brand,
		CategoryID: f.Category,
		Search:     f.Query,
	}

	resp, err := e.pages.FetchPage(ctx, query, f.Cursor, f.PageSize)
	if err != nil {
		return nil, err
	}

	products := upstream.NormalizeBatch(resp.Items)
	page := f.Page
	if f.Cursor == "" {
		page = 1
	}

	result := &domain.PagedResult{
		Products:   products,
		Page:       page,
		PageSize:   f.PageSize,
		Total:      (page-1)*f.PageSize + len(products),
		TotalPages: page,
		NextCursor: resp.NextCursor,
	}
	if resp.NextCursor != "" {
		result.TotalPages = page + 1
	}

	if !f.SkipFacets {
		result.Brands, result.Categories = e.upstreamFacets(ctx, f.Vendor)
		if len(result.Brands) == 0 && len(result.Categories) == 0 {
			result.Brands = deriveBrands(products)
			result.Categories = deriveCategories(products)
		}
	}

	if len(products) == 0 {
		result.EmptyReason, result.Message = describeEmpty(f, false)
	}
	return result, nil
}

// upstreamFacets fetches brands and categories in parallel; a failed side is left empty
func (e *QueryEngine) upstreamFacets(ctx context.Context, vendor string) (brands, categories []string) {
	if e.facets == nil {
		return nil, nil
	}

	var g errgroup.Group
	g.Go(func() error {
		values, err := e.facets.FetchBrands(ctx, vendor)
		if err != nil {
			log.Printf("[Query] brand facets failed vendor=%q err=%v", vendor, err)
			return nil
		}
		brands = sortFacets(values)
		return nil
	})
	g.Go(func() error {
		values, err := e.facets.FetchCategories(ctx, vendor)
		if err != nil {
			log.Printf("[Query] category facets failed vendor=%q err=%v", vendor, err)
			return nil
		}
		categories = sortFacets(values)
		return nil
	})
	_ = g.Wait()

	return brands, categories
}

func (e *QueryEngine) getCached(ctx context.Context, key string, dest interface{}) bool {
	if e.cache == nil || e.cacheTTL <= 0 {
		return false
	}

	data, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Printf("[Query] cache read failed key=%s err=%v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("[Query] cache entry unreadable key=%s err=%v", key, err)
		return false
	}
	return true
}

func (e *QueryEngine) setCached(ctx context.Context, key string, value interface{}) {
	if e.cache == nil || e.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[Query] cache encode failed key=%s err=%v", key, err)
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
		// Log but don't fail if caching fails
		log.Printf("[Query] cache write failed key=%s err=%v", key, err)
	}
}

// pagedCacheKey builds a stable key per distinct filter combination.
// Format: "paged:{url-encoded filters}"
func pagedCacheKey(f domain.ProductFilters) string {
	values := url.Values{}
	values.Set("vendor", strings.ToLower(f.Vendor))
	values.Set("category", strings.ToLower(f.Category))
	values.Set("brand", strings.ToLower(f.Brand))
	values.Set("q", strings.ToLower(f.Query))
	values.Set("page", strconv.Itoa(f.Page))
	values.Set("pageSize", strconv.Itoa(f.PageSize))
	values.Set("cursor", f.Cursor)
	values.Set("facets", strconv.FormatBool(!f.SkipFacets))
	return "paged:" + values.Encode()
}
