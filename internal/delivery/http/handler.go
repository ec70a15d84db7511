package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/usecase"
)

const (
	serviceName    = "storefront-catalog"
	serviceVersion = "1.0.0"
)

// ProductQueries serves catalog listings
type ProductQueries interface {
	GetPagedProducts(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error)
	Products(ctx context.Context, vendor string) ([]domain.Product, error)
	Search(ctx context.Context, vendor, query string) ([]domain.Product, error)
	ByCategory(ctx context.Context, vendor, category string) ([]domain.Product, error)
	ByBrand(ctx context.Context, vendor, brand string) ([]domain.Product, error)
	Brands(ctx context.Context, vendor string) ([]string, error)
	Categories(ctx context.Context, vendor string) ([]string, error)
	VisibleTo(ctx context.Context, vendor string, product *domain.Product) bool
}

// ProductCatalog looks up single products and reports catalog health
type ProductCatalog interface {
	FindProduct(ctx context.Context, idOrSlug string) (*domain.Product, error)
	Status() usecase.CatalogStatus
}

// VendorDirectory lists and validates tenants
type VendorDirectory interface {
	VendorResolver
	List(ctx context.Context, fresh bool) []domain.Vendor
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	queries ProductQueries
	catalog ProductCatalog
	vendors VendorDirectory
}

// NewHandler creates a new HTTP handler. Nil dependencies answer 503.
func NewHandler(queries ProductQueries, catalog ProductCatalog, vendors VendorDirectory) *Handler {
	return &Handler{
		queries: queries,
		catalog: catalog,
		vendors: vendors,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}
	if h.catalog != nil {
		response["catalog"] = h.catalog.Status()
	}
	c.JSON(http.StatusOK, response)
}

// ListProducts returns the whole (vendor-scoped) catalog
func (h *Handler) ListProducts(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	products, err := h.queries.Products(c.Request.Context(), vendorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// PagedProducts returns one page of the filtered catalog
func (h *Handler) PagedProducts(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	filters := domain.ProductFilters{
		Category:   c.Query("category"),
		Brand:      c.Query("brand"),
		Vendor:     vendorFrom(c),
		Query:      c.Query("q"),
		Page:       positiveQuery(c, "page"),
		PageSize:   positiveQuery(c, "pageSize"),
		Cursor:     c.Query("cursor"),
		SkipFacets: c.Query("includeFacets") == "0" || strings.EqualFold(c.Query("includeFacets"), "false"),
	}

	result, err := h.queries.GetPagedProducts(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SearchProducts handles free-text product search
func (h *Handler) SearchProducts(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}

	products, err := h.queries.Search(c.Request.Context(), vendorFrom(c), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// ListBrands returns the brand names available to the vendor
func (h *Handler) ListBrands(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	brands, err := h.queries.Brands(c.Request.Context(), vendorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

// ListCategories returns the sorted category names available to the vendor
func (h *Handler) ListCategories(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	categories, err := h.queries.Categories(c.Request.Context(), vendorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// ProductsByCategory returns the products in one category
func (h *Handler) ProductsByCategory(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	category := strings.TrimSpace(c.Param("category"))
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Category is required"})
		return
	}

	products, err := h.queries.ByCategory(c.Request.Context(), vendorFrom(c), category)
	if errors.Is(err, domain.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No products found in category \"" + category + "\""})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// ProductsByBrand returns the products of one brand; an unknown brand yields an empty list
func (h *Handler) ProductsByBrand(c *gin.Context) {
	if !h.requireQueries(c) {
		return
	}

	brand := strings.TrimSpace(c.Param("brand"))
	if brand == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Brand is required"})
		return
	}

	products, err := h.queries.ByBrand(c.Request.Context(), vendorFrom(c), brand)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct returns one product by id or slug together with its canonical path
func (h *Handler) GetProduct(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Product catalog not configured"})
		return
	}

	product, err := h.catalog.FindProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	// A vendor-scoped session only opens its own products
	if vendor := vendorFrom(c); vendor != "" && h.queries != nil && !h.queries.VisibleTo(c.Request.Context(), vendor, product) {
		h.respondError(c, fmt.Errorf("%w: %s", domain.ErrProductNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":       product,
		"canonicalPath": "/products/" + product.Slug,
	})
}

// ListVendors returns the known vendors; fresh=1 bypasses the vendor cache
func (h *Handler) ListVendors(c *gin.Context) {
	if h.vendors == nil {
		c.JSON(http.StatusOK, gin.H{"data": []domain.Vendor{}})
		return
	}

	fresh := c.Query("fresh") == "1" || strings.EqualFold(c.Query("fresh"), "true")
	c.JSON(http.StatusOK, gin.H{"data": h.vendors.List(c.Request.Context(), fresh)})
}

func (h *Handler) requireQueries(c *gin.Context) bool {
	if h.queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Product catalog not configured"})
		return false
	}
	return true
}

// respondError maps domain errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] request_id=%s path=%s status=%d err=%v", requestID(c), c.Request.URL.Path, status, err)
	}

	message := err.Error()
	switch status {
	case http.StatusBadGateway:
		message = "Product feed unavailable"
	case http.StatusServiceUnavailable:
		message = "Product catalog unavailable"
	case http.StatusInternalServerError:
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamFailure),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// positiveQuery parses a positive integer parameter; anything else is 0 so the default applies
func positiveQuery(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
