package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/valcommerce/storefront/internal/domain"
)

// Pager serves paged listing requests
type Pager interface {
	GetPagedProducts(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error)
}

// ListingState is what a listing view renders
type ListingState struct {
	Vendor      string
	Category    string
	Brand       string
	Query       string
	Products    []domain.Product
	Page        int
	PageSize    int
	Total       int
	TotalPages  int
	NextCursor  string
	Categories  []string
	Brands      []string
	Message     string
	EmptyReason domain.EmptyReason
}

// ListingSession drives one browsing session over a Pager. Facets are only
// requested for the first page after a filter change. LoadMore appends the
// next page and drops products already shown. Starting a request cancels the
// one in flight, and a superseded request never touches the session state.
type ListingSession struct {
	pager Pager

	mu            sync.Mutex
	filters       domain.ProductFilters
	state         ListingState
	includeFacets bool
	generation    uint64
	cancel        context.CancelFunc
}

// NewListingSession creates a session scoped to vendor; pageSize 0 uses the engine default
func NewListingSession(pager Pager, vendor string, pageSize int) *ListingSession {
	return &ListingSession{
		pager:         pager,
		filters:       domain.ProductFilters{Vendor: strings.TrimSpace(vendor), PageSize: pageSize},
		includeFacets: true,
	}
}

// Load fetches the first page for the current filters
func (s *ListingSession) Load(ctx context.Context) (ListingState, error) {
	return s.run(ctx, nil, 1, "", false)
}

// SelectCategory switches the category filter; "" or "All" clears it
func (s *ListingSession) SelectCategory(ctx context.Context, category string) (ListingState, error) {
	return s.run(ctx, func(f *domain.ProductFilters) { f.Category = normalizeFacetParam(category) }, 1, "", false)
}

// SelectBrand switches the brand filter; "" or "All" clears it
func (s *ListingSession) SelectBrand(ctx context.Context, brand string) (ListingState, error) {
	return s.run(ctx, func(f *domain.ProductFilters) { f.Brand = normalizeFacetParam(brand) }, 1, "", false)
}

// Search switches the free-text filter
func (s *ListingSession) Search(ctx context.Context, query string) (ListingState, error) {
	return s.run(ctx, func(f *domain.ProductFilters) { f.Query = strings.TrimSpace(query) }, 1, "", false)
}

// GoToPage replaces the product list with the given page
func (s *ListingSession) GoToPage(ctx context.Context, page int) (ListingState, error) {
	return s.run(ctx, nil, page, "", false)
}

// LoadMore appends the next page. It is a no-op when there is no next page.
func (s *ListingSession) LoadMore(ctx context.Context) (ListingState, error) {
	s.mu.Lock()
	cursor, page := s.state.NextCursor, s.state.Page
	s.mu.Unlock()

	if cursor == "" {
		return s.State(), nil
	}
	return s.run(ctx, nil, page+1, cursor, true)
}

// State returns a copy of the current state
func (s *ListingSession) State() ListingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Close cancels the request in flight, if any
func (s *ListingSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

func (s *ListingSession) run(
	ctx context.Context,
	change func(*domain.ProductFilters),
	page int,
	cursor string,
	appendResults bool,
) (ListingState, error) {
	s.mu.Lock()
	if change != nil {
		change(&s.filters)
		s.includeFacets = true
	}
	filters := s.filters
	filters.Page = page
	filters.Cursor = cursor
	filters.SkipFacets = !s.includeFacets

	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	generation := s.generation
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	result, err := s.pager.GetPagedProducts(reqCtx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return s.snapshot(), domain.ErrSuperseded
	}
	cancel()
	s.cancel = nil

	if err != nil {
		return s.snapshot(), err
	}

	s.apply(filters, result, appendResults)
	s.includeFacets = false
	return s.snapshot(), nil
}

func (s *ListingSession) apply(filters domain.ProductFilters, result *domain.PagedResult, appendResults bool) {
	s.state.Vendor = filters.Vendor
	s.state.Category = filters.Category
	s.state.Brand = filters.Brand
	s.state.Query = filters.Query

	if appendResults {
		seen := make(map[domain.ProductID]bool, len(s.state.Products)+len(result.Products))
		merged := make([]domain.Product, 0, len(s.state.Products)+len(result.Products))
		for _, p := range s.state.Products {
			seen[p.ID] = true
			merged = append(merged, p)
		}
		for _, p := range result.Products {
			if !seen[p.ID] {
				seen[p.ID] = true
				merged = append(merged, p)
			}
		}
		s.state.Products = merged
	} else {
		s.state.Products = append([]domain.Product{}, result.Products...)
	}

	s.state.Page = result.Page
	s.state.PageSize = result.PageSize
	s.state.Total = result.Total
	s.state.TotalPages = result.TotalPages
	s.state.NextCursor = result.NextCursor

	if !filters.SkipFacets {
		s.state.Categories = result.Categories
		s.state.Brands = result.Brands
	}

	if len(s.state.Products) == 0 {
		s.state.Message = result.Message
		s.state.EmptyReason = result.EmptyReason
	} else {
		s.state.Message = ""
		s.state.EmptyReason = ""
	}
}

func (s *ListingSession) snapshot() ListingState {
	state := s.state
	state.Products = append([]domain.Product(nil), s.state.Products...)
	state.Categories = append([]string(nil), s.state.Categories...)
	state.Brands = append([]string(nil), s.state.Brands...)
	return state
}
