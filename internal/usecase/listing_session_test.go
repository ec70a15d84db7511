package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valcommerce/storefront/internal/domain"
)

// fakePager records requests and answers them through respond
type fakePager struct {
	mu       sync.Mutex
	requests []domain.ProductFilters
	respond  func(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error)
}

func (f *fakePager) GetPagedProducts(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, filters)
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, filters)
}

func (f *fakePager) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakePager) request(i int) domain.ProductFilters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func numberedProducts(from, to int) []domain.Product {
	var out []domain.Product
	for i := from; i <= to; i++ {
		out = append(out, product(fmt.Sprint(i), fmt.Sprintf("Item %d", i), "Kitchen", "Acme", ""))
	}
	return out
}

func staticPager() *fakePager {
	return &fakePager{respond: func(_ context.Context, filters domain.ProductFilters) (*domain.PagedResult, error) {
		result := &domain.PagedResult{
			Page:       filters.Page,
			PageSize:   2,
			Total:      5,
			TotalPages: 3,
		}
		switch filters.Cursor {
		case "":
			result.Products = numberedProducts(1, 2)
			result.NextCursor = "c2"
		case "c2":
			result.Products = numberedProducts(2, 4)
			result.NextCursor = "c3"
		case "c3":
			result.Products = numberedProducts(5, 5)
		}
		if !filters.SkipFacets {
			result.Categories = []string{"Kitchen"}
			result.Brands = []string{"Acme"}
		}
		return result, nil
	}}
}

func TestListingSession_LoadMoreAppendsAndDedups(t *testing.T) {
	pager := staticPager()
	session := NewListingSession(pager, "jacamo", 2)
	ctx := context.Background()

	state, err := session.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Products, 2)
	assert.Equal(t, []string{"Kitchen"}, state.Categories)

	state, err = session.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Products, 4)
	assert.Equal(t, 2, state.Page)
	assert.Equal(t, []string{"Kitchen"}, state.Categories, "facets are kept across follow-up pages")

	state, err = session.LoadMore(ctx)
	require.NoError(t, err)
	ids := make([]domain.ProductID, 0, len(state.Products))
	for _, p := range state.Products {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []domain.ProductID{"1", "2", "3", "4", "5"}, ids)
	assert.Empty(t, state.NextCursor)

	second := pager.request(1)
	assert.Equal(t, "c2", second.Cursor)
	assert.Equal(t, 2, second.Page)
	assert.True(t, second.SkipFacets)
	assert.Equal(t, "jacamo", second.Vendor)
	assert.Equal(t, 2, second.PageSize)
}

func TestListingSession_LoadMoreWithoutCursorIsNoop(t *testing.T) {
	pager := staticPager()
	session := NewListingSession(pager, "", 2)

	state, err := session.LoadMore(context.Background())

	require.NoError(t, err)
	assert.Empty(t, state.Products)
	assert.Equal(t, 0, pager.requestCount())
}

func TestListingSession_FilterChangeReplacesAndRequestsFacets(t *testing.T) {
	pager := staticPager()
	session := NewListingSession(pager, "", 2)
	ctx := context.Background()

	_, err := session.Load(ctx)
	require.NoError(t, err)
	_, err = session.LoadMore(ctx)
	require.NoError(t, err)

	state, err := session.SelectCategory(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Len(t, state.Products, 2)
	assert.Equal(t, "Kitchen", state.Category)

	last := pager.request(pager.requestCount() - 1)
	assert.Equal(t, "Kitchen", last.Category)
	assert.Equal(t, 1, last.Page)
	assert.Empty(t, last.Cursor)
	assert.False(t, last.SkipFacets)

	state, err = session.SelectCategory(ctx, "All")
	require.NoError(t, err)
	assert.Empty(t, state.Category)

	_, err = session.SelectBrand(ctx, " Acme ")
	require.NoError(t, err)
	_, err = session.Search(ctx, "  mug ")
	require.NoError(t, err)

	last = pager.request(pager.requestCount() - 1)
	assert.Equal(t, "Acme", last.Brand)
	assert.Equal(t, "mug", last.Query)
	assert.False(t, last.SkipFacets)
}

func TestListingSession_GoToPageReplaces(t *testing.T) {
	pager := staticPager()
	session := NewListingSession(pager, "", 2)
	ctx := context.Background()

	_, err := session.Load(ctx)
	require.NoError(t, err)

	state, err := session.GoToPage(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, state.Products, 2)
	assert.Equal(t, 3, pager.request(1).Page)
	assert.True(t, pager.request(1).SkipFacets)
}

func TestListingSession_EmptyResultCarriesMessage(t *testing.T) {
	pager := &fakePager{respond: func(_ context.Context, filters domain.ProductFilters) (*domain.PagedResult, error) {
		return &domain.PagedResult{
			Page:        1,
			PageSize:    12,
			TotalPages:  1,
			Message:     `No products found in the "Garden" category.`,
			EmptyReason: domain.EmptyNoMatches,
		}, nil
	}}
	session := NewListingSession(pager, "", 0)

	state, err := session.SelectCategory(context.Background(), "Garden")

	require.NoError(t, err)
	assert.Empty(t, state.Products)
	assert.Equal(t, domain.EmptyNoMatches, state.EmptyReason)
	assert.Contains(t, state.Message, "Garden")
}

func TestListingSession_ErrorKeepsState(t *testing.T) {
	pager := staticPager()
	session := NewListingSession(pager, "", 2)
	ctx := context.Background()

	_, err := session.Load(ctx)
	require.NoError(t, err)

	pager.mu.Lock()
	pager.respond = func(context.Context, domain.ProductFilters) (*domain.PagedResult, error) {
		return nil, domain.ErrCatalogUnavailable
	}
	pager.mu.Unlock()

	state, err := session.LoadMore(ctx)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	assert.Len(t, state.Products, 2)
	assert.Equal(t, "c2", state.NextCursor)
}

func TestListingSession_NewerRequestSupersedesOlder(t *testing.T) {
	slowStarted := make(chan struct{})
	pager := &fakePager{respond: func(ctx context.Context, filters domain.ProductFilters) (*domain.PagedResult, error) {
		if filters.Category == "Slow" {
			close(slowStarted)
			<-ctx.Done()
			return &domain.PagedResult{Products: numberedProducts(90, 90), Page: 1, PageSize: 12, Total: 1, TotalPages: 1}, nil
		}
		return &domain.PagedResult{Products: numberedProducts(1, 1), Page: 1, PageSize: 12, Total: 1, TotalPages: 1}, nil
	}}
	session := NewListingSession(pager, "", 0)
	ctx := context.Background()

	slowErr := make(chan error, 1)
	go func() {
		_, err := session.SelectCategory(ctx, "Slow")
		slowErr <- err
	}()
	<-slowStarted

	state, err := session.SelectCategory(ctx, "Fast")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductID("1"), state.Products[0].ID)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, domain.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded request was not cancelled")
	}

	final := session.State()
	assert.Equal(t, "Fast", final.Category)
	require.Len(t, final.Products, 1)
	assert.Equal(t, domain.ProductID("1"), final.Products[0].ID)
}

func TestListingSession_CloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	pager := &fakePager{respond: func(ctx context.Context, _ domain.ProductFilters) (*domain.PagedResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	session := NewListingSession(pager, "", 0)

	done := make(chan error, 1)
	go func() {
		_, err := session.Load(context.Background())
		done <- err
	}()
	<-started
	session.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the request")
	}
}

func TestListingSession_StateIsACopy(t *testing.T) {
	session := NewListingSession(staticPager(), "", 2)

	state, err := session.Load(context.Background())
	require.NoError(t, err)
	state.Products[0].Name = "mutated"

	assert.Equal(t, "Item 1", session.State().Products[0].Name)
}

func TestListingSession_WorksWithQueryEngine(t *testing.T) {
	catalog := &StaticCatalog{products: numberedProducts(1, 5)}
	engine := NewQueryEngine(catalog, nil, nil, nil, QueryEngineConfig{DefaultPageSize: 2})
	session := NewListingSession(engine, "", 0)
	ctx := context.Background()

	state, err := session.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Products, 2)
	assert.Equal(t, 3, state.TotalPages)

	for state.NextCursor != "" {
		state, err = session.LoadMore(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, state.Products, 5)
	assert.Equal(t, 3, state.Page)
}
