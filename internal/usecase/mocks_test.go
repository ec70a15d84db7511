package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valcommerce/storefront/internal/domain"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	mu       sync.Mutex
	data     map[string][]byte
	getError error
	setError error
	gets     int
	sets     int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{data: make(map[string][]byte)}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MockCacheRepository) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
}

// MockProductSource is a mock implementation of domain.ProductSource
type MockProductSource struct {
	mu       sync.Mutex
	products []domain.RemoteProduct
	err      error
	calls    int
	release  chan struct{}
}

func (m *MockProductSource) FetchRemoteProducts(ctx context.Context, query domain.RemoteQuery, maxPages int) ([]domain.RemoteProduct, error) {
	m.mu.Lock()
	m.calls++
	release := m.release
	products, err := m.products, m.err
	m.mu.Unlock()

	if release != nil {
		<-release
	}
	return products, err
}

func (m *MockProductSource) set(products []domain.RemoteProduct, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products, m.err = products, err
}

func (m *MockProductSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockSnapshotStore is a mock implementation of domain.SnapshotStore
type MockSnapshotStore struct {
	mu      sync.Mutex
	entry   *domain.CacheEntry
	loadErr error
	saved   []*domain.CacheEntry
	loads   int
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.entry == nil {
		return nil, domain.ErrCacheMiss
	}
	return m.entry, nil
}

func (m *MockSnapshotStore) Save(ctx context.Context, entry *domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, entry)
	return nil
}

// MockFallback is a mock implementation of domain.FallbackSource
type MockFallback struct {
	products []domain.RemoteProduct
	err      error
}

func (m *MockFallback) RemoteProducts() ([]domain.RemoteProduct, error) {
	return m.products, m.err
}

// MockPageSource is a mock implementation of domain.PageSource
type MockPageSource struct {
	mu      sync.Mutex
	pages   map[string]*domain.RemoteResponse
	err     error
	queries []domain.RemoteQuery
	cursors []string
}

func (m *MockPageSource) FetchPage(ctx context.Context, query domain.RemoteQuery, cursor string, limit int) (*domain.RemoteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	m.cursors = append(m.cursors, cursor)
	if m.err != nil {
		return nil, m.err
	}
	if page, ok := m.pages[cursor]; ok {
		return page, nil
	}
	return &domain.RemoteResponse{}, nil
}

// MockFacetSource is a mock implementation of domain.FacetSource.
// A non-nil release blocks brand fetches until it is closed or ctx ends.
type MockFacetSource struct {
	mu          sync.Mutex
	brands      []string
	categories  []string
	brandErr    error
	categoryErr error
	vendors     []string
	release     chan struct{}
}

func (m *MockFacetSource) FetchBrands(ctx context.Context, vendorID string) ([]string, error) {
	m.mu.Lock()
	m.vendors = append(m.vendors, vendorID)
	release := m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.brands, m.brandErr
}

func (m *MockFacetSource) FetchCategories(ctx context.Context, vendorID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors = append(m.vendors, vendorID)
	return m.categories, m.categoryErr
}

func (m *MockFacetSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vendors)
}

// MockVendorSource is a mock implementation of domain.VendorSource
type MockVendorSource struct {
	mu      sync.Mutex
	vendors []domain.Vendor
	err     error
	calls   int
}

func (m *MockVendorSource) FetchVendors(ctx context.Context) ([]domain.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.vendors, m.err
}

func (m *MockVendorSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// StaticCatalog is a domain.Catalog over a fixed product list
type StaticCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
}

func (c *StaticCatalog) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.products, c.err
}

func (c *StaticCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func remoteProduct(id int, title string) domain.RemoteProduct {
	return domain.RemoteProduct{
		ID:    domain.FlexNumber(float64(id)),
		Title: title,
		Price: domain.NewFlexValue(fmt.Sprintf("%d.50", id)),
	}
}

func product(id, name, category, brand, vendor string) domain.Product {
	return domain.Product{
		ID:         domain.ProductID(id),
		Slug:       name + "-" + id,
		Name:       name,
		Category:   category,
		Brand:      brand,
		Vendor:     vendor,
		InStock:    true,
		Highlights: []string{"x"},
		Link:       "/products/" + id,
	}
}
