package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are opaque bytes so memory and Redis backends behave the same.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ProductSource fetches raw product records from the upstream feed
type ProductSource interface {
	FetchRemoteProducts(ctx context.Context, query RemoteQuery, maxPages int) ([]RemoteProduct, error)
}

// PageSource fetches a single upstream page, used when paging is delegated upstream
type PageSource interface {
	FetchPage(ctx context.Context, query RemoteQuery, cursor string, limit int) (*RemoteResponse, error)
}

// FacetSource lists brands and categories known to the upstream feed
type FacetSource interface {
	FetchBrands(ctx context.Context, vendorID string) ([]string, error)
	FetchCategories(ctx context.Context, vendorID string) ([]string, error)
}

// VendorSource lists the tenants known to the upstream feed
type VendorSource interface {
	FetchVendors(ctx context.Context) ([]Vendor, error)
}

// VendorLookup finds a tenant by id
type VendorLookup interface {
	Lookup(ctx context.Context, id string) (Vendor, bool)
}

// SnapshotStore persists catalog snapshots across restarts
type SnapshotStore interface {
	Load(ctx context.Context) (*CacheEntry, error)
	Save(ctx context.Context, entry *CacheEntry) error
}

// Catalog serves the full normalized product list
type Catalog interface {
	FetchProducts(ctx context.Context) ([]Product, error)
}

// FallbackSource supplies the static catalog used when no live or cached data exists
type FallbackSource interface {
	RemoteProducts() ([]RemoteProduct, error)
}
