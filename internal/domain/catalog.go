package domain

import (
	"encoding/json"
	"time"
)

// CatalogSchemaVersion is bumped whenever the Product shape changes so that
// persisted caches written by older builds are discarded
const CatalogSchemaVersion = 3

// CacheEntry is a catalog snapshot held in memory and persisted to disk
type CacheEntry struct {
	Version   int
	FetchedAt time.Time
	Products  []Product
}

// Valid reports whether the entry was written with the current schema and has data
func (e *CacheEntry) Valid() bool {
	return e != nil && e.Version == CatalogSchemaVersion && len(e.Products) > 0
}

// Fresh reports whether the entry is valid and younger than ttl
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Valid() && now.Sub(e.FetchedAt) < ttl
}

type cacheEntryJSON struct {
	Version   int       `json:"version"`
	FetchedAt int64     `json:"fetchedAt"`
	Products  []Product `json:"products"`
}

// MarshalJSON writes fetchedAt as epoch milliseconds
func (e CacheEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(cacheEntryJSON{
		Version:   e.Version,
		FetchedAt: e.FetchedAt.UnixMilli(),
		Products:  e.Products,
	})
}

// UnmarshalJSON reads fetchedAt as epoch milliseconds
func (e *CacheEntry) UnmarshalJSON(data []byte) error {
	var raw cacheEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Version = raw.Version
	e.FetchedAt = time.UnixMilli(raw.FetchedAt)
	e.Products = raw.Products
	return nil
}

// ProductFilters is a paged listing request
type ProductFilters struct {
	Category string
	Brand    string
	Vendor   string
	Query    string
	Page     int
	Cursor   string
	PageSize int
	// SkipFacets disables category/brand facet derivation for follow-up pages
	SkipFacets bool
}

// EmptyReason distinguishes an empty filter result from an empty catalog
type EmptyReason string

const (
	EmptyNoMatches  EmptyReason = "no_matches"
	EmptyNoProducts EmptyReason = "no_products"
)

// PagedResult is a filtered, sliced view over the catalog
type PagedResult struct {
	Products    []Product   `json:"products"`
	Page        int         `json:"page"`
	PageSize    int         `json:"pageSize"`
	Total       int         `json:"total"`
	TotalPages  int         `json:"totalPages"`
	NextCursor  string      `json:"nextCursor,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Brands      []string    `json:"brands,omitempty"`
	Message     string      `json:"error,omitempty"`
	EmptyReason EmptyReason `json:"emptyReason,omitempty"`
}
