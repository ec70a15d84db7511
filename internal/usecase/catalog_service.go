package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/infrastructure/upstream"
	"github.com/valcommerce/storefront/internal/pkg/clock"
)

const catalogRefreshKey = "catalog"

var trailingDigitsRegex = regexp.MustCompile(`\d+`)

// CatalogSource tells where the last served catalog came from
type CatalogSource string

const (
	SourceNone     CatalogSource = "none"
	SourceRemote   CatalogSource = "remote"
	SourceSnapshot CatalogSource = "snapshot"
	SourceStale    CatalogSource = "stale"
	SourceFallback CatalogSource = "fallback"
)

// CatalogServiceConfig holds configuration for the catalog service
type CatalogServiceConfig struct {
	TTL            time.Duration
	FailureBackoff time.Duration
	MaxPages       int
}

// CatalogStatus describes the catalog currently held in memory
type CatalogStatus struct {
	Source    CatalogSource `json:"source"`
	Count     int           `json:"count"`
	FetchedAt time.Time     `json:"fetchedAt,omitzero"`
	Fresh     bool          `json:"fresh"`
}

// CatalogService owns the process-wide product catalog. Reads are served from
// memory while fresh; a miss falls through to the on-disk snapshot and then the
// upstream feed. When the feed fails or comes back empty the last good catalog
// is served stale, and the bundled fallback catalog after that.
type CatalogService struct {
	source    domain.ProductSource
	snapshots domain.SnapshotStore
	fallback  domain.FallbackSource
	clock     clock.Clock

	ttl            time.Duration
	failureBackoff time.Duration
	maxPages       int

	mu            sync.RWMutex
	entry         *domain.CacheEntry
	entrySource   CatalogSource
	lastFailure   time.Time
	fallbackCache []domain.Product

	refreshes singleflight.Group
}

// NewCatalogService creates a catalog service. snapshots and fallback may be nil.
func NewCatalogService(
	source domain.ProductSource,
	snapshots domain.SnapshotStore,
	fallback domain.FallbackSource,
	clk clock.Clock,
	config CatalogServiceConfig,
) *CatalogService {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &CatalogService{
		source:         source,
		snapshots:      snapshots,
		fallback:       fallback,
		clock:          clk,
		ttl:            ttl,
		failureBackoff: config.FailureBackoff,
		maxPages:       config.MaxPages,
		entrySource:    SourceNone,
	}
}

// FetchProducts returns the normalized catalog. It only fails when the feed,
// every cache tier and the fallback catalog are all empty. The returned slice
// is shared and must not be modified.
func (s *CatalogService) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	if products, ok := s.freshProducts(); ok {
		return products, nil
	}

	// The refresh is shared by every waiting caller, so it must not die with the first caller's context
	shared := context.WithoutCancel(ctx)
	result := s.refreshes.DoChan(catalogRefreshKey, func() (interface{}, error) {
		return s.refresh(shared)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Product), nil
	}
}

// FindProduct looks a product up by id, then slug, then the last number in
// the parameter so that "2016-ford-ranger-1589" resolves to id 1589
func (s *CatalogService) FindProduct(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	needle := strings.TrimSpace(idOrSlug)
	if needle == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}

	products, err := s.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range products {
		if strings.EqualFold(products[i].ID.String(), needle) {
			return &products[i], nil
		}
	}
	for i := range products {
		if products[i].Slug == needle {
			return &products[i], nil
		}
	}
	if runs := trailingDigitsRegex.FindAllString(needle, -1); len(runs) > 0 {
		numericID := strings.TrimLeft(runs[len(runs)-1], "0")
		for i := range products {
			if products[i].ID.String() == numericID {
				return &products[i], nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrProductNotFound, needle)
}

// Status reports the catalog currently held in memory
func (s *CatalogService) Status() CatalogStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := CatalogStatus{Source: s.entrySource}
	if s.entry != nil {
		status.Count = len(s.entry.Products)
		status.FetchedAt = s.entry.FetchedAt
		status.Fresh = s.entry.Fresh(s.clock.Now(), s.ttl)
	} else if s.entrySource == SourceFallback {
		status.Count = len(s.fallbackCache)
	}
	return status
}

func (s *CatalogService) freshProducts() ([]domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry.Fresh(s.clock.Now(), s.ttl) {
		return s.entry.Products, true
	}
	return nil, false
}

func (s *CatalogService) refresh(ctx context.Context) ([]domain.Product, error) {
	if products, ok := s.freshProducts(); ok {
		return products, nil
	}

	if products, ok := s.restoreSnapshot(ctx); ok {
		return products, nil
	}

	if s.inFailureBackoff() {
		return s.degraded("failure backoff active")
	}

	start := s.clock.Now()
	raws, err := s.source.FetchRemoteProducts(ctx, domain.RemoteQuery{}, s.maxPages)
	if err != nil {
		s.recordFailure()
		log.Printf("[Catalog] remote fetch failed duration=%s err=%v", time.Since(start), err)
		return s.degraded("remote fetch failed")
	}

	products := upstream.NormalizeBatch(raws)
	if len(products) == 0 {
		s.recordFailure()
		log.Printf("[Catalog] remote returned no products")
		return s.degraded("remote returned no products")
	}

	entry := &domain.CacheEntry{
		Version:   domain.CatalogSchemaVersion,
		FetchedAt: s.clock.Now(),
		Products:  products,
	}

	s.mu.Lock()
	s.entry = entry
	s.entrySource = SourceRemote
	s.lastFailure = time.Time{}
	s.mu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, entry); err != nil {
			log.Printf("[Catalog] snapshot save failed err=%v", err)
		}
	}

	log.Printf("[Catalog] refreshed count=%d", len(products))
	return products, nil
}

// restoreSnapshot loads the persisted catalog when memory holds nothing yet.
// A stale snapshot is still kept as the degraded source of truth.
func (s *CatalogService) restoreSnapshot(ctx context.Context) ([]domain.Product, bool) {
	if s.snapshots == nil {
		return nil, false
	}

	s.mu.RLock()
	hasEntry := s.entry != nil
	s.mu.RUnlock()
	if hasEntry {
		return nil, false
	}

	entry, err := s.snapshots.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Printf("[Catalog] snapshot load failed err=%v", err)
		}
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil {
		s.entry = entry
		s.entrySource = SourceSnapshot
	}
	if entry.Fresh(s.clock.Now(), s.ttl) {
		log.Printf("[Catalog] restored snapshot count=%d age=%s", len(entry.Products), s.clock.Now().Sub(entry.FetchedAt))
		return entry.Products, true
	}
	return nil, false
}

func (s *CatalogService) inFailureBackoff() bool {
	if s.failureBackoff <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.lastFailure.IsZero() && s.clock.Now().Sub(s.lastFailure) < s.failureBackoff
}

func (s *CatalogService) recordFailure() {
	s.mu.Lock()
	s.lastFailure = s.clock.Now()
	s.mu.Unlock()
}

// degraded serves the last good catalog, then the bundled fallback
func (s *CatalogService) degraded(reason string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry.Valid() {
		if s.entrySource == SourceRemote || s.entrySource == SourceSnapshot {
			s.entrySource = SourceStale
		}
		log.Printf("[Catalog] serving stale catalog reason=%q count=%d", reason, len(s.entry.Products))
		return s.entry.Products, nil
	}

	if s.fallbackCache == nil && s.fallback != nil {
		raws, err := s.fallback.RemoteProducts()
		if err != nil {
			log.Printf("[Catalog] fallback catalog unavailable err=%v", err)
		} else {
			s.fallbackCache = upstream.NormalizeBatch(raws)
		}
	}

	if len(s.fallbackCache) > 0 {
		s.entrySource = SourceFallback
		log.Printf("[Catalog] serving fallback catalog reason=%q count=%d", reason, len(s.fallbackCache))
		return s.fallbackCache, nil
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrCatalogUnavailable, reason)
}
