package usecase

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/pkg/clock"
)

// VendorService caches the upstream vendor list and validates vendor selections
type VendorService struct {
	source domain.VendorSource
	clock  clock.Clock
	ttl    time.Duration

	mu        sync.RWMutex
	vendors   []domain.Vendor
	fetchedAt time.Time
	loaded    bool

	group singleflight.Group
}

// NewVendorService creates a vendor service; ttl defaults to 5 minutes
func NewVendorService(source domain.VendorSource, clk clock.Clock, ttl time.Duration) *VendorService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &VendorService{source: source, clock: clk, ttl: ttl}
}

// List returns the known vendors. fresh bypasses the cache. A failed or empty
// upstream answer is cached as an empty list so the feed is not hammered.
func (s *VendorService) List(ctx context.Context, fresh bool) []domain.Vendor {
	if !fresh {
		if vendors, ok := s.cached(); ok {
			return vendors
		}
	}

	v, _, _ := s.group.Do("vendors", func() (interface{}, error) {
		// The list is cached for everyone, so one caller leaving must not empty it
		vendors, err := s.source.FetchVendors(context.WithoutCancel(ctx))
		if err != nil {
			log.Printf("[Vendors] fetch failed err=%v", err)
			vendors = nil
		}
		if vendors == nil {
			vendors = []domain.Vendor{}
		}

		s.mu.Lock()
		s.vendors = vendors
		s.fetchedAt = s.clock.Now()
		s.loaded = true
		s.mu.Unlock()

		return vendors, nil
	})
	return v.([]domain.Vendor)
}

// Resolve validates a vendor candidate taken from the request. The candidate
// is trusted when the vendor list is unavailable; otherwise it must match a
// known vendor id and an unknown candidate resolves to "".
func (s *VendorService) Resolve(ctx context.Context, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}

	if len(s.List(ctx, false)) == 0 {
		return candidate
	}
	if vendor, ok := s.Lookup(ctx, candidate); ok {
		return vendor.ID
	}
	return ""
}

// Lookup returns the directory entry whose id is id
func (s *VendorService) Lookup(ctx context.Context, id string) (domain.Vendor, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Vendor{}, false
	}
	for _, vendor := range s.List(ctx, false) {
		if vendor.ID == id {
			return vendor, true
		}
	}
	return domain.Vendor{}, false
}

func (s *VendorService) cached() ([]domain.Vendor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.loaded && s.clock.Now().Sub(s.fetchedAt) < s.ttl {
		return s.vendors, true
	}
	return nil, false
}
