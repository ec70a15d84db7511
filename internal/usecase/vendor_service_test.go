package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/pkg/clock"
)

func TestVendorService_CachesList(t *testing.T) {
	source := &MockVendorSource{vendors: []domain.Vendor{{ID: "jacamo", Name: "Jacamo"}}}
	clk := clock.NewManualClock(testEpoch)
	service := NewVendorService(source, clk, 5*time.Minute)
	ctx := context.Background()

	assert.Equal(t, source.vendors, service.List(ctx, false))
	assert.Equal(t, source.vendors, service.List(ctx, false))
	assert.Equal(t, 1, source.callCount())

	service.List(ctx, true)
	assert.Equal(t, 2, source.callCount())

	clk.Advance(6 * time.Minute)
	service.List(ctx, false)
	assert.Equal(t, 3, source.callCount())
}

func TestVendorService_FailureCachesEmptyList(t *testing.T) {
	source := &MockVendorSource{err: domain.ErrUpstreamFailure}
	service := NewVendorService(source, clock.NewManualClock(testEpoch), time.Minute)
	ctx := context.Background()

	vendors := service.List(ctx, false)
	assert.NotNil(t, vendors)
	assert.Empty(t, vendors)

	service.List(ctx, false)
	assert.Equal(t, 1, source.callCount())
}

func TestVendorService_Resolve(t *testing.T) {
	ctx := context.Background()
	known := NewVendorService(&MockVendorSource{vendors: []domain.Vendor{
		{ID: "jacamo", Name: "Jacamo"},
		{ID: "fenwick", Name: "Fenwick"},
	}}, clock.NewManualClock(testEpoch), time.Minute)
	unavailable := NewVendorService(&MockVendorSource{err: domain.ErrUpstreamFailure}, clock.NewManualClock(testEpoch), time.Minute)

	tests := []struct {
		name      string
		service   *VendorService
		candidate string
		want      string
	}{
		{"empty candidate", known, "  ", ""},
		{"known vendor", known, " fenwick ", "fenwick"},
		{"unknown vendor", known, "mallory", ""},
		{"name is not an id", known, "Jacamo", ""},
		{"list unavailable trusts candidate", unavailable, "anything", "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.service.Resolve(ctx, tt.candidate))
		})
	}
}

func TestVendorService_Lookup(t *testing.T) {
	service := NewVendorService(&MockVendorSource{vendors: []domain.Vendor{
		{ID: "42", Name: "Jacamo"},
	}}, clock.NewManualClock(testEpoch), time.Minute)
	ctx := context.Background()

	vendor, ok := service.Lookup(ctx, " 42 ")
	assert.True(t, ok)
	assert.Equal(t, "Jacamo", vendor.Name)

	_, ok = service.Lookup(ctx, "Jacamo")
	assert.False(t, ok)

	_, ok = service.Lookup(ctx, "")
	assert.False(t, ok)
}

func TestVendorService_CancelledCallerStillCachesList(t *testing.T) {
	source := &MockVendorSource{vendors: []domain.Vendor{{ID: "jacamo", Name: "Jacamo"}}}
	service := NewVendorService(source, clock.NewManualClock(testEpoch), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	service.List(ctx, false)

	assert.Equal(t, source.vendors, service.List(context.Background(), false))
	assert.Equal(t, 1, source.callCount())
}
