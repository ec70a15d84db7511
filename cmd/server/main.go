package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/valcommerce/storefront/config"
	"github.com/valcommerce/storefront/internal/domain"
	httpDelivery "github.com/valcommerce/storefront/internal/delivery/http"
	"github.com/valcommerce/storefront/internal/infrastructure/cache"
	"github.com/valcommerce/storefront/internal/infrastructure/fallback"
	"github.com/valcommerce/storefront/internal/infrastructure/snapshot"
	"github.com/valcommerce/storefront/internal/infrastructure/upstream"
	"github.com/valcommerce/storefront/internal/pkg/clock"
	"github.com/valcommerce/storefront/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Storefront Catalog v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Cache Type: %s", cfg.Cache.Type)

	// Initialize infrastructure dependencies
	responseCache, closeCache, err := newResponseCache(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer closeCache()
	log.Printf("Cache TTL: %s", cfg.Cache.TTL)

	feedClient := upstream.NewClient(cfg.Upstream.BaseURL, upstream.ClientConfig{
		PageSize:          cfg.Upstream.PageSize,
		MaxPages:          cfg.Upstream.MaxPages,
		MaxRetries:        cfg.Upstream.MaxRetries,
		RetryBackoff:      cfg.Upstream.RetryBackoff,
		RequestTimeout:    cfg.Upstream.RequestTimeout,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
	})

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		feedClient.SetDebug(true)
		log.Printf("Upstream client debug mode enabled")
	}
	log.Printf("Upstream feed configured: %s (page size %d, max pages %d)",
		cfg.Upstream.BaseURL, cfg.Upstream.PageSize, cfg.Upstream.MaxPages)

	snapshots := snapshot.NewFileStore(cfg.Catalog.SnapshotPath)
	fallbackCatalog := fallback.NewCatalog(cfg.Catalog.FallbackPath)
	clk := clock.NewRealClock()

	// Initialize usecase layer
	catalogService := usecase.NewCatalogService(
		feedClient,
		snapshots,
		fallbackCatalog,
		clk,
		usecase.CatalogServiceConfig{
			TTL:            cfg.Catalog.TTL,
			FailureBackoff: cfg.Catalog.FailureBackoff,
			MaxPages:       cfg.Upstream.MaxPages,
		},
	)
	log.Printf("Catalog: ttl=%s, failure backoff=%s, snapshot=%s",
		cfg.Catalog.TTL, cfg.Catalog.FailureBackoff, snapshots.Path())

	queryEngine := usecase.NewQueryEngine(
		catalogService,
		feedClient,
		feedClient,
		responseCache,
		usecase.QueryEngineConfig{
			DefaultPageSize: cfg.Paging.DefaultPageSize,
			MaxPageSize:     cfg.Paging.MaxPageSize,
			CacheTTL:        cfg.Cache.TTL,
			DelegatePaging:  cfg.Catalog.DelegatePaging,
		},
	)
	log.Printf("Paging: default=%d, max=%d, delegate=%v",
		cfg.Paging.DefaultPageSize, cfg.Paging.MaxPageSize, cfg.Catalog.DelegatePaging)

	vendorService := usecase.NewVendorService(feedClient, clk, cfg.Vendors.TTL)
	queryEngine.SetVendorLookup(vendorService)

	// Warm the catalog so the first visitor does not pay for the upstream crawl
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := catalogService.FetchProducts(ctx); err != nil {
			log.Printf("[Catalog] warm-up failed err=%v", err)
			return
		}
		status := catalogService.Status()
		log.Printf("[Catalog] warm-up done source=%s count=%d", status.Source, status.Count)
	}()

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(queryEngine, catalogService, vendorService)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newResponseCache builds the response cache backend selected by cache.type
func newResponseCache(cfg config.CacheConfig) (domain.CacheRepository, func(), error) {
	if cfg.Type == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisCache, func() { redisCache.Close() }, nil
	}

	memoryCache := cache.NewMemoryCache()
	return memoryCache, func() { memoryCache.Close() }, nil
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
