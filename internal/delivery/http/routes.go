package http

import (
	"github.com/gin-gonic/gin"

	"github.com/valcommerce/storefront/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/vendors", handler.ListVendors)

		products := v1.Group("/products")
		products.Use(VendorMiddleware(handler.vendors))
		{
			products.GET("", handler.ListProducts)
			products.GET("/paged", handler.PagedProducts)
			products.GET("/search", handler.SearchProducts)
			products.GET("/brands", handler.ListBrands)
			products.GET("/categories", handler.ListCategories)
			products.GET("/category/:category", handler.ProductsByCategory)
			products.GET("/brand/:brand", handler.ProductsByBrand)
			products.GET("/:id", handler.GetProduct)
		}
	}

	return router
}
