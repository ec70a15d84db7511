package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader  = "X-Request-ID"
	vendorHeader     = "X-Vendor-Id"
	vendorCookie     = "abt_vendor"
	vendorQueryParam = "vendor"

	requestIDKey = "request_id"
	vendorKey    = "vendor"
)

// CORSMiddleware handles CORS for the storefront frontends
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return isAllowedOrigin(origin, allowedOrigins)
		},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", vendorHeader, requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	})
}

// isAllowedOrigin checks if the origin is in the allowed list
func isAllowedOrigin(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range allowedOrigins {
		// Support wildcard matching for https://*.example.com style prefixes
		if strings.HasSuffix(allowed, "*") {
			prefix := strings.TrimSuffix(allowed, "*")
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		} else if origin == allowed {
			return true
		}
	}
	return false
}

// RequestIDMiddleware echoes the caller's X-Request-ID or generates one
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// VendorResolver validates a vendor id taken from the request
type VendorResolver interface {
	Resolve(ctx context.Context, candidate string) string
}

// VendorMiddleware scopes the request to a tenant.
// Lookup order: X-Vendor-Id header, abt_vendor cookie, vendor query parameter.
// Unknown vendors are dropped and the request sees the whole catalog.
func VendorMiddleware(resolver VendorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidate := strings.TrimSpace(c.GetHeader(vendorHeader))
		if candidate == "" {
			if cookie, err := c.Cookie(vendorCookie); err == nil {
				candidate = strings.TrimSpace(cookie)
			}
		}
		if candidate == "" {
			candidate = strings.TrimSpace(c.Query(vendorQueryParam))
		}

		if candidate != "" && resolver != nil {
			candidate = resolver.Resolve(c.Request.Context(), candidate)
		}
		c.Set(vendorKey, candidate)
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits each client IP to perMinute requests; 0 disables it
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	const (
		maxVisitors = 10000
		idleAfter   = 10 * time.Minute
	)
	every := rate.Every(time.Minute / time.Duration(perMinute))
	burst := max(perMinute/10, 1)

	var mu sync.Mutex
	visitors := make(map[string]*visitor)

	return func(c *gin.Context) {
		now := time.Now()
		ip := c.ClientIP()

		mu.Lock()
		v, ok := visitors[ip]
		if !ok {
			if len(visitors) >= maxVisitors {
				for key, old := range visitors {
					if now.Sub(old.lastSeen) > idleAfter {
						delete(visitors, key)
					}
				}
			}
			v = &visitor{limiter: rate.NewLimiter(every, burst)}
			visitors[ip] = v
		}
		v.lastSeen = now
		allowed := v.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(every)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs requests
func LoggerMiddleware() gin.HandlerFunc {
	return gin.Logger()
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}

func retryAfterSeconds(every rate.Limit) int {
	seconds := int(1 / float64(every))
	return max(seconds, 1)
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func vendorFrom(c *gin.Context) string {
	return c.GetString(vendorKey)
}
