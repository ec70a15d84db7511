package domain

import "errors"

var (
	// ErrProductNotFound is returned when no product matches an id, slug, brand or category
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrRateLimited is returned when the upstream feed answers 429
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrUpstreamFailure is returned when the upstream product feed request fails
	ErrUpstreamFailure = errors.New("upstream product feed request failed")

	// ErrMalformedResponse is returned when an upstream body cannot be decoded
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrCatalogUnavailable is returned when neither the feed, a cache nor the fallback catalog has data
	ErrCatalogUnavailable = errors.New("product catalog unavailable")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrSuperseded is returned to a listing request that a newer request replaced
	ErrSuperseded = errors.New("listing request superseded")
)
