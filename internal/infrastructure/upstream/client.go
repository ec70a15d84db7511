package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/valcommerce/storefront/internal/domain"
	"github.com/valcommerce/storefront/internal/pkg/retry"
)

const (
	defaultPageSize   = 100
	defaultMaxPages   = 50
	vendorListLimit   = 50
	maxErrorBodyBytes = 512

	// maxRateLimitedRetries caps retries of 429 answers below the general policy
	maxRateLimitedRetries = 1

	// pageCursorPrefix marks cursors we mint for feeds that page by number
	pageCursorPrefix = "page:"
)

// ClientConfig holds the upstream client knobs
type ClientConfig struct {
	PageSize     int
	MaxPages     int
	MaxRetries   int
	RetryBackoff time.Duration
	// RequestTimeout bounds each HTTP attempt; 0 disables it
	RequestTimeout time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 disables it
	RequestsPerSecond float64
}

// Client handles communication with the upstream product feed
type Client struct {
	httpClient     *http.Client
	baseURL        string
	rateLimiter    *rate.Limiter
	policy         retry.Policy
	pageSize       int
	maxPages       int
	requestTimeout time.Duration
	debug          bool
}

// NewClient creates a new upstream feed client
func NewClient(baseURL string, cfg ClientConfig) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		// Timeouts are applied per attempt through the request context
		httpClient:  &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: limiter,
		policy: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    retry.Linear(backoff),
		},
		pageSize:       pageSize,
		maxPages:       maxPages,
		requestTimeout: cfg.RequestTimeout,
	}
}

// SetDebug enables logging of every request URL
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// StatusError is a non-2xx upstream answer
type StatusError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// RetryAfter is the delay requested by a 429 Retry-After header
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrProductNotFound
	default:
		return domain.ErrUpstreamFailure
	}
}

// FetchRemoteProducts walks the listing endpoint page by page, following
// either a page counter or the cursor the feed returns. Each page is retried
// per the client policy. When a later page still fails, pagination stops and
// the records gathered so far are returned. An error is only returned when
// the first page cannot be loaded.
func (c *Client) FetchRemoteProducts(ctx context.Context, query domain.RemoteQuery, maxPages int) ([]domain.RemoteProduct, error) {
	if maxPages <= 0 {
		maxPages = c.maxPages
	}

	start := time.Now()
	endpoint := c.baseURL + "/products"
	var products []domain.RemoteProduct
	cursor := ""
	pages := 0

	for page := 1; page <= maxPages; page++ {
		resp, err := c.fetchListingPage(ctx, query, page, cursor, c.pageSize)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) && page == 1 {
				log.Printf("[Upstream] no listing endpoint=%s query=%+v", endpoint, query)
				return []domain.RemoteProduct{}, nil
			}
			if page == 1 {
				log.Printf("[Upstream] first page failed endpoint=%s duration=%s err=%v", endpoint, time.Since(start), err)
				return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
			}
			log.Printf("[Upstream] page %d failed, returning partial result endpoint=%s count=%d err=%v",
				page, endpoint, len(products), err)
			break
		}

		pages++
		products = append(products, resp.Items...)

		if len(resp.Items) == 0 {
			break
		}
		if resp.HasCursor {
			if resp.NextCursor == "" || resp.NextCursor == cursor {
				break
			}
			cursor = resp.NextCursor
			continue
		}
		if len(resp.Items) < c.pageSize {
			break
		}
	}

	log.Printf("[Upstream] fetched endpoint=%s count=%d pages=%d duration=%s",
		endpoint, len(products), pages, time.Since(start))
	return products, nil
}

// FetchPage loads a single listing page. An empty cursor means the first page.
// For feeds that page by number the returned NextCursor is minted locally.
func (c *Client) FetchPage(ctx context.Context, query domain.RemoteQuery, cursor string, limit int) (*domain.RemoteResponse, error) {
	if limit <= 0 {
		limit = c.pageSize
	}

	page := 1
	upstreamCursor := cursor
	if strings.HasPrefix(cursor, pageCursorPrefix) {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, pageCursorPrefix))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad cursor %q", domain.ErrInvalidRequest, cursor)
		}
		page = n
		upstreamCursor = ""
	}

	resp, err := c.fetchListingPage(ctx, query, page, upstreamCursor, limit)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return &domain.RemoteResponse{Items: []domain.RemoteProduct{}}, nil
		}
		return nil, err
	}

	if !resp.HasCursor {
		resp.NextCursor = ""
		if len(resp.Items) >= limit {
			resp.NextCursor = pageCursorPrefix + strconv.Itoa(page+1)
		}
	}
	return resp, nil
}

// FetchBrands lists brand names, scoped to a vendor when vendorID is set
func (c *Client) FetchBrands(ctx context.Context, vendorID string) ([]string, error) {
	body, err := c.getWithRetry(ctx, facetPath("brands", vendorID), nil)
	if err != nil {
		return nil, err
	}
	return decodeNames(body, "brands")
}

// FetchCategories lists category names, scoped to a vendor when vendorID is set
func (c *Client) FetchCategories(ctx context.Context, vendorID string) ([]string, error) {
	body, err := c.getWithRetry(ctx, facetPath("categories", vendorID), nil)
	if err != nil {
		return nil, err
	}
	return decodeNames(body, "categories")
}

// FetchVendors lists the tenants known upstream
func (c *Client) FetchVendors(ctx context.Context) ([]domain.Vendor, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(vendorListLimit))

	body, err := c.getWithRetry(ctx, "/vendors", params)
	if err != nil {
		return nil, err
	}
	return decodeVendors(body)
}

func facetPath(kind, vendorID string) string {
	if vendorID == "" {
		return "/" + kind
	}
	return "/vendors/" + url.PathEscape(vendorID) + "/" + kind
}

func (c *Client) fetchListingPage(ctx context.Context, query domain.RemoteQuery, page int, cursor string, limit int) (*domain.RemoteResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	} else {
		params.Set("page", strconv.Itoa(page))
	}
	setIfPresent(params, "vendorId", query.VendorID)
	setIfPresent(params, "brandId", query.BrandID)
	setIfPresent(params, "categoryId", query.CategoryID)
	setIfPresent(params, "q", query.Search)

	// Decoding happens inside the retried call so a garbled body gets another attempt
	var rateLimited int
	return retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) (*domain.RemoteResponse, error) {
		body, err := c.classify(ctx, attempt, &rateLimited)(c.get(ctx, "/products", params))
		if err != nil {
			return nil, err
		}
		return decodeListing(body)
	})
}

func (c *Client) getWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var rateLimited int
	return retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) ([]byte, error) {
		return c.classify(ctx, attempt, &rateLimited)(c.get(ctx, path, params))
	})
}

// classify decides which failures are worth another attempt.
// rateLimited counts the 429 answers seen across one retried call.
func (c *Client) classify(ctx context.Context, attempt int, rateLimited *int) func([]byte, error) ([]byte, error) {
	return func(body []byte, err error) ([]byte, error) {
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.StatusCode == http.StatusTooManyRequests:
				*rateLimited++
				if *rateLimited > maxRateLimitedRetries {
					log.Printf("[Upstream] rate limited again (attempt %d), giving up", attempt)
					return nil, retry.Permanent(err)
				}
				log.Printf("[Upstream] rate limited (attempt %d) retry_after=%s", attempt, statusErr.RetryAfter())
				return nil, err
			case statusErr.StatusCode >= 500:
				log.Printf("[Upstream] server error (attempt %d): %v", attempt, err)
				return nil, err
			default:
				return nil, retry.Permanent(err)
			}
		}

		log.Printf("[Upstream] request error (attempt %d): %v", attempt, err)
		return nil, err
	}
}

// get performs one GET attempt and returns the body of a 2xx answer
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	if c.debug {
		log.Printf("[Upstream] GET %s", reqURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ValStorefront/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(snippet),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	return body, nil
}

// parseRetryAfter reads delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func setIfPresent(params url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		params.Set(key, value)
	}
}
