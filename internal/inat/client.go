// Package inat fetches geotagged wildlife observations from an
// iNaturalist-compatible API, with rate limiting and layered caching.
package inat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
)

// Package-level logger specific to observation fetching
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/inat.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "inat", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("inat")
		closeLogger = func() error { return nil }
	}
}

// hardResultWindow is the deepest offset the search API will paginate to;
// requests past it fail regardless of total_results.
const hardResultWindow = 10000

const userAgent = "wildset/1.0 (+https://github.com/averho/wildset)"

// Config bundles client settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.inaturalist.org/v1".
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// RequestsPerMinute throttles outbound calls.
	RequestsPerMinute int
	// CacheTTL controls how long in-memory page responses stay fresh.
	CacheTTL time.Duration
	// PageMaxAge controls how old a persisted page may be before it is
	// refetched. Zero accepts any age.
	PageMaxAge time.Duration
}

// DefaultConfig returns settings suitable for the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.inaturalist.org/v1",
		Timeout:           30 * time.Second,
		RequestsPerMinute: 60,
		CacheTTL:          10 * time.Minute,
	}
}

// PageStore persists raw result pages between runs so repeat queries replay
// from disk instead of the network.
type PageStore interface {
	Get(key string, pageNum int, maxAge time.Duration) ([]byte, bool, error)
	Put(key string, pageNum int, body []byte) error
}

// Client talks to the observation API.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	pages      PageStore

	debug bool

	// Metrics for monitoring client usage
	metrics struct {
		mu            sync.Mutex
		apiCalls      int64
		cacheHits     int64
		cacheMisses   int64
		storeHits     int64
		apiErrors     int64
		totalDuration time.Duration
	}
}

// NewClient creates an observation API client. pages may be nil to disable
// the persistent page cache.
func NewClient(config Config, pages PageStore) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.Newf("base URL is required").
			Component("inat").
			Category(errors.CategoryValidation).
			Context("parameter", "base_url").
			Build()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:   cache.New(config.CacheTTL, 2*config.CacheTTL),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		pages:   pages,
	}

	logger.Info("observation API client initialized",
		"base_url", config.BaseURL,
		"timeout", config.Timeout,
		"requests_per_minute", config.RequestsPerMinute,
		"cache_ttl", config.CacheTTL,
		"persistent_cache", pages != nil)

	return client, nil
}

// SetDebug enables verbose request logging.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
	if debug {
		serviceLevelVar.Set(slog.LevelDebug)
	} else {
		serviceLevelVar.Set(slog.LevelInfo)
	}
}

// FetchObservations pages through search results until the source reports no
// more, params.MaxResults is reached, or the API's pagination window is
// exhausted.
func (c *Client) FetchObservations(ctx context.Context, params SearchParams) ([]obs.Observation, error) {
	perPage := params.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 200
	}
	key := params.fingerprint(perPage)

	var all []obs.Observation
	for pageNum := 1; ; pageNum++ {
		pg, err := c.fetchPage(ctx, params, key, pageNum, perPage)
		if err != nil {
			return nil, err
		}

		all = append(all, pg.Results...)

		if params.MaxResults > 0 && len(all) >= params.MaxResults {
			all = all[:params.MaxResults]
			break
		}
		if len(pg.Results) == 0 || len(all) >= pg.TotalResults {
			break
		}
		if pageNum*perPage >= hardResultWindow {
			logger.Warn("pagination window exhausted, results truncated",
				"fetched", len(all),
				"total_results", pg.TotalResults,
				"window", hardResultWindow)
			break
		}
	}

	logger.Info("observations fetched",
		"count", len(all),
		"query", key)
	return all, nil
}

// fetchPage returns one result page, consulting the in-memory cache, then the
// persistent store, then the network.
func (c *Client) fetchPage(ctx context.Context, params SearchParams, key string, pageNum, perPage int) (*page, error) {
	cacheKey := fmt.Sprintf("%s&page=%d", key, pageNum)
	if cached, found := c.cache.Get(cacheKey); found {
		if pg, ok := cached.(*page); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()
			if c.debug {
				logger.Debug("cache hit", "page", pageNum, "query", key)
			}
			return pg, nil
		}
	}
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()

	if c.pages != nil {
		body, found, err := c.pages.Get(key, pageNum, c.config.PageMaxAge)
		if err != nil {
			logger.Warn("persistent page cache read failed, fetching from network",
				"page", pageNum, "error", err)
		} else if found {
			var pg page
			if err := json.Unmarshal(body, &pg); err == nil {
				c.metrics.mu.Lock()
				c.metrics.storeHits++
				c.metrics.mu.Unlock()
				c.cache.Set(cacheKey, &pg, cache.DefaultExpiration)
				if c.debug {
					logger.Debug("persistent cache hit", "page", pageNum, "query", key)
				}
				return &pg, nil
			}
			logger.Warn("persistent page cache entry corrupt, refetching",
				"page", pageNum, "error", err)
		}
	}

	endpoint := c.config.BaseURL + "/observations?" + params.query(pageNum, perPage).Encode()
	body, err := c.doRequestWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var pg page
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryParsing).
			Context("operation", "parse_observation_page").
			Context("page", pageNum).
			Build()
	}

	if c.pages != nil {
		if err := c.pages.Put(key, pageNum, body); err != nil {
			logger.Warn("persistent page cache write failed",
				"page", pageNum, "error", err)
		}
	}
	c.cache.Set(cacheKey, &pg, cache.DefaultExpiration)
	return &pg, nil
}

// doRequestWithRetry performs a GET with retries and exponential backoff for
// transient failures.
func (c *Client) doRequestWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		body, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Configuration and validation failures will not heal on retry,
		// and neither will client errors other than throttling.
		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			category := enhancedErr.GetCategory()
			if category == string(errors.CategoryConfiguration) ||
				category == string(errors.CategoryNotFound) ||
				category == string(errors.CategoryValidation) {
				return nil, err
			}
			if statusCode, ok := enhancedErr.GetContext()["status_code"]; ok {
				if code, isInt := statusCode.(int); isInt && code >= 400 && code < 500 && code != 429 {
					return nil, err
				}
			}
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond
			logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, lastErr
}

// doRequest performs a single rate-limited GET against the API.
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryRateLimit).
			Context("operation", "rate_limit_wait").
			Build()
	}

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryValidation).
			Context("operation", "create_request").
			Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.debug {
		logger.Debug("API request", "url", endpoint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryNetwork).
			NetworkContext(endpoint, time.Since(start)).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryNetwork).
			Context("operation", "read_response").
			Build()
	}

	if resp.StatusCode >= 400 {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()

		detail := ""
		var apiErr Error
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			detail = apiErr.Detail
		}
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, detail).
			Component("inat").
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			NetworkContext(endpoint, time.Since(start)).
			Build()
	}

	duration := time.Since(start)
	c.metrics.mu.Lock()
	c.metrics.totalDuration += duration
	c.metrics.mu.Unlock()

	if c.debug {
		logger.Debug("API response", "status", resp.StatusCode, "bytes", len(body), "duration", duration)
	}
	return body, nil
}

// getErrorCategory maps HTTP status codes to error categories.
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errors.CategoryConfiguration
	case statusCode == http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	case statusCode == http.StatusNotFound:
		return errors.CategoryNotFound
	case statusCode >= 500:
		return errors.CategoryNetwork
	default:
		return errors.CategoryHTTP
	}
}

// Metrics is a snapshot of client counters.
type Metrics struct {
	APICalls        int64
	CacheHits       int64
	CacheMisses     int64
	StoreHits       int64
	APIErrors       int64
	AverageDuration time.Duration
}

// GetMetrics returns current client metrics.
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()

	m := Metrics{
		APICalls:    c.metrics.apiCalls,
		CacheHits:   c.metrics.cacheHits,
		CacheMisses: c.metrics.cacheMisses,
		StoreHits:   c.metrics.storeHits,
		APIErrors:   c.metrics.apiErrors,
	}
	if c.metrics.apiCalls > 0 {
		m.AverageDuration = c.metrics.totalDuration / time.Duration(c.metrics.apiCalls)
	}
	return m
}

// ClearCache drops all in-memory cached pages.
func (c *Client) ClearCache() {
	c.cache.Flush()
	logger.Debug("response cache cleared")
}

// Close releases client resources.
func (c *Client) Close() error {
	logger.Info("observation API client closed")
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
