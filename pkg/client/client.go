// Package client fetches single catalog pages over HTTP with a fixed header
// set, per-attempt timeouts, flat-backoff retries and an optional Redis cache.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-ingest/pkg/cache"
	"github.com/Sternrassler/catalog-ingest/pkg/logging"
	"github.com/Sternrassler/catalog-ingest/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for catalog page requests.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog page requests by HTTP status",
	}, []string{"status"})

	catalogRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog page request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	catalogFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_errors_total",
		Help: "Total failed page attempts by error class",
	}, []string{"class"})
)

// Defaults for the production catalog deployment.
const (
	DefaultBaseURL    = "https://mp-catalog.umico.az/api/v1/products"
	DefaultCategoryID = 4497
	DefaultPerPage    = 24
	DefaultSort       = "global_popular_score"
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
)

// Status is the outcome of a page fetch.
type Status int

const (
	// StatusSuccess means the page was retrieved and decoded.
	StatusSuccess Status = iota
	// StatusTransientFailure marks a failed attempt that will be retried.
	StatusTransientFailure
	// StatusTerminalFailure means every attempt failed; the page has no records.
	StatusTerminalFailure
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTransientFailure:
		return "transient_failure"
	case StatusTerminalFailure:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// PageRequest identifies one page of the listing.
type PageRequest struct {
	Page       int
	PerPage    int
	Sort       string
	CategoryID int
}

// Query renders the request as URL query parameters.
func (r PageRequest) Query() url.Values {
	return url.Values{
		"page":        []string{strconv.Itoa(r.Page)},
		"category_id": []string{strconv.Itoa(r.CategoryID)},
		"per_page":    []string{strconv.Itoa(r.PerPage)},
		"sort":        []string{r.Sort},
	}
}

// PageResponse is the result of fetching one page. A terminal failure carries
// no records and the final error in Err.
type PageResponse struct {
	Page    int
	Records []record.Value
	// Total is meta.total; HasTotal is false when it was absent or not a number.
	Total     int
	HasTotal  bool
	Status    Status
	Attempts  int
	FromCache bool
	Err       error
}

// OK reports whether the page was retrieved.
func (r *PageResponse) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the listing endpoint, queried with GET.
	BaseURL    string
	CategoryID int
	PerPage    int
	Sort       string

	// UserAgent is sent on every request.
	UserAgent string

	// Headers are merged over DefaultHeaders. Optional.
	Headers http.Header

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	Retry RetryPolicy

	// Cache enables the page cache when non-nil.
	Cache *cache.Manager
}

// DefaultConfig returns the configuration of the production deployment.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		CategoryID: DefaultCategoryID,
		PerPage:    DefaultPerPage,
		Sort:       DefaultSort,
		UserAgent:  DefaultUserAgent,
		Timeout:    DefaultTimeout,
		Retry:      DefaultRetryPolicy(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base url must include a host, got %q", c.BaseURL)
	}
	if c.PerPage <= 0 {
		return fmt.Errorf("per_page must be > 0 (got %d)", c.PerPage)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	return nil
}

// DefaultHeaders returns the header set the storefront sends.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":           []string{"application/json, text/plain, */*"},
		"Accept-Language":  []string{"az"},
		"Content-Language": []string{"az"},
		"Origin":           []string{"https://birmarket.az"},
		"Referer":          []string{"https://birmarket.az/"},
	}
}

// Client fetches catalog pages.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	headers    http.Header
	config     Config
	logger     zerolog.Logger
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, _ := url.Parse(cfg.BaseURL)

	headers := DefaultHeaders()
	for k, v := range cfg.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	headers.Set("User-Agent", cfg.UserAgent)

	if cfg.Retry.Sleep == nil {
		cfg.Retry.Sleep = SleepContext
	}

	return &Client{
		// Deadlines come from the per-attempt context.
		httpClient: &http.Client{},
		endpoint:   endpoint,
		headers:    headers,
		config:     cfg,
		logger:     logging.NewLogger("catalog-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// PerPage returns the configured page size.
func (c *Client) PerPage() int {
	return c.config.PerPage
}

// Request builds the PageRequest for page.
func (c *Client) Request(page int) PageRequest {
	return PageRequest{
		Page:       page,
		PerPage:    c.config.PerPage,
		Sort:       c.config.Sort,
		CategoryID: c.config.CategoryID,
	}
}

// FetchPage retrieves one page. It never returns an error: the outcome is in
// the response Status, and a terminal failure carries the last error.
func (c *Client) FetchPage(ctx context.Context, page int) *PageResponse {
	query := c.Request(page).Query()
	cacheKey := cache.CacheKey{Endpoint: c.endpoint.Path, QueryParams: query}

	if resp := c.fromCache(ctx, page, cacheKey); resp != nil {
		return resp
	}

	var result *PageResponse
	attempts, err := c.config.Retry.Do(ctx, func(attempt int) error {
		resp, entry, err := c.attempt(ctx, page, query)
		if err != nil {
			catalogFetchErrorsTotal.WithLabelValues(string(ClassOf(err))).Inc()
			ev := c.logger.Warn().
				Int("page", page).
				Int("attempt", attempt).
				Str("outcome", StatusTransientFailure.String()).
				Str("error_class", string(ClassOf(err))).
				Err(err)
			var fe *FetchError
			if errors.As(err, &fe) && fe.StatusCode != 0 {
				ev = ev.Int("status_code", fe.StatusCode)
			}
			ev.Msg("Page attempt failed")
			return err
		}

		c.logger.Info().
			Int("page", page).
			Int("attempt", attempt).
			Str("outcome", StatusSuccess.String()).
			Int("items", len(resp.Records)).
			Msg("Page fetched")

		c.store(ctx, cacheKey, entry)
		result = resp
		return nil
	})

	if err != nil {
		c.logger.Error().
			Int("page", page).
			Int("attempts", attempts).
			Str("outcome", StatusTerminalFailure.String()).
			Err(err).
			Msg("Page failed")
		return &PageResponse{
			Page:     page,
			Status:   StatusTerminalFailure,
			Attempts: attempts,
			Err:      err,
		}
	}

	result.Attempts = attempts
	return result
}

// attempt performs a single GET for page under its own timeout.
func (c *Client) attempt(ctx context.Context, page int, query url.Values) (*PageResponse, *cache.CacheEntry, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u := *c.endpoint
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, &FetchError{Page: page, Class: ErrorClassNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		catalogRequestsTotal.WithLabelValues("error").Inc()
		return nil, nil, &FetchError{Page: page, Class: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	catalogRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil, &FetchError{
			Page:       page,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassStatus,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	// The entry doubles as the body reader so a cached page is byte-identical.
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, nil, &FetchError{Page: page, StatusCode: resp.StatusCode, Class: classifyTransportError(err), Err: err}
	}

	pr, err := decodePage(page, entry.Data)
	if err != nil {
		return nil, nil, err
	}
	return pr, entry, nil
}

// fromCache serves page from the cache. Any cache problem falls through to
// the network.
func (c *Client) fromCache(ctx context.Context, page int, key cache.CacheKey) *PageResponse {
	if c.config.Cache == nil {
		return nil
	}

	entry, err := c.config.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Int("page", page).Msg("Cache get error")
		}
		return nil
	}

	resp, err := decodePage(page, entry.Data)
	if err != nil {
		c.logger.Warn().Err(err).Int("page", page).Msg("Discarding undecodable cache entry")
		_ = c.config.Cache.Delete(ctx, key)
		return nil
	}

	c.logger.Debug().
		Int("page", page).
		Int("items", len(resp.Records)).
		Dur("ttl", entry.TTL()).
		Msg("Page served from cache")
	resp.FromCache = true
	return resp
}

func (c *Client) store(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) {
	if c.config.Cache == nil || entry == nil {
		return
	}
	if err := c.config.Cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache response")
	}
}

// pagePayload is the upstream page document.
type pagePayload struct {
	Products []record.Value `json:"products"`
	Meta     record.Value   `json:"meta"`
}

// decodePage parses a page body into a successful PageResponse.
func decodePage(page int, body []byte) (*PageResponse, error) {
	var payload pagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Page: page, StatusCode: http.StatusOK, Class: ErrorClassDecode, Err: err}
	}

	resp := &PageResponse{
		Page:    page,
		Records: payload.Products,
		Status:  StatusSuccess,
	}
	if total := payload.Meta.NumberAt(math.NaN(), "total"); !math.IsNaN(total) {
		resp.Total = int(total)
		resp.HasTotal = true
	}
	return resp, nil
}
