package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-ingest/internal/testutil"
	"github.com/Sternrassler/catalog-ingest/pkg/cache"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
)

// noSleep skips retry backoff in tests.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// testConfig returns a config pointing at url with instant retries.
func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = 2 * time.Second
	cfg.Retry.Sleep = noSleep
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "https://mp-catalog.umico.az/api/v1/products" {
		t.Errorf("BaseURL = %s", cfg.BaseURL)
	}
	if cfg.CategoryID != 4497 || cfg.PerPage != 24 || cfg.Sort != "global_popular_score" {
		t.Errorf("unexpected listing defaults: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:     "missing host",
			mutate:   func(c *Config) { c.BaseURL = "https:///api/v1/products" },
			errorMsg: "host",
		},
		{
			name:     "unsupported scheme",
			mutate:   func(c *Config) { c.BaseURL = "ftp://example.com/products" },
			errorMsg: "http or https",
		},
		{
			name:     "zero per page",
			mutate:   func(c *Config) { c.PerPage = 0 },
			errorMsg: "per_page",
		},
		{
			name:     "zero attempts",
			mutate:   func(c *Config) { c.Retry.MaxAttempts = 0 },
			errorMsg: "max attempts",
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Timeout = 0 },
			errorMsg: "timeout",
		},
		{
			name:     "empty user agent",
			mutate:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestPageRequest_Query(t *testing.T) {
	q := PageRequest{Page: 3, PerPage: 24, Sort: "global_popular_score", CategoryID: 4497}.Query()

	want := map[string]string{
		"page":        "3",
		"per_page":    "24",
		"sort":        "global_popular_score",
		"category_id": "4497",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if len(q) != len(want) {
		t.Errorf("len(query) = %d, want %d", len(q), len(want))
	}
}

func TestClient_FetchPage_Success(t *testing.T) {
	mock := testutil.NewMockCatalog(30)
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL()))

	tests := []struct {
		page      int
		wantItems int
	}{
		{page: 1, wantItems: 24},
		{page: 2, wantItems: 6},
		{page: 3, wantItems: 0},
	}

	for _, tt := range tests {
		resp := c.FetchPage(context.Background(), tt.page)
		if resp.Status != StatusSuccess {
			t.Fatalf("page %d: Status = %s, err = %v", tt.page, resp.Status, resp.Err)
		}
		if len(resp.Records) != tt.wantItems {
			t.Errorf("page %d: items = %d, want %d", tt.page, len(resp.Records), tt.wantItems)
		}
		if !resp.HasTotal || resp.Total != 30 {
			t.Errorf("page %d: total = %d (has=%v), want 30", tt.page, resp.Total, resp.HasTotal)
		}
		if resp.Attempts != 1 {
			t.Errorf("page %d: attempts = %d, want 1", tt.page, resp.Attempts)
		}
	}
}

func TestClient_FetchPage_SendsHeadersAndQuery(t *testing.T) {
	mock := testutil.NewMockCatalog(1)
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.Headers = http.Header{"accept-language": []string{"en"}}
	c := newTestClient(t, cfg)

	if resp := c.FetchPage(context.Background(), 1); !resp.OK() {
		t.Fatalf("FetchPage failed: %v", resp.Err)
	}

	headers := mock.LastRequestHeader()
	wantHeaders := map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  "en",
		"Content-Language": "az",
		"Origin":           "https://birmarket.az",
		"Referer":          "https://birmarket.az/",
		"User-Agent":       DefaultUserAgent,
	}
	for k, v := range wantHeaders {
		if got := headers.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}

	query := mock.LastQuery()
	if query["page"] != "1" || query["category_id"] != "4497" || query["per_page"] != "24" || query["sort"] != "global_popular_score" {
		t.Errorf("unexpected query: %v", query)
	}
}

func TestClient_FetchPage_RetriesThenSucceeds(t *testing.T) {
	mock := testutil.NewMockCatalog(5)
	defer mock.Close()
	mock.SetPageResponse(1, testutil.MockResponse{StatusCode: http.StatusInternalServerError, FailTimes: 2})

	c := newTestClient(t, testConfig(mock.URL()))

	resp := c.FetchPage(context.Background(), 1)
	if !resp.OK() {
		t.Fatalf("Expected success after retries, got %s: %v", resp.Status, resp.Err)
	}
	if resp.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", resp.Attempts)
	}
	if mock.PageRequests(1) != 3 {
		t.Errorf("server saw %d requests, want 3", mock.PageRequests(1))
	}
}

func TestClient_FetchPage_TerminalFailure(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantClass ErrorClass
	}{
		{
			name:      "server error",
			response:  testutil.MockResponse{StatusCode: http.StatusServiceUnavailable},
			wantClass: ErrorClassStatus,
		},
		{
			name:      "client error is retried too",
			response:  testutil.MockResponse{StatusCode: http.StatusNotFound},
			wantClass: ErrorClassStatus,
		},
		{
			name:      "undecodable body",
			response:  testutil.MockResponse{StatusCode: http.StatusOK, Body: `<html>maintenance</html>`},
			wantClass: ErrorClassDecode,
		},
		{
			name:      "products not a list",
			response:  testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"products": {"id": 1}}`},
			wantClass: ErrorClassDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog(5)
			defer mock.Close()
			mock.SetPageResponse(4, tt.response)

			c := newTestClient(t, testConfig(mock.URL()))

			resp := c.FetchPage(context.Background(), 4)
			if resp.Status != StatusTerminalFailure {
				t.Fatalf("Status = %s, want terminal_failure", resp.Status)
			}
			if len(resp.Records) != 0 {
				t.Errorf("terminal response carries %d records", len(resp.Records))
			}
			if resp.Attempts != 3 || mock.PageRequests(4) != 3 {
				t.Errorf("attempts = %d, server requests = %d, want 3", resp.Attempts, mock.PageRequests(4))
			}
			if !errors.Is(resp.Err, ErrRetryExhausted) {
				t.Errorf("Err should wrap ErrRetryExhausted: %v", resp.Err)
			}
			if got := ClassOf(resp.Err); got != tt.wantClass {
				t.Errorf("class = %s, want %s", got, tt.wantClass)
			}
		})
	}
}

func TestClient_FetchPage_Timeout(t *testing.T) {
	mock := testutil.NewMockCatalog(5)
	defer mock.Close()
	mock.SetDelay(500 * time.Millisecond)

	cfg := testConfig(mock.URL())
	cfg.Timeout = 50 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	c := newTestClient(t, cfg)

	resp := c.FetchPage(context.Background(), 1)
	if resp.Status != StatusTerminalFailure {
		t.Fatalf("Status = %s, want terminal_failure", resp.Status)
	}
	if got := ClassOf(resp.Err); got != ErrorClassTimeout {
		t.Errorf("class = %s, want timeout (err: %v)", got, resp.Err)
	}
	if resp.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", resp.Attempts)
	}
}

func TestClient_FetchPage_ContextCancelledStopsRetries(t *testing.T) {
	mock := testutil.NewMockCatalog(5)
	defer mock.Close()
	mock.SetPageResponse(1, testutil.MockResponse{StatusCode: http.StatusBadGateway})

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(mock.URL())
	cfg.Retry.MaxAttempts = 5
	cfg.Retry.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	c := newTestClient(t, cfg)

	resp := c.FetchPage(ctx, 1)
	if resp.Status != StatusTerminalFailure {
		t.Fatalf("Status = %s, want terminal_failure", resp.Status)
	}
	if !errors.Is(resp.Err, ErrContextCancelled) {
		t.Errorf("Err = %v, want ErrContextCancelled", resp.Err)
	}
	if mock.PageRequests(1) != 1 {
		t.Errorf("server saw %d requests, want 1", mock.PageRequests(1))
	}
}

func TestClient_FetchPage_MissingTotal(t *testing.T) {
	tests := []struct {
		name      string
		metaTotal string
	}{
		{name: "absent", metaTotal: ""},
		{name: "null", metaTotal: "null"},
		{name: "not a number", metaTotal: `"many"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog(5)
			defer mock.Close()
			mock.SetMetaTotal(tt.metaTotal)

			c := newTestClient(t, testConfig(mock.URL()))

			resp := c.FetchPage(context.Background(), 1)
			if !resp.OK() {
				t.Fatalf("FetchPage failed: %v", resp.Err)
			}
			if resp.HasTotal {
				t.Errorf("HasTotal = true, total = %d", resp.Total)
			}
		})
	}
}

func TestClient_FetchPage_TransportError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, DefaultBaseURL,
		httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	cfg := DefaultConfig()
	cfg.Retry.Sleep = noSleep
	c := newTestClient(t, cfg)
	c.SetHTTPClient(&http.Client{Transport: transport})

	resp := c.FetchPage(context.Background(), 2)
	if resp.Status != StatusTerminalFailure {
		t.Fatalf("Status = %s, want terminal_failure", resp.Status)
	}
	if got := ClassOf(resp.Err); got != ErrorClassNetwork {
		t.Errorf("class = %s, want network", got)
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Errorf("transport calls = %d, want 3", got)
	}
}

func TestClient_FetchPage_HTTPMockSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, DefaultBaseURL,
		httpmock.NewStringResponder(http.StatusOK, `{"products": [{"id": 1}, {"id": 2}], "meta": {"total": "2"}}`))

	cfg := DefaultConfig()
	cfg.Retry.Sleep = noSleep
	c := newTestClient(t, cfg)
	c.SetHTTPClient(&http.Client{Transport: transport})

	resp := c.FetchPage(context.Background(), 1)
	if !resp.OK() {
		t.Fatalf("FetchPage failed: %v", resp.Err)
	}
	if len(resp.Records) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Records))
	}
	if !resp.HasTotal || resp.Total != 2 {
		t.Errorf("numeric-string total not accepted: %d (has=%v)", resp.Total, resp.HasTotal)
	}
}

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestClient_FetchPage_CacheHitSkipsNetwork(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCatalog(10)
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.Cache = cache.NewManager(redisClient)
	c := newTestClient(t, cfg)

	first := c.FetchPage(context.Background(), 1)
	if !first.OK() || first.FromCache {
		t.Fatalf("first fetch: status = %s, fromCache = %v", first.Status, first.FromCache)
	}

	second := c.FetchPage(context.Background(), 1)
	if !second.OK() || !second.FromCache {
		t.Fatalf("second fetch: status = %s, fromCache = %v", second.Status, second.FromCache)
	}
	if len(second.Records) != len(first.Records) || second.Total != first.Total {
		t.Errorf("cached page differs: %d/%d items", len(second.Records), len(first.Records))
	}
	if mock.RequestCount() != 1 {
		t.Errorf("server saw %d requests, want 1", mock.RequestCount())
	}
}
