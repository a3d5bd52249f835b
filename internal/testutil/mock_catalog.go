// Package testutil provides a fake catalog upstream for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ProductsPath is the listing path served by MockCatalog.
const ProductsPath = "/api/v1/products"

// MockResponse overrides the reply for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// FailTimes limits the override to the first N requests for the page;
	// later requests get the generated page. Zero means always.
	FailTimes int
}

// MockCatalog is a configurable fake catalog API. It serves Total generated
// products split into pages by the per_page query parameter.
type MockCatalog struct {
	server *httptest.Server
	mu     sync.Mutex

	total     int
	metaTotal string
	delay     time.Duration
	overrides map[int]MockResponse

	// Tracking
	requestCount      int
	pageCounts        map[int]int
	inFlight          int
	maxInFlight       int
	lastRequestHeader http.Header
	lastQuery         map[string]string
}

// NewMockCatalog starts a fake upstream listing total products.
func NewMockCatalog(total int) *MockCatalog {
	m := &MockCatalog{
		total:      total,
		overrides:  make(map[int]MockResponse),
		pageCounts: make(map[int]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the listing endpoint URL.
func (m *MockCatalog) URL() string {
	return m.server.URL + ProductsPath
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetDelay makes every generated page wait d before replying.
func (m *MockCatalog) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetMetaTotal replaces the meta.total JSON literal (e.g. `null`, `"abc"`).
// An empty string omits the field.
func (m *MockCatalog) SetMetaTotal(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaTotal = raw
	if raw == "" {
		m.metaTotal = "-"
	}
}

// SetPageResponse overrides the reply for page.
func (m *MockCatalog) SetPageResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// RequestCount returns the number of requests served.
func (m *MockCatalog) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns how often page was requested.
func (m *MockCatalog) PageRequests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCounts[page]
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (m *MockCatalog) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockCatalog) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockCatalog) LastQuery() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ProductsPath {
		http.NotFound(w, r)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	m.mu.Lock()
	m.requestCount++
	m.pageCounts[page]++
	seen := m.pageCounts[page]
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.lastRequestHeader = r.Header.Clone()
	m.lastQuery = make(map[string]string)
	for k := range r.URL.Query() {
		m.lastQuery[k] = r.URL.Query().Get(k)
	}
	override, hasOverride := m.overrides[page]
	delay := m.delay
	metaTotal := m.metaTotal
	total := m.total
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if hasOverride && (override.FailTimes == 0 || seen <= override.FailTimes) {
		if override.Delay > 0 {
			sleepOrDone(r, override.Delay)
		}
		for key, value := range override.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	if delay > 0 {
		sleepOrDone(r, delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(PageBody(page, perPage, total, metaTotal))
}

func sleepOrDone(r *http.Request, d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
}

// PageBody renders page of a listing with total products. metaTotal
// replaces the meta.total literal when non-empty ("-" omits it).
func PageBody(page, perPage, total int, metaTotal string) []byte {
	var products []json.RawMessage
	if perPage > 0 && page >= 1 {
		start := (page-1)*perPage + 1
		for id := start; id < start+perPage && id <= total; id++ {
			products = append(products, Product(id))
		}
	}
	if products == nil {
		products = []json.RawMessage{}
	}
	items, _ := json.Marshal(products)

	meta := fmt.Sprintf(`{"total": %d}`, total)
	switch metaTotal {
	case "":
	case "-":
		meta = `{}`
	default:
		meta = fmt.Sprintf(`{"total": %s}`, metaTotal)
	}
	return []byte(fmt.Sprintf(`{"products": %s, "meta": %s}`, items, meta))
}

// Product renders a realistic product document with the given id. Even ids
// carry a discount.
func Product(id int) json.RawMessage {
	oldPrice := 20.0
	if id%2 == 1 {
		oldPrice = 15.0
	}
	return json.RawMessage(fmt.Sprintf(`{
		"id": %d,
		"name": "Product %d",
		"slugged_name": "product-%d",
		"status": "active",
		"avail_check": true,
		"min_qty": 1,
		"brand": "Brand %d",
		"category_id": 4497,
		"category": {"id": 4500, "name": "Tea"},
		"main_img": {"big": "big-%d.jpg", "medium": "medium-%d.jpg", "small": "small-%d.jpg"},
		"ratings": {"rating_value": 4.5, "session_count": 10, "assessment_id": 1},
		"product_labels": [{"name": "Hit"}],
		"default_offer": {
			"uuid": "offer-%d",
			"installment_enabled": false,
			"max_installment_months": 0,
			"old_price": %g,
			"retail_price": 15,
			"avail_check": true,
			"show_stock_qty_threshold": 5,
			"discount_effective_start_date": null,
			"qty": 3,
			"product_offer_labels": [],
			"seller": {
				"ext_id": "S-1",
				"vat_payer": true,
				"rating": 99,
				"role_name": "merchant",
				"marketing_name": {"id": 1, "name": "Shop"},
				"logo": {"thumbnail": "logo.png"}
			}
		}
	}`, id, id, id, id, id, id, id, id, oldPrice))
}
