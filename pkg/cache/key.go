package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cached page in Redis.
const KeyPrefix = "catalog"

// CacheKey identifies one cached upstream page.
type CacheKey struct {
	// Endpoint is the upstream path (e.g., "/api/v1/products")
	Endpoint string

	// QueryParams are the page request parameters (page, category_id, per_page, sort)
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: catalog:endpoint:query1=val1:query2=val2
//
// Example:
//
//	catalog:api/v1/products:category_id=4497:page=3:per_page=24:sort=global_popular_score
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params are sorted so that map iteration order never leaks into the key
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
