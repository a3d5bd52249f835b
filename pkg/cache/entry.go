package cache

import (
	"time"
)

// CacheEntry represents a cached page response.
type CacheEntry struct {
	// Data is the raw response body
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale (from the upstream Expires header or DefaultTTL)
	Expires time.Time `json:"expires"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// ContentType is the response Content-Type header
	ContentType string `json:"content_type,omitempty"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
