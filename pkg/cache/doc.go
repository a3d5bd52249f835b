// Package cache provides an optional Redis-backed cache for upstream catalog
// page responses.
//
// A repeated run inside the cache window reads pages from Redis instead of
// hitting the upstream API again. Only HTTP 200 bodies are stored, and cache
// failures never fail a page fetch: the client logs them and goes to the network.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/api/v1/products",
//		QueryParams: url.Values{"page": []string{"2"}, "per_page": []string{"24"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Expiry
//
// Entries live until the upstream Expires header, or DefaultTTL when the
// header is missing or unparsable. Expired entries are deleted on read.
//
// # Metrics
//
//   - catalog_cache_hits_total - Cache hits
//   - catalog_cache_misses_total - Cache misses
//   - catalog_cache_stored_bytes_total - Bytes written
//   - catalog_cache_errors_total{operation} - Cache operation errors
package cache
