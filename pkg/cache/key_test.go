package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "endpoint no params",
			key: CacheKey{
				Endpoint: "/api/v1/products",
			},
			want: "catalog:api/v1/products",
		},
		{
			name: "page request params (sorted)",
			key: CacheKey{
				Endpoint: "/api/v1/products",
				QueryParams: url.Values{
					"sort":        []string{"global_popular_score"},
					"page":        []string{"3"},
					"per_page":    []string{"24"},
					"category_id": []string{"4497"},
				},
			},
			want: "catalog:api/v1/products:category_id=4497:page=3:per_page=24:sort=global_popular_score",
		},
		{
			name: "empty endpoint",
			key: CacheKey{
				QueryParams: url.Values{"page": []string{"1"}},
			},
			want: "catalog:page=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCacheKey_PagesDiffer ensures two pages of the same listing never share a key
func TestCacheKey_PagesDiffer(t *testing.T) {
	base := url.Values{"category_id": []string{"4497"}, "per_page": []string{"24"}}

	page1 := url.Values{"page": []string{"1"}}
	page2 := url.Values{"page": []string{"2"}}
	for k, v := range base {
		page1[k] = v
		page2[k] = v
	}

	k1 := CacheKey{Endpoint: "/api/v1/products", QueryParams: page1}.String()
	k2 := CacheKey{Endpoint: "/api/v1/products", QueryParams: page2}.String()
	if k1 == k2 {
		t.Errorf("keys for different pages collide: %s", k1)
	}
}
