package client

import (
	"time"

	"storefront/catalog/internal/config"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type endpoint int

const (
	endpointCategories endpoint = iota
	endpointListing
	endpointProduct
	endpointSearch
)

func (e endpoint) String() string {
	switch e {
	case endpointCategories:
		return "categories"
	case endpointListing:
		return "listing"
	case endpointProduct:
		return "product"
	case endpointSearch:
		return "search"
	default:
		return "unknown"
	}
}

// responseCache keeps raw upstream bodies keyed by request URL, one LRU per
// endpoint so every endpoint gets its own TTL. A nil cache never hits.
type responseCache struct {
	lrus map[endpoint]*expirable.LRU[string, []byte]
}

func newResponseCache(cfg config.CacheConfig) *responseCache {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.Size
	if size <= 0 {
		size = 1024
	}
	ttls := map[endpoint]int{
		endpointCategories: cfg.CategoryTTL,
		endpointListing:    cfg.ListingTTL,
		endpointProduct:    cfg.ProductTTL,
		endpointSearch:     cfg.SearchTTL,
	}

	c := &responseCache{lrus: make(map[endpoint]*expirable.LRU[string, []byte], len(ttls))}
	for ep, seconds := range ttls {
		if seconds <= 0 {
			continue
		}
		c.lrus[ep] = expirable.NewLRU[string, []byte](size, nil, time.Duration(seconds)*time.Second)
	}
	return c
}

func (c *responseCache) get(ep endpoint, url string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	lru, ok := c.lrus[ep]
	if !ok {
		return nil, false
	}
	return lru.Get(url)
}

func (c *responseCache) put(ep endpoint, url string, body []byte) {
	if c == nil {
		return
	}
	if lru, ok := c.lrus[ep]; ok {
		lru.Add(url, body)
	}
}
