package hub

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCacheTTL = 5 * time.Minute

// ringCache holds recent single-ring lookups. Misses are never cached.
type ringCache struct {
	lru *expirable.LRU[string, Ring]
}

func newRingCache(size int, ttl time.Duration) *ringCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ringCache{lru: expirable.NewLRU[string, Ring](size, nil, ttl)}
}

func (rc *ringCache) get(slug string) (*Ring, bool) {
	if rc == nil {
		return nil, false
	}
	ring, ok := rc.lru.Get(slug)
	if !ok {
		return nil, false
	}
	return &ring, true
}

func (rc *ringCache) put(ring *Ring) {
	if rc == nil || ring == nil || ring.Slug == "" {
		return
	}
	rc.lru.Add(ring.Slug, *ring)
}

func (rc *ringCache) invalidate(slugs ...string) {
	if rc == nil {
		return
	}
	for _, slug := range slugs {
		rc.lru.Remove(slug)
	}
}

func (rc *ringCache) size() int {
	if rc == nil {
		return 0
	}
	return rc.lru.Len()
}
