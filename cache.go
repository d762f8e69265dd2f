package authclient

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// cacheKey partitions cached responses. The epoch component guarantees no
// two authentication generations ever share an entry.
type cacheKey struct {
	Method     string
	Path       string
	Epoch      int64
	ContextKey string
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s %s epoch=%d ctx=%s", k.Method, k.Path, k.Epoch, k.ContextKey)
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// responseCache is a TTL map for GET responses. Entries from stale epochs
// are unreachable through Get (the epoch is part of the key) and reclaimed
// by dropEpochsBefore on every bump.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[cacheKey]cacheEntry
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	if now == nil {
		now = time.Now
	}
	return &responseCache{
		ttl:     ttl,
		now:     now,
		entries: map[cacheKey]cacheEntry{},
	}
}

func (c *responseCache) get(key cacheKey) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *responseCache) put(key cacheKey, status int, header http.Header, body []byte) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		status:  status,
		header:  header.Clone(),
		body:    body,
		expires: c.now().Add(c.ttl),
	}
}

// dropEpochsBefore reclaims entries keyed by superseded epochs. Correctness
// does not depend on it; the epoch-in-key scheme already makes stale entries
// unreachable.
func (c *responseCache) dropEpochsBefore(epoch int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.Epoch < epoch {
			delete(c.entries, key)
		}
	}
}
