package cache

import (
	"context"
	"strings"
	"time"
)

// DefaultWebsiteTTL is how long fetched website text stays cached.
const DefaultWebsiteTTL = 24 * time.Hour

// Store is the subset of RedisClient the website cache needs.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// WebsiteEntry is the cached extraction of one domain's homepage.
type WebsiteEntry struct {
	Domain    string    `json:"domain"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// WebsiteCache caches extracted website text per domain. Every method is
// safe on a nil receiver and on a nil store; cache errors are never fatal.
type WebsiteCache struct {
	store Store
	ttl   time.Duration
}

// NewWebsiteCache returns nil when store is nil so callers can keep a single
// code path.
func NewWebsiteCache(store Store, ttl time.Duration) *WebsiteCache {
	if store == nil {
		return nil
	}
	if rc, ok := store.(*RedisClient); ok && rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultWebsiteTTL
	}
	return &WebsiteCache{store: store, ttl: ttl}
}

// Enabled reports whether lookups can hit.
func (c *WebsiteCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get returns the cached entry for domain.
func (c *WebsiteCache) Get(ctx context.Context, domain string) (*WebsiteEntry, bool) {
	if !c.Enabled() {
		return nil, false
	}
	var entry WebsiteEntry
	if err := c.store.Get(ctx, websiteKey(domain), &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// Put stores text for domain. Empty text is not cached so that a transient
// fetch failure is retried on the next request.
func (c *WebsiteCache) Put(ctx context.Context, domain, text string, now time.Time) error {
	if !c.Enabled() || strings.TrimSpace(text) == "" {
		return nil
	}
	entry := WebsiteEntry{Domain: normalizeDomain(domain), Text: text, FetchedAt: now.UTC()}
	return c.store.Set(ctx, websiteKey(domain), entry, c.ttl)
}

func websiteKey(domain string) string {
	return "leadscore:website:" + normalizeDomain(domain)
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
