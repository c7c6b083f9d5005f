package doccache

import (
	"context"
	"sync"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

const defaultMaxEntries = 1024

// Cache wraps a DocumentRepository with a TTL read-through cache. Document
// rows are immutable after upload, so a short TTL only bounds staleness of
// rows that appear mid-run. Not-found results are cached too: the flush job
// probes the same missing documents on every pass.
type Cache struct {
	inner ports.DocumentRepository
	ttl   time.Duration
	max   int

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	doc     *domain.Document
	err     error
	expires time.Time
	fetched time.Time
}

func New(inner ports.DocumentRepository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		max:     defaultMaxEntries,
		entries: make(map[string]entry),
	}
}

func (c *Cache) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[id]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.doc, e.err
	}
	c.mu.Unlock()

	doc, err := c.inner.GetByID(ctx, id)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		// Transient lookup failures are not cached.
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[id] = entry{
		doc:     doc,
		err:     err,
		expires: now.Add(c.ttl),
		fetched: now,
	}
	c.mu.Unlock()

	return doc, err
}

// evictOldest drops the stalest entry. Called with the lock held.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.fetched.Before(oldest) {
			oldestKey = k
			oldest = e.fetched
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
