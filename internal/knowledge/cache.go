package knowledge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"wabot/internal/domain"
)

// CachedStore memoizes knowledge searches for a short time. The knowledge
// base changes only through the admin API, which calls Purge after writes.
type CachedStore struct {
	next  domain.KnowledgeStore
	cache *expirable.LRU[string, []domain.KnowledgeEntry]
}

// NewCachedStore wraps next with an LRU of the given size and TTL.
func NewCachedStore(next domain.KnowledgeStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		next:  next,
		cache: expirable.NewLRU[string, []domain.KnowledgeEntry](size, nil, ttl),
	}
}

func (c *CachedStore) Search(ctx context.Context, query, category string, limit int) ([]domain.KnowledgeEntry, error) {
	key := fmt.Sprintf("%s\x00%d\x00%s", category, limit, strings.ToLower(strings.TrimSpace(query)))
	if hit, ok := c.cache.Get(key); ok {
		return slices.Clone(hit), nil
	}
	entries, err := c.next.Search(ctx, query, category, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(entries))
	return entries, nil
}

// Purge drops every cached result.
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached queries.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
