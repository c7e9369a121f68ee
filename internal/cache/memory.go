package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache keeps answers in process memory. Used when CACHE_PROVIDER=memory
// and by tests that need a cache which actually stores.
type MemoryCache struct {
	mu      sync.Mutex
	answers map[string]memoryEntry
	gens    map[string]int64
	now     func() time.Time
}

type memoryEntry struct {
	answer  Answer
	expires time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		answers: make(map[string]memoryEntry),
		gens:    make(map[string]int64),
		now:     time.Now,
	}
}

// GetAnswer returns a copy of the stored answer, or nil when missing or expired
func (c *MemoryCache) GetAnswer(ctx context.Context, key string) (*Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.answers[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.answers, key)
		return nil, nil
	}
	a := e.answer
	a.Sources = append([]byte(nil), e.answer.Sources...)
	return &a, nil
}

// SetAnswer stores a copy of answer; a non-positive ttl never expires
func (c *MemoryCache) SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := memoryEntry{answer: *answer}
	e.answer.Sources = append([]byte(nil), answer.Sources...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.answers[key] = e
	return nil
}

func (c *MemoryCache) Generation(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *MemoryCache) InvalidateUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	prefix := userKeyPrefix(userID)
	for key := range c.answers {
		if strings.HasPrefix(key, prefix) {
			delete(c.answers, key)
		}
	}
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
