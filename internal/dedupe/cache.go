package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store reports whether a key was already seen inside the window, marking it
// when it was not.
type Store interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	// Forget releases a mark so a later delivery of key is accepted again.
	Forget(ctx context.Context, key string) error
	Close() error
}

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is an in-process, size-bounded TTL set of seen keys. Oldest keys are
// evicted first once maxSize is reached.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New starts a cache with a background sweep of expired keys. Call Close to
// stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := newCache(ttl, maxSize, time.Now)
	go c.cleanup(time.Minute)
	return c
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

// CheckAndMark returns true when key is a duplicate. Empty keys are never
// treated as duplicates.
func (c *Cache) CheckAndMark(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok && now.Sub(entry.timestamp) < c.ttl {
		return true, nil
	}
	c.markLocked(key, now)
	return false, nil
}

func (c *Cache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) markLocked(key string, now time.Time) {
	if entry, ok := c.seen[key]; ok {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}
	c.seen[key] = &cacheEntry{timestamp: now, element: c.order.PushBack(key)}
}

func (c *Cache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
	return nil
}
