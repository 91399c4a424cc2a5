package cache

import (
	"sync"
	"time"
)

// Cache is an in-process map whose entries carry their own expiry. Expired
// entries are dropped lazily on read or in bulk by Sweep.
type Cache struct {
	mu  sync.RWMutex
	now func() time.Time
	m   map[string]entry
}

type entry struct {
	val any
	exp time.Time
}

func New() *Cache {
	return &Cache{
		now: time.Now,
		m:   make(map[string]entry),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if now.After(e.exp) {
		c.Delete(key)
		return nil, false
	}

	return e.val, true
}

// SetUntil stores val until exp.
func (c *Cache) SetUntil(key string, val any, exp time.Time) {
	c.mu.Lock()
	c.m[key] = entry{val: val, exp: exp}
	c.mu.Unlock()
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	n := 0

	c.mu.Lock()
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
			n++
		}
	}
	c.mu.Unlock()

	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
