package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type cacheItem struct {
	val       []byte
	expiresAt time.Time
}

// TTLCache is an in-process ThreadCache with per-entry expiry and optional
// NATS key invalidation.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	now   func() time.Time
	sub   *nats.Subscription

	// clock ticks on every drop. gens holds the tick of each key's last drop,
	// allDropped the tick of the last full clear.
	clock      uint64
	gens       map[string]uint64
	allDropped uint64
}

// NewTTLCache creates a TTLCache and subscribes to subj when nc is non-nil.
func NewTTLCache(ttl time.Duration, nc *nats.Conn, subj string) (*TTLCache, error) {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c := &TTLCache{
		items: make(map[string]cacheItem),
		ttl:   ttl,
		now:   time.Now,
		gens:  make(map[string]uint64),
	}
	if nc != nil && subj != "" {
		sub, err := nc.Subscribe(subj, func(m *nats.Msg) { c.drop(string(m.Data)) })
		if err != nil {
			return nil, err
		}
		c.sub = sub
	}
	return c, nil
}

func (c *TTLCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	if key == "" || strings.EqualFold(key, "ALL") {
		c.items = make(map[string]cacheItem)
		c.allDropped = c.clock
		return
	}
	delete(c.items, key)
	c.gens[key] = c.clock
}

// generation must be called with mu held.
func (c *TTLCache) generation(key string) uint64 {
	return max(c.gens[key], c.allDropped)
}

func (c *TTLCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(it.val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *TTLCache) Generation(_ context.Context, key string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation(key), nil
}

// Set stores v unless key was dropped after gen was read.
func (c *TTLCache) Set(_ context.Context, key string, gen uint64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(key) != gen {
		return nil
	}
	c.items[key] = cacheItem{val: b, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *TTLCache) Delete(_ context.Context, key string) error {
	c.drop(key)
	return nil
}

// Close stops listening for remote invalidations.
func (c *TTLCache) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}
