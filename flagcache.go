package main

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultFlagTTL = 5 * time.Minute

// FlagCache: host -> флаг с TTL. Пустой флаг тоже запоминается (негативный кэш).
type FlagCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]flagEntry
	now     func() time.Time
}

func NewFlagCache(ttl time.Duration) *FlagCache {
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	return &FlagCache{ttl: ttl, entries: make(map[string]flagEntry), now: time.Now}
}

// Get returns a live entry. Expired entries read as a miss and stay until Sweep.
func (c *FlagCache) Get(host string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[host]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.stored) >= c.ttl {
		return "", false
	}
	return e.flag, true
}

func (c *FlagCache) Set(host, flag string) {
	c.mu.Lock()
	c.entries[host] = flagEntry{flag: flag, stored: c.now()}
	c.mu.Unlock()
}

// Sweep drops every expired entry and reports how many went.
func (c *FlagCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for host, e := range c.entries {
		if now.Sub(e.stored) >= c.ttl {
			delete(c.entries, host)
			n++
		}
	}
	return n
}

func (c *FlagCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *FlagCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Run sweeps every TTL until ctx is done, then clears the cache.
func (c *FlagCache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Clear()
			return nil
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logrus.Debugf("[flags] swept %d expired entries", n)
			}
		}
	}
}
