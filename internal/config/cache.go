package config

import (
	"sync"
	"time"
)

// Cache holds a config that long-running commands re-read from disk, so a
// token written by `lantern login` in another shell is picked up.
type Cache struct {
	ttl  time.Duration
	load func() (*Config, error)

	mu     sync.Mutex
	cfg    *Config
	expiry time.Time
}

// NewCache starts with cfg and reloads it at most once per ttl.
func NewCache(cfg *Config, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 500 * time.Millisecond
	}
	return &Cache{ttl: ttl, load: Load, cfg: cfg, expiry: time.Now().Add(ttl)}
}

// Get returns the cached config, reloading it once the ttl has passed. A
// failed reload keeps the previous config until the next expiry.
func (c *Cache) Get() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.expiry) {
		return c.cfg
	}
	_ = c.reloadLocked()
	return c.cfg
}

// Reload reads the file now regardless of the ttl.
func (c *Cache) Reload() (*Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reloadLocked(); err != nil {
		return c.cfg, err
	}
	return c.cfg, nil
}

func (c *Cache) reloadLocked() error {
	c.expiry = time.Now().Add(c.ttl)
	cfg, err := c.load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}
