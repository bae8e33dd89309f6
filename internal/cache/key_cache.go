package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// KeyCache holds AES key bytes by key URI for the lifetime of one playlist
// fetch. Segment workers load keys on first use; concurrent misses on the
// same URI share a single download.
type KeyCache struct {
	mu    sync.RWMutex
	keys  map[string][]byte
	group singleflight.Group
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string][]byte)}
}

func (c *KeyCache) Get(uri string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[uri]
	return key, ok
}

func (c *KeyCache) Put(uri string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[uri] = key
}

// Load returns the cached key for uri, calling fetch on a miss. Failed
// fetches are not cached.
func (c *KeyCache) Load(ctx context.Context, uri string, fetch func(context.Context, string) ([]byte, error)) ([]byte, error) {
	if key, ok := c.Get(uri); ok {
		return key, nil
	}

	v, err, _ := c.group.Do(uri, func() (interface{}, error) {
		if key, ok := c.Get(uri); ok {
			return key, nil
		}
		key, err := fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		c.Put(uri, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
