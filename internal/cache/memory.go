package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache 进程内 TTL 缓存
type MemoryCache struct {
	entries *sync.Map
}

// memoryEntry 缓存条目
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: &sync.Map{}}
}

// Get 获取缓存
func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	val, found := c.entries.Load(key)
	if !found {
		return false, nil
	}

	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(key)
		return false, nil
	}

	if err := json.Unmarshal(entry.value, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set 设置缓存
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries.Store(key, &memoryEntry{value: raw, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete 删除缓存
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Delete(key)
	}
	return nil
}
