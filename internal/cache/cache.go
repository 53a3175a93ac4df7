// Package cache 提供读穿缓存的统一接口,支持进程内与 Redis 两种实现
package cache

import (
	"context"
	"time"
)

// Cache 缓存接口
// 值以 JSON 序列化保存,Get 未命中时返回 false
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
