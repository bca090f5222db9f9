// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并管理预加载的 Lua 脚本。
// 作为协调存储（去重标记 + 分布式锁）的生产实现。
type Client struct {
	rdb *redis.Client

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建一个新的 Redis 客户端封装。
func NewClient(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	c := &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}
	// 原子释放锁的脚本在构造时加载，调用方不需要关心脚本内容
	if err := c.LoadScriptFromContent(compareAndDeleteScriptName, compareAndDeleteScript); err != nil {
		return nil, err
	}
	return c, nil
}

// GetClient 暴露底层的 go-redis 客户端，供需要 pipeline 等高级特性的调用方使用。
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// LoadScriptFromContent 注册一个命名的 Lua 脚本。重复注册会覆盖旧脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q has empty content", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript 执行一个已注册的 Lua 脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// SetNX 原子地 set-if-absent，带 TTL。返回是否设置成功。
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Set 无条件写入一个带 TTL 的键。
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Exists 判断键是否存在。
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompareAndDelete 只有当键的当前值等于 value 时才删除，返回是否删除。
// 用于锁释放：持有者令牌不匹配时绝不能删掉别人的锁。
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	result, err := c.RunScript(ctx, compareAndDeleteScriptName, []string{key}, value)
	if err != nil {
		return false, err
	}
	n, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return n == 1, nil
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}

const compareAndDeleteScriptName = "compare_and_delete"

var compareAndDeleteScript = `
-- KEYS[1]: 锁的 Key, 例如: lock:cancel_order_ORDER001
-- ARGV[1]: 当前持有者的令牌

if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end
`
