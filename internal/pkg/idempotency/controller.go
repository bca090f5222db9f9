// internal/pkg/idempotency/controller.go
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atlas/internal/pkg/logger"

	"github.com/google/uuid"
)

// 协调存储的键约定。部署兼容性要求这些前缀保持不变。
const (
	requestKeyPrefix = "order:request:"
	lockKeyPrefix    = "lock:"
)

const (
	// DefaultRequestTTL 是去重标记的存活时间，过期后同一 requestId 允许重新执行。
	DefaultRequestTTL = 24 * time.Hour
	// DefaultLockTTL 是锁的兜底过期时间。它只防死锁，不保证互斥的正确性：
	// 真正的正确性由订单行的版本号条件更新兜底。
	DefaultLockTTL = 5 * time.Minute
)

var (
	// ErrAlreadyProcessed 表示该 requestId 已经成功执行过。
	// 调用方应当视作成功等价，而不是一个需要重试的失败。
	ErrAlreadyProcessed = errors.New("request already processed")
	// ErrBusy 表示锁竞争失败。调用方自行退避重试，这里绝不阻塞等待。
	ErrBusy = errors.New("resource busy, lock not acquired")
)

// Store 是协调存储（Redis 或等价物）的最小契约。
// 只消费原子的 set-if-absent / 存在性检查 / 比较删除，不在这里重新实现存储。
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Controller 基于协调存储提供请求去重和业务键互斥。
// 存储客户端通过构造函数显式注入，不依赖任何全局状态。
type Controller struct {
	store      Store
	requestTTL time.Duration
	lockTTL    time.Duration
}

// NewController 创建一个使用默认 TTL 的控制器。
func NewController(store Store) *Controller {
	return &Controller{
		store:      store,
		requestTTL: DefaultRequestTTL,
		lockTTL:    DefaultLockTTL,
	}
}

// NewControllerWithTTL 允许覆盖默认 TTL，主要供测试和特殊任务使用。
func NewControllerWithTTL(store Store, requestTTL, lockTTL time.Duration) *Controller {
	return &Controller{store: store, requestTTL: requestTTL, lockTTL: lockTTL}
}

// IsRequestProcessed 检查去重标记是否存在。
func (c *Controller) IsRequestProcessed(ctx context.Context, requestID string) (bool, error) {
	return c.store.Exists(ctx, requestKeyPrefix+requestID)
}

// MarkRequestProcessed 写入去重标记。重复写入是无害的。
func (c *Controller) MarkRequestProcessed(ctx context.Context, requestID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.requestTTL
	}
	value := time.Now().UTC().Format(time.RFC3339)
	return c.store.Set(ctx, requestKeyPrefix+requestID, value, ttl)
}

// TryLock 原子地 set-if-absent 获取锁，返回持有者令牌。
// 竞争失败立即返回 ok=false，由调用方决定是否退避重试。
func (c *Controller) TryLock(ctx context.Context, lockKey string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = c.store.SetNX(ctx, lockKeyPrefix+lockKey, token, c.lockTTL)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock 释放锁，只删除仍由自己持有的键。失败只记日志：
// TTL 是兜底，释放失败最坏情况是锁多占一会儿。
func (c *Controller) ReleaseLock(ctx context.Context, lockKey, token string) {
	released, err := c.store.CompareAndDelete(ctx, lockKeyPrefix+lockKey, token)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("lockKey", lockKey).Msg("failed to release lock, ttl will reclaim it")
		return
	}
	if !released {
		// 锁已过期并被别人持有，删了会破坏对方的临界区，所以什么都不做
		logger.Ctx(ctx).Warn().Str("lockKey", lockKey).Msg("lock no longer held by this token, skip release")
	}
}

// ExecuteIdempotent 按 requestId 去重地执行 operation。
// 注意：它只防"已完成后的重放"，不防并发重复提交——两个并发请求都可能
// 通过存在性检查。并发场景必须用 ExecuteWithLock。
func (c *Controller) ExecuteIdempotent(ctx context.Context, requestID string, operation func(ctx context.Context) error) error {
	processed, err := c.IsRequestProcessed(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to check request marker: %w", err)
	}
	if processed {
		return ErrAlreadyProcessed
	}

	if err := operation(ctx); err != nil {
		// 失败不打标记，合法的重试还能进来
		return err
	}

	if err := c.MarkRequestProcessed(ctx, requestID, c.requestTTL); err != nil {
		// 操作本身已成功；标记失败只会导致一次多余的重放被状态机拒绝
		logger.Ctx(ctx).Error().Err(err).Str("requestId", requestID).Msg("operation succeeded but marking processed failed")
	}
	return nil
}

// ExecuteWithLock 是并发安全版本：先查去重标记，再抢业务锁，
// 拿到锁之后再查一次标记（双重检查，关掉第一次检查和抢锁之间的窗口），
// 然后才执行 operation。锁在所有退出路径上都会释放；operation 失败不打标记。
func (c *Controller) ExecuteWithLock(ctx context.Context, requestID, lockKey string, operation func(ctx context.Context) error) error {
	processed, err := c.IsRequestProcessed(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to check request marker: %w", err)
	}
	if processed {
		return ErrAlreadyProcessed
	}

	token, ok, err := c.TryLock(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return ErrBusy
	}
	defer c.ReleaseLock(ctx, lockKey, token)

	// 双重检查：竞争者可能在我们第一次检查之后、抢到锁之前已经完成了
	processed, err = c.IsRequestProcessed(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to re-check request marker: %w", err)
	}
	if processed {
		return ErrAlreadyProcessed
	}

	if err := operation(ctx); err != nil {
		return err
	}

	if err := c.MarkRequestProcessed(ctx, requestID, c.requestTTL); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("requestId", requestID).Msg("operation succeeded but marking processed failed")
	}
	return nil
}
