// internal/pkg/idempotency/controller_test.go
package idempotency_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"atlas/internal/pkg/idempotency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 是协调存储契约的内存实现，带 TTL 语义，供测试使用。
type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value    string
	expireAt time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]memEntry)}
}

func (s *memStore) get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		delete(s.entries, key)
		return "", false
	}
	return e.value, true
}

func (s *memStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = memEntry{value: value, expireAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok, nil
}

func (s *memStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok || v != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok
}

func TestExecuteIdempotentMarksProcessed(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	executed := 0
	err := c.ExecuteIdempotent(ctx, "req-1", func(ctx context.Context) error {
		executed++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, executed)

	processed, err := c.IsRequestProcessed(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, store.has("order:request:req-1"))
}

func TestExecuteIdempotentSequentialDuplicate(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	executed := 0
	op := func(ctx context.Context) error { executed++; return nil }

	require.NoError(t, c.ExecuteIdempotent(ctx, "req-dup", op))
	err := c.ExecuteIdempotent(ctx, "req-dup", op)
	require.ErrorIs(t, err, idempotency.ErrAlreadyProcessed)
	assert.Equal(t, 1, executed)
}

// 操作失败时不打去重标记，合法的重试还能进来。
func TestExecuteIdempotentFailureNotMarked(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := c.ExecuteIdempotent(ctx, "req-fail", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, store.has("order:request:req-fail"))

	// 重试成功
	require.NoError(t, c.ExecuteIdempotent(ctx, "req-fail", func(ctx context.Context) error { return nil }))
}

// 同一 requestId 并发提交 N 次，操作体最多执行一次，
// 其余调用观察到 AlreadyProcessed 或 Busy。
func TestExecuteWithLockAtMostOnce(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	const n = 32
	var executions atomic.Int32
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.ExecuteWithLock(ctx, "req-conc", "cancel_order_X", func(ctx context.Context) error {
				executions.Add(1)
				time.Sleep(5 * time.Millisecond) // 拉长临界区，制造真实竞争
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load())
	success := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, idempotency.ErrAlreadyProcessed), errors.Is(err, idempotency.ErrBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	// 返回后锁必须已经不在协调存储里
	assert.False(t, store.has("lock:cancel_order_X"))
}

// 不论操作体成功、业务失败还是系统失败，锁在返回后都必须已释放。
func TestExecuteWithLockReleasesOnAllPaths(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	// 成功路径
	require.NoError(t, c.ExecuteWithLock(ctx, "req-ok", "lk", func(ctx context.Context) error { return nil }))
	assert.False(t, store.has("lock:lk"))

	// 失败路径：不打标记、锁释放
	boom := errors.New("boom")
	err := c.ExecuteWithLock(ctx, "req-ko", "lk", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, store.has("lock:lk"))
	assert.False(t, store.has("order:request:req-ko"))

	// 失败后的重试可以成功
	require.NoError(t, c.ExecuteWithLock(ctx, "req-ko", "lk", func(ctx context.Context) error { return nil }))
}

func TestExecuteWithLockBusyWhenLockHeld(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	// 别的持有者占着锁
	ok, err := store.SetNX(ctx, "lock:held", "other-token", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = c.ExecuteWithLock(ctx, "req-busy", "held", func(ctx context.Context) error {
		t.Fatal("operation must not run while lock is held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, idempotency.ErrBusy)
}

// 双重检查：抢到锁之前请求已被别人完成，则不再执行。
func TestExecuteWithLockDoubleCheck(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	require.NoError(t, c.MarkRequestProcessed(ctx, "req-done", 0))
	err := c.ExecuteWithLock(ctx, "req-done", "lk2", func(ctx context.Context) error {
		t.Fatal("operation must not run for a processed request")
		return nil
	})
	require.ErrorIs(t, err, idempotency.ErrAlreadyProcessed)
	assert.False(t, store.has("lock:lk2"))
}

func TestTryLockAndRelease(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewController(store)
	ctx := context.Background()

	token, ok, err := c.TryLock(ctx, "res")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// 竞争失败立即返回，不阻塞
	_, ok, err = c.TryLock(ctx, "res")
	require.NoError(t, err)
	assert.False(t, ok)

	// 错误的令牌不能释放别人的锁
	c.ReleaseLock(ctx, "res", "wrong-token")
	assert.True(t, store.has("lock:res"))

	c.ReleaseLock(ctx, "res", token)
	assert.False(t, store.has("lock:res"))
}

// 去重标记过期后，同一 requestId 允许重新执行。
func TestRequestMarkerExpiry(t *testing.T) {
	store := newMemStore()
	c := idempotency.NewControllerWithTTL(store, 20*time.Millisecond, time.Minute)
	ctx := context.Background()

	executed := 0
	op := func(ctx context.Context) error { executed++; return nil }

	require.NoError(t, c.ExecuteWithLock(ctx, "req-ttl", "lk3", op))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.ExecuteWithLock(ctx, "req-ttl", "lk3", op))
	assert.Equal(t, 2, executed)
}
