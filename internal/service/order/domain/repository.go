// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// OrderRepository 是订单存储的出站端口。
type OrderRepository interface {
	// FindByOrderNo 读取订单最新已提交的一行（主库读）。订单不存在时返回 ErrOrderNotFound。
	FindByOrderNo(ctx context.Context, orderNo string) (*Order, error)

	// ConditionalUpdateStatus 以单条 compare-and-swap 语句更新状态：
	// 只有当前状态和版本号都匹配时才写入，并把 version 加一。
	// 返回受影响的行数；0 行是并发冲突的唯一信号，不是错误。
	ConditionalUpdateStatus(ctx context.Context, orderNo string, expected, next Status, expectedVersion int64) (int64, error)

	// FindExpiredCreated 返回创建时间早于 before、仍处于 CREATED 的订单，供清理任务使用。
	FindExpiredCreated(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
