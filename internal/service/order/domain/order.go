// internal/service/order/domain/order.go
package domain

import "time"

// Order 是订单聚合的根实体。
// 核心服务从不长期持有它：每次变更前都通过仓储重新读取最新一行，
// Version 是乐观锁令牌，每次成功的状态变更恰好加一。
type Order struct {
	OrderNo   string
	UserID    string
	Amount    float64
	Status    Status
	Version   int64
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
