// internal/service/order/domain/port/policy.go
package port

import (
	"context"

	"atlas/internal/service/order/domain"
)

// CancelPolicy 决定已支付订单是否允许取消。
// 流转表只表达 PAID + CANCEL 在结构上可达，真正放行与否由策略说了算。
type CancelPolicy interface {
	AllowPostPayCancel(ctx context.Context, order *domain.Order) (bool, error)
}
