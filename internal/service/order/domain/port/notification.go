// internal/service/order/domain/port/notification.go
package port

import (
	"context"

	"atlas/internal/service/order/domain"
)

// StatusNotifier 对外发布订单状态变更事件。
type StatusNotifier interface {
	OrderStatusChanged(ctx context.Context, evt *domain.OrderStatusChanged) error
}
