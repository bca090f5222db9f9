// internal/service/order/domain/port/entitlement.go
package port

import (
	"context"

	"atlas/internal/service/order/domain"
)

// EntitlementRevoker 更新订单关联的内容权益记录。
// 在订单状态写入提交之后才会被调用，失败不回滚订单状态。
type EntitlementRevoker interface {
	BatchUpdateStatus(ctx context.Context, orderNo string, status domain.EntitlementStatus, reason string) (int64, error)
}
