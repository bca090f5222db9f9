// internal/service/order/infrastructure/adapter/entitlement_gorm_adapter.go
package adapter

import (
	"context"

	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/infrastructure"

	"gorm.io/gorm"
)

// EntitlementGormAdapter 是 port.EntitlementRevoker 的 GORM 实现。
type EntitlementGormAdapter struct {
	db *gorm.DB
}

func NewEntitlementGormAdapter(db *gorm.DB) *EntitlementGormAdapter {
	return &EntitlementGormAdapter{db: db}
}

// BatchUpdateStatus 把订单的全部权益记录更新到目标状态并记下原因。
// 返回受影响的行数；0 行不是错误——订单可能本来就没有关联权益。
func (a *EntitlementGormAdapter) BatchUpdateStatus(ctx context.Context, orderNo string, status domain.EntitlementStatus, reason string) (int64, error) {
	res := a.db.WithContext(ctx).
		Model(&infrastructure.EntitlementModel{}).
		Where("order_no = ?", orderNo).
		Updates(map[string]interface{}{
			"status": string(status),
			"reason": reason,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
