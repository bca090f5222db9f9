// internal/service/order/infrastructure/mapper.go
package infrastructure

import (
	"atlas/internal/service/order/domain"
)

// toDomainOrder 把数据库模型转换为领域模型。
func toDomainOrder(model *OrderModel) *domain.Order {
	order := &domain.Order{
		OrderNo:   model.OrderNo,
		UserID:    model.UserID,
		Amount:    model.Amount,
		Status:    domain.Status(model.Status),
		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if model.PaidAt.Valid {
		t := model.PaidAt.Time
		order.PaidAt = &t
	}
	return order
}
