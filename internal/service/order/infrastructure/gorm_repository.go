// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"atlas/internal/service/order/domain"

	"gorm.io/gorm"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByOrderNo 从主库读取订单最新一行。
func (r *GormOrderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&model), nil
}

// ConditionalUpdateStatus 用单条 UPDATE 实现 compare-and-swap：
//
//	UPDATE orders SET status = ?, version = version + 1
//	WHERE order_no = ? AND status = ? AND version = ?
//
// RowsAffected == 0 是并发冲突的唯一信号，由调用方解释，这里不转成错误。
func (r *GormOrderRepository) ConditionalUpdateStatus(ctx context.Context, orderNo string, expected, next domain.Status, expectedVersion int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("order_no = ? AND status = ? AND version = ?", orderNo, string(expected), expectedVersion).
		Updates(map[string]interface{}{
			"status":  string(next),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FindExpiredCreated 返回仍处于 CREATED、创建时间早于 before 的订单。
func (r *GormOrderRepository) FindExpiredCreated(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	var models []*OrderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.StatusCreated), before).
		Order("created_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, len(models))
	for i, m := range models {
		orders[i] = toDomainOrder(m)
	}
	return orders, nil
}
