// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// OrderModel 对应数据库中的 orders 表。
// version 列是乐观锁令牌：条件更新的 WHERE 同时匹配 status 和 version，
// 任何一次成功写入都把它加一。
type OrderModel struct {
	ID        uint    `gorm:"primaryKey"`
	OrderNo   string  `gorm:"type:varchar(64);uniqueIndex"`
	UserID    string  `gorm:"type:varchar(64);index"`
	Amount    float64 `gorm:"type:decimal(10,2)"`
	Status    string  `gorm:"type:varchar(32);index"`
	Version   int64   `gorm:"not null;default:1"`
	PaidAt    sql.NullTime
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// EntitlementModel 对应 order_entitlements 表，记录订单带来的内容访问授权。
type EntitlementModel struct {
	ID        uint           `gorm:"primaryKey"`
	OrderNo   string         `gorm:"type:varchar(64);index"`
	ContentID string         `gorm:"type:varchar(64)"`
	Status    string         `gorm:"type:varchar(32)"`
	Reason    sql.NullString `gorm:"type:varchar(255)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EntitlementModel) TableName() string {
	return "order_entitlements"
}
