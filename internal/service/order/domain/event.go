// internal/service/order/domain/event.go
package domain

import "time"

// OrderStatusChanged 在状态变更提交成功后发布，供通知、推送等下游消费。
// 发布是尽力而为的：丢一条事件不回滚已提交的状态。
type OrderStatusChanged struct {
	OrderNo    string    `json:"order_no"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id"`
	NewVersion int64     `json:"new_version"`
	OccurredAt time.Time `json:"occurred_at"`
}
