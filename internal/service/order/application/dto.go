// internal/service/order/application/dto.go
package application

import "atlas/internal/service/order/domain"

// MutationResult 是单笔订单变更成功后的结果。
// RevocationErr 非空表示权益回收失败：订单状态变更已生效，
// 仅把失败带回给调用方做运维跟进。
type MutationResult struct {
	OrderNo       string        `json:"order_no"`
	From          domain.Status `json:"from"`
	To            domain.Status `json:"to"`
	NewVersion    int64         `json:"new_version"`
	RevocationErr error         `json:"-"`
}

// ItemError 记录批量操作中单个订单的失败。
type ItemError struct {
	OrderNo string `json:"order_no"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchSummary 是批量操作的汇总结果。批量操作从不因单项失败而中止，
// 即使全部失败也返回完整汇总。
type BatchSummary struct {
	TotalCount   int         `json:"total_count"`
	SuccessCount int         `json:"success_count"`
	FailCount    int         `json:"fail_count"`
	Errors       []ItemError `json:"errors,omitempty"`
}
