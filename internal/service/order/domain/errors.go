// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 业务错误分两类：大多数不可重试（NotFound / IllegalTransition / TooManyItems），
// ConcurrentConflict 可以在重读后有限次重试。系统性错误统一包成 *SystemError，
// 调用方据此套用不同的重试策略。
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrConcurrentConflict  = errors.New("conditional update lost the race")
	ErrTooManyItems        = errors.New("batch size exceeds the configured ceiling")
	ErrInvalidRefundAmount = errors.New("refund amount must be positive and not exceed the order amount")
	ErrUnsupportedAction   = errors.New("unsupported batch action")
)

// IllegalTransitionError 表示事件在当前状态下不合法。
// 携带当前状态和触发事件，便于排查。
type IllegalTransitionError struct {
	From   Status
	Event  Event
	Reason string // 可选，策略拒绝等附加说明
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal transition: %s + %s (%s)", e.From, e.Event, e.Reason)
	}
	return fmt.Sprintf("illegal transition: %s + %s", e.From, e.Event)
}

// EntitlementRevocationError 表示权益回收失败。订单状态变更已提交，
// 该错误只随结果上报给运维跟进，不会让整个操作失败。
type EntitlementRevocationError struct {
	OrderNo string
	Err     error
}

func (e *EntitlementRevocationError) Error() string {
	return fmt.Sprintf("failed to revoke entitlements for order %s: %v", e.OrderNo, e.Err)
}

func (e *EntitlementRevocationError) Unwrap() error { return e.Err }

// SystemError 包装存储不可用等系统级故障，与业务错误区分开。
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error in %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// NewSystemError 包装一个系统级故障。
func NewSystemError(op string, err error) *SystemError {
	return &SystemError{Op: op, Err: err}
}
