// internal/service/order/application/batch.go
package application

import (
	"context"
	"errors"
	"fmt"

	"atlas/internal/pkg/idempotency"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// 批量操作支持的动作。
const (
	ActionCancel = "cancel"
	ActionRefund = "refund"
)

// DefaultMaxBatchSize 是单次批量操作的默认上限。
const DefaultMaxBatchSize = 100

// SetMaxBatchSize 覆盖批量操作的上限，非正数被忽略。在组装阶段调用，不做并发保护。
func (s *LifecycleService) SetMaxBatchSize(n int) {
	if n > 0 {
		s.maxBatchSize = n
	}
}

// BatchProcess 对一组订单执行同一个生命周期操作。
// 批次整体按自己的 requestID 去重（ExecuteIdempotent 一层就够：批次内部
// 的单笔操作各自有锁），每个订单用新生成的独立 request id，
// 避免批次 id 让单笔锁互相踩。单项失败被捕获进汇总，不中止批次。
func (s *LifecycleService) BatchProcess(ctx context.Context, action string, orderNos []string, reason, requestID string) (*BatchSummary, error) {
	ctx, span := s.tracer.Start(ctx, "app.BatchProcess")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.action", action),
		attribute.Int("batch.size", len(orderNos)),
	)

	if action != ActionCancel && action != ActionRefund {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAction, action)
	}
	if len(orderNos) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", domain.ErrTooManyItems, len(orderNos), s.maxBatchSize)
	}

	requestID = normalizeRequestID("batch_"+action, fmt.Sprintf("%d", len(orderNos)), requestID)

	summary := &BatchSummary{TotalCount: len(orderNos)}
	err := s.idem.ExecuteIdempotent(ctx, requestID, func(ctx context.Context) error {
		for _, orderNo := range orderNos {
			// 每一项一个全新的 request id，绝不能复用批次的 requestID
			itemRequestID := fmt.Sprintf("%s_%s_%s", action, orderNo, uuid.NewString())

			var err error
			switch action {
			case ActionCancel:
				_, err = s.CancelOrder(ctx, orderNo, reason, itemRequestID)
			case ActionRefund:
				// 批量退款按全额处理
				_, err = s.RefundOrder(ctx, orderNo, 0, reason, itemRequestID)
			}

			if err != nil && !errors.Is(err, idempotency.ErrAlreadyProcessed) {
				summary.FailCount++
				summary.Errors = append(summary.Errors, ItemError{
					OrderNo: orderNo,
					Code:    ErrorCode(err),
					Message: err.Error(),
				})
				logger.Ctx(ctx).Warn().Err(err).
					Str("orderNo", orderNo).
					Str("action", action).
					Msg("batch item failed")
				continue
			}
			summary.SuccessCount++
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("batch.success", summary.SuccessCount),
		attribute.Int("batch.fail", summary.FailCount),
	)
	return summary, nil
}

// ErrorCode 把错误分类映射成稳定的短码，供批量汇总和 HTTP 层使用。
func ErrorCode(err error) string {
	var illegal *domain.IllegalTransitionError
	var revocation *domain.EntitlementRevocationError
	var system *domain.SystemError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return "NOT_FOUND"
	case errors.As(err, &illegal):
		return "ILLEGAL_TRANSITION"
	case errors.Is(err, domain.ErrConcurrentConflict):
		return "CONCURRENT_CONFLICT"
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		return "ALREADY_PROCESSED"
	case errors.Is(err, idempotency.ErrBusy):
		return "BUSY"
	case errors.Is(err, domain.ErrTooManyItems):
		return "TOO_MANY_ITEMS"
	case errors.Is(err, domain.ErrInvalidRefundAmount):
		return "INVALID_REFUND_AMOUNT"
	case errors.Is(err, domain.ErrUnsupportedAction):
		return "UNSUPPORTED_ACTION"
	case errors.As(err, &revocation):
		return "ENTITLEMENT_REVOCATION_FAILED"
	case errors.As(err, &system):
		return "SYSTEM"
	default:
		return "SYSTEM"
	}
}
