// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atlas/internal/pkg/idempotency"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LifecycleService 编排单笔订单的状态变更：
// 幂等控制器负责去重和互斥，状态机裁决流转是否合法，
// 仓储的条件更新是真正的串行化点——锁只是减少无谓的冲突工作，
// 即使锁被绕过或提前过期，输掉竞争的一方也只会条件更新 0 行，不会写脏状态。
type LifecycleService struct {
	repo         domain.OrderRepository
	idem         *idempotency.Controller
	revoker      port.EntitlementRevoker
	policy       port.CancelPolicy
	notifier     port.StatusNotifier
	tracer       trace.Tracer
	maxBatchSize int
}

func NewLifecycleService(
	repo domain.OrderRepository,
	idem *idempotency.Controller,
	revoker port.EntitlementRevoker,
	policy port.CancelPolicy,
	notifier port.StatusNotifier,
	tracer trace.Tracer,
) *LifecycleService {
	return &LifecycleService{
		repo:         repo,
		idem:         idem,
		revoker:      revoker,
		policy:       policy,
		notifier:     notifier,
		tracer:       tracer,
		maxBatchSize: DefaultMaxBatchSize,
	}
}

// CancelOrder 取消一笔订单。requestID 为空时生成基于时间的兜底 id——
// 这是弱去重（两次真正的重复重试可能拿到不同 id），需要强去重的调用方
// 必须自己传入内容派生的 requestID。
func (s *LifecycleService) CancelOrder(ctx context.Context, orderNo, reason, requestID string) (*MutationResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder")
	defer span.End()

	requestID = normalizeRequestID("cancel", orderNo, requestID)
	span.SetAttributes(
		attribute.String("order.no", orderNo),
		attribute.String("request.id", requestID),
	)

	lockKey := "cancel_order_" + orderNo
	var result *MutationResult
	err := s.idem.ExecuteWithLock(ctx, requestID, lockKey, func(ctx context.Context) error {
		r, err := s.applyTransition(ctx, orderNo, domain.EventCancel, domain.EntitlementRevoked, reason, requestID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

// RefundOrder 对已支付订单执行退款。退款不完全走通用事件表：
// "当前状态必须是 PAID" 是显式前置条件，而不是从表里推断出来的。
// refundAmount 为 0 表示全额退款，负数一律拒绝。
func (s *LifecycleService) RefundOrder(ctx context.Context, orderNo string, refundAmount float64, reason, requestID string) (*MutationResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.RefundOrder")
	defer span.End()

	requestID = normalizeRequestID("refund", orderNo, requestID)
	span.SetAttributes(
		attribute.String("order.no", orderNo),
		attribute.String("request.id", requestID),
		attribute.Float64("refund.amount", refundAmount),
	)

	lockKey := "refund_order_" + orderNo
	var result *MutationResult
	err := s.idem.ExecuteWithLock(ctx, requestID, lockKey, func(ctx context.Context) error {
		order, err := s.repo.FindByOrderNo(ctx, orderNo)
		if err != nil {
			return s.wrapRepoErr("FindByOrderNo", err)
		}

		if order.Status != domain.StatusPaid {
			return &domain.IllegalTransitionError{From: order.Status, Event: domain.EventRefund, Reason: "refund requires a paid order"}
		}
		if refundAmount < 0 || refundAmount > order.Amount {
			return domain.ErrInvalidRefundAmount
		}

		r, err := s.commit(ctx, order, domain.EventRefund, domain.EntitlementExpired, reason, requestID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

// ExpireOrder 把超过支付窗口的 CREATED 订单关闭，由清理任务调用。
// 不包幂等层：清理任务每轮生成的触发没有稳定的 requestId，
// 并发安全完全由版本号条件更新保证，输掉竞争的一方拿到 ConcurrentConflict。
func (s *LifecycleService) ExpireOrder(ctx context.Context, orderNo string) (*MutationResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.ExpireOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.no", orderNo))

	result, err := s.applyTransition(ctx, orderNo, domain.EventExpire, domain.EntitlementExpired, "payment window expired", "")
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result, nil
}

// applyTransition 是临界区主体：重读订单、状态机预检、条件更新、副作用。
func (s *LifecycleService) applyTransition(ctx context.Context, orderNo string, event domain.Event, entStatus domain.EntitlementStatus, reason, requestID string) (*MutationResult, error) {
	order, err := s.repo.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, s.wrapRepoErr("FindByOrderNo", err)
	}

	// 预检：写库之前先让状态机拒掉非法流转，省一次存储往返
	if !domain.CanTransition(order.Status, event) {
		return nil, &domain.IllegalTransitionError{From: order.Status, Event: event}
	}

	// 支付后取消还要通过业务策略
	if event == domain.EventCancel && order.Status == domain.StatusPaid {
		allowed, err := s.policy.AllowPostPayCancel(ctx, order)
		if err != nil {
			return nil, domain.NewSystemError("CancelPolicy", err)
		}
		if !allowed {
			return nil, &domain.IllegalTransitionError{From: order.Status, Event: event, Reason: "post-pay cancel rejected by policy"}
		}
	}

	return s.commit(ctx, order, event, entStatus, reason, requestID)
}

// commit 执行条件更新并触发副作用。调用方已经完成了本次变更的所有前置校验。
func (s *LifecycleService) commit(ctx context.Context, order *domain.Order, event domain.Event, entStatus domain.EntitlementStatus, reason, requestID string) (*MutationResult, error) {
	next, err := domain.Transition(order.Status, event)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ConditionalUpdateStatus(ctx, order.OrderNo, order.Status, next, order.Version)
	if err != nil {
		return nil, domain.NewSystemError("ConditionalUpdateStatus", err)
	}
	if rows == 0 {
		// 另一个写入者赢了。重试方重读后要么发现流转已非法（天然幂等），要么再试一次
		return nil, domain.ErrConcurrentConflict
	}

	result := &MutationResult{
		OrderNo:    order.OrderNo,
		From:       order.Status,
		To:         next,
		NewVersion: order.Version + 1,
	}

	// 状态写入已提交，之后的副作用失败都不回滚
	if _, err := s.revoker.BatchUpdateStatus(ctx, order.OrderNo, entStatus, reason); err != nil {
		result.RevocationErr = &domain.EntitlementRevocationError{OrderNo: order.OrderNo, Err: err}
		logger.Ctx(ctx).Error().Err(err).
			Str("orderNo", order.OrderNo).
			Str("entitlementStatus", string(entStatus)).
			Msg("entitlement revocation failed, order transition stands")
	}

	if s.notifier != nil {
		evt := &domain.OrderStatusChanged{
			OrderNo:    order.OrderNo,
			From:       order.Status,
			To:         next,
			Reason:     reason,
			RequestID:  requestID,
			NewVersion: result.NewVersion,
			OccurredAt: time.Now(),
		}
		if err := s.notifier.OrderStatusChanged(ctx, evt); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("orderNo", order.OrderNo).Msg("failed to publish status change event")
		}
	}

	logger.Ctx(ctx).Info().
		Str("orderNo", order.OrderNo).
		Str("from", string(order.Status)).
		Str("to", string(next)).
		Int64("version", result.NewVersion).
		Msg("order transition committed")

	return result, nil
}

func (s *LifecycleService) wrapRepoErr(op string, err error) error {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return err
	}
	return domain.NewSystemError(op, err)
}

// normalizeRequestID 为缺省的 requestId 生成基于时间的兜底值。
// 弱去重：同一逻辑请求的两次重试可能落在不同的纳秒刻度上，
// 从而绕过去重。这里按原有行为保留，不做静默修复。
func normalizeRequestID(action, orderNo, requestID string) string {
	if requestID != "" {
		return requestID
	}
	return fmt.Sprintf("%s_%s_%d", action, orderNo, time.Now().UnixNano())
}

func recordSpanError(span trace.Span, err error) {
	// AlreadyProcessed 对调用方是成功等价的，不当成 span 错误上报
	if errors.Is(err, idempotency.ErrAlreadyProcessed) {
		span.AddEvent("request already processed")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
