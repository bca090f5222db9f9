// internal/service/order/interfaces/expiry_sweeper.go
package interfaces

import (
	"context"
	"errors"
	"time"

	"atlas/internal/pkg/idempotency"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/domain"
	"atlas/internal/zookeeper"

	"golang.org/x/sync/errgroup"
)

// ExpirySweeper 周期性地把超过支付窗口的 CREATED 订单关闭。
// 每轮扫描前先抢 ZooKeeper 任务锁，保证多实例部署时同一时刻只有一个在扫。
// 单个订单的失败只记日志，不影响本轮其余订单，也不中断任务。
type ExpirySweeper struct {
	repo      domain.OrderRepository
	service   *application.LifecycleService
	zkConn    *zookeeper.Conn
	interval  time.Duration
	payWindow time.Duration
	scanLimit int
}

func NewExpirySweeper(repo domain.OrderRepository, service *application.LifecycleService, zkConn *zookeeper.Conn, interval, payWindow time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		repo:      repo,
		service:   service,
		zkConn:    zkConn,
		interval:  interval,
		payWindow: payWindow,
		scanLimit: 200,
	}
}

// Start 启动扫描循环，阻塞直到 ctx 取消。
func (s *ExpirySweeper) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().
		Dur("interval", s.interval).
		Dur("payWindow", s.payWindow).
		Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce 执行一轮带互斥保护的扫描。
func (s *ExpirySweeper) sweepOnce(ctx context.Context) {
	lock, err := zookeeper.NewTaskLock(s.zkConn, "order-expiry-sweep", 5*time.Second)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to prepare sweep lock")
		return
	}
	if err := lock.Lock(); err != nil {
		if errors.Is(err, zookeeper.ErrLockTimeout) {
			// 另一个实例正在扫，这轮直接让掉
			logger.Ctx(ctx).Debug().Msg("sweep lock held elsewhere, skipping this round")
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("failed to acquire sweep lock")
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	s.sweep(ctx)
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	before := time.Now().Add(-s.payWindow)
	orders, err := s.repo.FindExpiredCreated(ctx, before, s.scanLimit)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to scan expired orders")
		return
	}
	if len(orders) == 0 {
		return
	}
	logger.Ctx(ctx).Info().Int("count", len(orders)).Msg("expiring overdue orders")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, order := range orders {
		orderNo := order.OrderNo
		g.Go(func() error {
			_, err := s.service.ExpireOrder(gctx, orderNo)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrConcurrentConflict),
				errors.Is(err, idempotency.ErrBusy):
				// 竞争方（比如管理员刚取消了它）赢了，天然幂等，不算失败
				logger.Ctx(gctx).Debug().Str("orderNo", orderNo).Msg("order mutated concurrently, skipping")
			default:
				var illegal *domain.IllegalTransitionError
				if errors.As(err, &illegal) {
					// 扫描和处理之间订单已经流转走了
					logger.Ctx(gctx).Debug().Str("orderNo", orderNo).Msg("order no longer expirable")
				} else {
					logger.Ctx(gctx).Error().Err(err).Str("orderNo", orderNo).Msg("failed to expire order")
				}
			}
			// 单项失败永不向上冒泡，保证其余订单继续处理
			return nil
		})
	}
	_ = g.Wait()
}
