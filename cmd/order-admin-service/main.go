// cmd/order-admin-service/main.go
package main

import (
	"context"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/idempotency"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/infrastructure"
	"atlas/internal/service/order/infrastructure/adapter"
	"atlas/internal/service/order/interfaces"

	"go.opentelemetry.io/otel"
)

const serviceName = "order-admin-service"

// main 是应用的组装根：创建并组装所有依赖，然后启动服务。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	// 协调存储 + 幂等控制
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create redis client")
	}
	idem := idempotency.NewController(redisClient)

	// 订单存储
	db, err := infrastructure.NewDB(cfg.Infra.Mysql.User, cfg.Infra.Mysql.Password, cfg.Infra.Mysql.Addr, cfg.Infra.Mysql.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormOrderRepository(db)
	revoker := adapter.NewEntitlementGormAdapter(db)

	// 支付后取消的策略
	policy, err := adapter.NewCELCancelPolicy(cfg.App.PostPayCancelExpr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid post-pay cancel policy expression")
	}

	// 状态变更事件
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StatusTopic)
	notifier := adapter.NewStatusKafkaNotifier(writer)

	service := application.NewLifecycleService(repo, idem, revoker, policy, notifier, otel.Tracer(serviceName))
	service.SetMaxBatchSize(cfg.App.MaxBatchSize)
	handler := interfaces.NewOrderAdminHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8086,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context) error{
			func(ctx context.Context) error { return notifier.Close() },
			func(ctx context.Context) error { return redisClient.Close() },
			func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		},
	})
}
