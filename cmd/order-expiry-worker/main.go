// cmd/order-expiry-worker/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/idempotency"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/infrastructure"
	"atlas/internal/service/order/infrastructure/adapter"
	"atlas/internal/service/order/interfaces"
	"atlas/internal/zookeeper"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

const serviceName = "order-expiry-worker"

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create redis client")
	}
	idem := idempotency.NewController(redisClient)

	db, err := infrastructure.NewDB(cfg.Infra.Mysql.User, cfg.Infra.Mysql.Password, cfg.Infra.Mysql.Addr, cfg.Infra.Mysql.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormOrderRepository(db)
	revoker := adapter.NewEntitlementGormAdapter(db)

	policy, err := adapter.NewCELCancelPolicy(cfg.App.PostPayCancelExpr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid post-pay cancel policy expression")
	}

	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StatusTopic)
	notifier := adapter.NewStatusKafkaNotifier(writer)

	service := application.NewLifecycleService(repo, idem, revoker, policy, notifier, otel.Tracer(serviceName))

	// ZooKeeper 任务锁，保证多实例下同一时刻只有一个 sweeper 在扫
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 10*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}

	payWindow := time.Duration(cfg.App.PayWindowMinutes) * time.Minute
	sweeper := interfaces.NewExpirySweeper(repo, service, zkConn, time.Minute, payWindow)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweeper.Start(logger.WithContext(sweepCtx))

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8087,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: []func(ctx context.Context) error{
			func(ctx context.Context) error { stopSweep(); return nil },
			func(ctx context.Context) error { zkConn.Close(); return nil },
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
