package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/handler"
	"balanceledger/internal/infrastructure/cache"
	"balanceledger/internal/infrastructure/database"
	"balanceledger/internal/infrastructure/lock"
	"balanceledger/internal/infrastructure/mq"
	"balanceledger/internal/job"
	"balanceledger/internal/service"
	"balanceledger/pkg/idgen"
	"balanceledger/pkg/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)
	logger.Init(cfg.Log)

	// 初始化 ID 生成器
	idgen.Init(cfg.Business.NodeID)

	// 初始化数据库
	db := database.Init(&cfg.Database)
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("数据库迁移失败")
	}

	// 用户锁：Redis 可用时使用分布式锁，否则单实例内存锁
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(context.Background(), &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("初始化 Redis 失败")
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Business.LockTTL(), cfg.Business.LockRetryInterval())
	}

	// 消息投递
	var sender mq.Sender = mq.LogSender{}
	if cfg.Kafka.Enabled {
		kafkaSender := mq.InitKafka(&cfg.Kafka)
		defer kafkaSender.Close()
		sender = kafkaSender
	}

	// 组装服务
	thresholds := service.NewThresholdProvider(db, cfg.Thresholds, cfg.Business.ConfigCacheTTL())
	selector := service.NewPromoSelector(db)
	store := service.NewLedgerStore(db, cfg.Kafka.Topic.LedgerEvent)
	processor := service.NewTransactionProcessor(db, store, selector, service.ProcessorOptions{
		Locker:  locker,
		Configs: thresholds,
		Alerts: service.MultiAlertSink{
			service.NewOutboxAlertSink(db, cfg.Kafka.Topic.BalanceAlert),
			service.LogAlertSink{},
		},
		Timeout: cfg.Business.TxTimeout(),
	})

	h := handler.NewHandler(handler.Services{
		Processor:  processor,
		Balance:    service.NewBalanceService(db),
		Promo:      service.NewPromoService(db, selector),
		Audit:      service.NewAuditService(db),
		Thresholds: thresholds,
	})

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, sender,
		time.Duration(cfg.Business.OutboxIntervalMs)*time.Millisecond,
		cfg.Business.OutboxBatchSize,
		cfg.Business.MaxRetryCount,
	)
	go outboxSender.Start(ctx)

	auditJob := job.NewLedgerAuditJob(db, cfg.Business.AuditCron, time.Duration(cfg.Business.AuditLookbackHours)*time.Hour)
	if err := auditJob.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.Business.AuditCron).Msg("对账任务启动失败")
	}

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h, cfg.Server.Mode),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("服务启动失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()
	outboxSender.Stop()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}

	log.Info().Msg("服务已关闭")
}
