package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/gateway"
	"hostelsystem/internal/handler"
	"hostelsystem/internal/infrastructure/cache"
	"hostelsystem/internal/infrastructure/database"
	"hostelsystem/internal/infrastructure/mq"
	"hostelsystem/internal/job"
	"hostelsystem/internal/logger"
	"hostelsystem/internal/metrics"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/idgen"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "雪花算法 workerID")
	flag.Parse()

	// .env 不存在时忽略，环境变量优先
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New(cfg.Server.Env, cfg.Log.Level))
	metrics.Init()
	idgen.Init(*workerID)

	db, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		fatal("数据库初始化失败", err)
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		fatal("Redis 初始化失败", err)
	}
	defer redisClient.Close()

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		fatal("Kafka 初始化失败", err)
	}
	defer publisher.Close()

	gw := gateway.NewClient(&cfg.Gateway)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewPaymentReconcileJob(service.NewPaymentService(db, redisClient, cfg, gw), cfg)
	go reconcileJob.Start(ctx)

	overdueJob := job.NewDueOverdueJob(service.NewDueService(db, cfg), cfg)
	go overdueJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, gw)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("服务启动失败", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("正在关闭服务...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("服务关闭异常", "error", err)
	}

	slog.Info("服务已关闭")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
