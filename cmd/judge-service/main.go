package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hsoj/internal/common/cache"
	"hsoj/internal/common/db"
	commonmw "hsoj/internal/common/http/middleware"
	"hsoj/internal/common/mq"
	"hsoj/internal/common/storage"
	"hsoj/internal/judge/compiler"
	"hsoj/internal/judge/controller"
	"hsoj/internal/judge/executor"
	"hsoj/internal/judge/problem"
	"hsoj/internal/judge/repository"
	"hsoj/internal/judge/service"
	"hsoj/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var catalogOpts []problem.CatalogOption
	if appCfg.MinIO.Enabled() {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		syncer := problem.NewPackSyncer(objStorage, redisCache, appCfg.Problem.Bucket, appCfg.Problem.LockWait)
		catalogOpts = append(catalogOpts, problem.WithPackSyncer(syncer))
	}
	catalog, err := problem.NewDirCatalog(appCfg.Problem.Dir, appCfg.Problem.MetaTTL, catalogOpts...)
	if err != nil {
		logger.Error(context.Background(), "init problem catalog failed", zap.Error(err))
		return
	}

	runner := executor.NewProcessRunner()
	registry, err := compiler.NewRegistry(appCfg.Judge.Languages, runner)
	if err != nil {
		logger.Error(context.Background(), "init compilers failed", zap.Error(err))
		return
	}
	judger, err := service.NewJudger(service.JudgerConfig{
		Workspace:   appCfg.Judge.Workspace,
		RunCmd:      appCfg.Judge.RunCmd,
		Cleanup:     appCfg.Judge.Cleanup,
		TestWorkers: appCfg.Judge.TestWorkers,
	}, registry, runner)
	if err != nil {
		logger.Error(context.Background(), "init judger failed", zap.Error(err))
		return
	}

	var (
		mqClient  *mq.KafkaQueue
		queue     mq.Producer
		publisher repository.StatusEventPublisher
	)
	if appCfg.Kafka.Enabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		queue = mqClient
		publisher = repository.NewMQStatusEventPublisher(mqClient, appCfg.Status.FinalTopic)
	}

	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL, publisher)
	submissions := repository.NewSubmissionStore(mysqlDB)

	judgeSvc, err := service.NewService(service.Config{
		Judger:  judger,
		Catalog: catalog,
		Store:   submissions,
		Status:  statusRepo,
		Queue:   queue,
		Retry: service.PoolRetry{
			Topic:      appCfg.Kafka.RetryTopic,
			DeadLetter: appCfg.Kafka.DeadLetter,
			MaxRetries: appCfg.Kafka.PoolRetryMax,
			BaseDelay:  appCfg.Kafka.PoolRetryBase,
			MaxDelay:   appCfg.Kafka.PoolRetryMaxD,
		},
		StatusTimeout:  appCfg.Status.Timeout,
		SlotWait:       appCfg.Worker.SlotWait,
		WorkerPoolSize: appCfg.Worker.PoolSize,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	submitSvc, err := service.NewSubmitService(service.SubmitConfig{
		Languages:    registry,
		Catalog:      catalog,
		Submissions:  submissions,
		Status:       statusRepo,
		Queue:        queue,
		Topic:        appCfg.Kafka.Topic,
		Judge:        judgeSvc,
		MaxCodeBytes: appCfg.Judge.MaxCodeBytes,
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	if mqClient != nil {
		if err := subscribe(mqClient, appCfg.Kafka, appCfg.Worker.PoolSize, judgeSvc.HandleMessage); err != nil {
			logger.Error(context.Background(), "subscribe kafka failed", zap.Error(err))
			return
		}
		if err := mqClient.Start(); err != nil {
			logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	} else {
		logger.Info(context.Background(), "kafka disabled, judging in process")
	}

	limiter := commonmw.NewRateLimiter(redisCache, appCfg.Server.SubmitLimit.Max, appCfg.Server.SubmitLimit.Window)
	httpServer := buildHTTPServer(appCfg.Server, controller.NewJudgeController(submitSvc), limiter)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started",
			zap.String("addr", appCfg.Server.Addr), zap.Strings("languages", submitSvc.Languages()))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// subscribe consumes the task topic and, when it differs, the pool retry topic.
func subscribe(consumer mq.Consumer, cfg KafkaConfig, poolSize int, handler mq.HandlerFunc) error {
	limiter := mq.NewTokenLimiter(poolSize)
	topics := []string{cfg.Topic}
	if cfg.RetryTopic != "" && cfg.RetryTopic != cfg.Topic {
		topics = append(topics, cfg.RetryTopic)
	}
	for _, topic := range topics {
		if err := consumer.SubscribeWithOptions(context.Background(), topic, handler, cfg.subscribeOptions(), limiter); err != nil {
			return fmt.Errorf("subscribe %s failed: %w", topic, err)
		}
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController, limiter *commonmw.RateLimiter) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	judgeController.RegisterRoutes(router, commonmw.RateLimit(limiter, "submit"))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
