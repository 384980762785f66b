// Точка входа DomainGuard Gateway — шлюз DNS-разведки поверх SecurityTrails.
// Загружает конфигурацию, применяет миграции и подключается к PostgreSQL,
// Redis и RabbitMQ, инициализирует пул аккаунтов и сервис анализа,
// запускает consumers каналов фабрикации и RPC, HTTP-сервер health/metrics
// с graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/domainguard/gateway/internal/api/handlers"
	"github.com/domainguard/gateway/internal/broker"
	"github.com/domainguard/gateway/internal/config"
	"github.com/domainguard/gateway/internal/database"
	"github.com/domainguard/gateway/internal/gateway"
	"github.com/domainguard/gateway/internal/pool"
	"github.com/domainguard/gateway/internal/repository"
	"github.com/domainguard/gateway/internal/securitytrails"
	"github.com/domainguard/gateway/internal/server"
	"github.com/domainguard/gateway/internal/service"
	"github.com/domainguard/gateway/internal/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("DomainGuard Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pgPool.Close()

	// 5. Подключение к Redis — трекер correlation-токенов фабрикации
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Подключение к Redis установлено", slog.String("addr", cfg.RedisAddr()))

	// 6. Подключение к RabbitMQ: отдельные каналы для фабрикации и RPC
	amqpConn, err := broker.Connect(cfg.AMQPURI(), logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer amqpConn.Close()

	producerCh, err := amqpConn.Channel()
	if err != nil {
		logger.Error("Ошибка открытия AMQP-канала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	consumerCh, err := amqpConn.Channel()
	if err != nil {
		logger.Error("Ошибка открытия AMQP-канала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rpcCh, err := amqpConn.Channel()
	if err != nil {
		logger.Error("Ошибка открытия AMQP-канала", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Хранилища: аккаунты в PostgreSQL, pending-токены в Redis
	accountRepo := repository.NewAccountRepository(pgPool)
	txRunner := repository.NewTxRunner(pgPool)
	poolStore := repository.NewPoolStore(accountRepo, txRunner)
	pendingStore := storage.NewPendingStore(redisClient, cfg.RedisPendingKey)

	// 8. Клиент SecurityTrails и верификация api-ключей
	stClient := securitytrails.New(cfg.SecurityTrailsBaseURL, nil, logger)
	verifier := service.NewVerifyService(stClient, logger)

	// 9. Producer фабрикации и пул аккаунтов
	apikeyProducer, err := broker.NewAPIKeyProducer(producerCh,
		cfg.APIKeyProducerExchange,
		cfg.APIKeyProducerQueue,
		cfg.APIKeyProducerRoutingKey,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации producer фабрикации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	provider := pool.NewAccountProvider(
		pendingStore,
		apikeyProducer,
		poolStore,
		verifier,
		pool.ProviderConfig{
			RequestsCapacity:   cfg.RequestsCapacity,
			RequestsPerAccount: cfg.RequestsPerAccount,
			MaxPendingRequests: cfg.MaxPendingRequests,
			SyncInaccuracy:     cfg.SyncInaccuracy,
			TokenTTL:           cfg.StorageUUIDExpireTime,
		},
		logger,
	)
	provider.Initialize(ctx)

	// 10. Consumer ответов фабрикации
	apikeyConsumer, err := broker.NewAPIKeyConsumer(consumerCh,
		cfg.APIKeyConsumerExchange,
		cfg.APIKeyConsumerQueue,
		cfg.APIKeyConsumerRoutingKey,
		provider,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации consumer фабрикации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	go func() {
		if err := apikeyConsumer.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer фабрикации завершился", slog.String("error", err.Error()))
		}
	}()

	// 11. Сервис анализа доменов с LRU-кэшем сводок
	cache := service.NewCacheService(cfg.AnalyzeCacheSize, cfg.AnalyzeCacheTTL)
	analyzeSvc := service.NewAnalyzeService(
		stClient,
		provider,
		cache,
		cfg.FetchMaxAttempts,
		cfg.FetchRetryDelay,
		logger,
	)

	// 12. RPC-канал анализа. Reply-очередь агрегатора объявляется заранее,
	// чтобы ответы не терялись, пока агрегатор не поднялся.
	if err := broker.DeclareDirectBinding(rpcCh,
		cfg.GatewayProducerExchange,
		cfg.GatewayProducerQueue,
		cfg.GatewayProducerRoutingKey,
		true,
	); err != nil {
		logger.Error("Ошибка объявления reply-очереди", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gatewayConsumer, err := gateway.NewConsumer(rpcCh,
		cfg.GatewayConsumerExchange,
		cfg.GatewayConsumerQueue,
		cfg.GatewayConsumerRoutingKey,
		analyzeSvc,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации RPC consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	go func() {
		if err := gatewayConsumer.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("RPC consumer завершился", slog.String("error", err.Error()))
		}
	}()

	// 13. Readiness checkers и HTTP-сервер health/metrics
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pgPool),
		storage.NewReadinessChecker(redisClient),
		broker.NewReadinessChecker(amqpConn),
	)

	srv := server.New(cfg, logger, healthHandler)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	cancel()
	provider.Shutdown()

	logger.Info("DomainGuard Gateway остановлен")
}
