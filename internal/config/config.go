// Пакет config — загрузка и валидация конфигурации DNS-шлюза
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации шлюза.
type Config struct {
	// --- Сервер (health/metrics) ---

	// Порт HTTP-сервера служебных endpoints
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Redis ---

	// Хост Redis
	RedisHost string
	// Порт Redis
	RedisPort int
	// Пароль Redis (опционально)
	RedisPassword string
	// Номер базы Redis
	RedisDB int
	// Ключ sorted set с correlation-токенами незавершённых фабрикаций
	RedisPendingKey string

	// --- RabbitMQ ---

	// Хост RabbitMQ
	AMQPHost string
	// Порт RabbitMQ
	AMQPPort int
	// Имя пользователя RabbitMQ
	AMQPUser string
	// Пароль RabbitMQ
	AMQPPassword string
	// Virtual host RabbitMQ
	AMQPVHost string
	// Использовать amqps вместо amqp
	AMQPIsSSL bool

	// --- Канал фабрикации аккаунтов ---

	// Exchange входящих ответов фабрикации
	APIKeyConsumerExchange string
	// Очередь входящих ответов фабрикации
	APIKeyConsumerQueue string
	// Routing key входящих ответов фабрикации
	APIKeyConsumerRoutingKey string
	// Exchange исходящих запросов фабрикации
	APIKeyProducerExchange string
	// Очередь исходящих запросов фабрикации
	APIKeyProducerQueue string
	// Routing key исходящих запросов фабрикации
	APIKeyProducerRoutingKey string

	// --- RPC-шлюз анализа доменов ---

	// Exchange входящих RPC-запросов
	GatewayConsumerExchange string
	// Очередь входящих RPC-запросов
	GatewayConsumerQueue string
	// Routing key входящих RPC-запросов
	GatewayConsumerRoutingKey string
	// Exchange исходящих RPC-ответов
	GatewayProducerExchange string
	// Очередь исходящих RPC-ответов
	GatewayProducerQueue string
	// Routing key исходящих RPC-ответов
	GatewayProducerRoutingKey string

	// --- Пул аккаунтов ---

	// Целевой суммарный бюджет запросов в пуле
	RequestsCapacity int
	// Ожидаемый бюджет одного нового аккаунта (для расчёта спроса)
	RequestsPerAccount int
	// Максимум незавершённых запросов фабрикации одновременно
	MaxPendingRequests int
	// TTL correlation-токена незавершённой фабрикации
	StorageUUIDExpireTime time.Duration
	// Полоса гистерезиса при проверке заполненности пула
	SyncInaccuracy int

	// --- SecurityTrails ---

	// Базовый URL SecurityTrails API
	SecurityTrailsBaseURL string

	// --- Анализ доменов ---

	// Максимум попыток запроса при исчерпанном/отозванном ключе
	FetchMaxAttempts int
	// Пауза между повторными попытками запроса
	FetchRetryDelay time.Duration
	// Максимальный размер LRU-кэша результатов анализа
	AnalyzeCacheSize int
	// TTL записи в кэше результатов анализа
	AnalyzeCacheTTL time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DG_PORT — порт HTTP-сервера служебных endpoints (по умолчанию 8000)
	cfg.Port, err = getEnvInt("DG_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("DG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DG_LOG_LEVEL: %w", err)
	}

	// DG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// DG_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DG_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DG_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DG_DB_PORT: %w", err)
	}

	// DG_DB_NAME — имя базы (по умолчанию domain_guard)
	cfg.DBName = getEnvDefault("DG_DB_NAME", "domain_guard")

	// DG_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DG_DB_USER")
	if err != nil {
		return nil, err
	}

	// DG_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DG_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	// DG_REDIS_HOST — обязательный
	cfg.RedisHost, err = getEnvRequired("DG_REDIS_HOST")
	if err != nil {
		return nil, err
	}

	// DG_REDIS_PORT — порт Redis (по умолчанию 6379)
	cfg.RedisPort, err = getEnvInt("DG_REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("DG_REDIS_PORT: %w", err)
	}

	// DG_REDIS_PASSWORD — пароль Redis (опционально)
	cfg.RedisPassword = getEnvDefault("DG_REDIS_PASSWORD", "")

	// DG_REDIS_DB — номер базы Redis (по умолчанию 0)
	cfg.RedisDB, err = getEnvInt("DG_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("DG_REDIS_DB: %w", err)
	}

	// DG_REDIS_PENDING_KEY — ключ sorted set токенов фабрикации
	cfg.RedisPendingKey = getEnvDefault("DG_REDIS_PENDING_KEY", "securitytrails:pending")

	// --- RabbitMQ ---

	// DG_AMQP_HOST — обязательный
	cfg.AMQPHost, err = getEnvRequired("DG_AMQP_HOST")
	if err != nil {
		return nil, err
	}

	// DG_AMQP_PORT — порт RabbitMQ (по умолчанию 5672)
	cfg.AMQPPort, err = getEnvInt("DG_AMQP_PORT", 5672)
	if err != nil {
		return nil, fmt.Errorf("DG_AMQP_PORT: %w", err)
	}

	// DG_AMQP_USER — пользователь RabbitMQ (по умолчанию guest)
	cfg.AMQPUser = getEnvDefault("DG_AMQP_USER", "guest")

	// DG_AMQP_PASSWORD — пароль RabbitMQ (по умолчанию guest)
	cfg.AMQPPassword = getEnvDefault("DG_AMQP_PASSWORD", "guest")

	// DG_AMQP_VHOST — virtual host (по умолчанию /)
	cfg.AMQPVHost = getEnvDefault("DG_AMQP_VHOST", "/")

	// DG_AMQP_IS_SSL — amqps вместо amqp (по умолчанию false)
	cfg.AMQPIsSSL, err = getEnvBool("DG_AMQP_IS_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("DG_AMQP_IS_SSL: %w", err)
	}

	// --- Канал фабрикации ---

	cfg.APIKeyConsumerExchange = getEnvDefault("DG_APIKEY_CONSUMER_EXCHANGE", "securitytrails")
	cfg.APIKeyConsumerQueue = getEnvDefault("DG_APIKEY_CONSUMER_QUEUE", "securitytrails.apikey.res")
	cfg.APIKeyConsumerRoutingKey = getEnvDefault("DG_APIKEY_CONSUMER_ROUTING_KEY", "securitytrails.apikey.res")
	cfg.APIKeyProducerExchange = getEnvDefault("DG_APIKEY_PRODUCER_EXCHANGE", "securitytrails")
	cfg.APIKeyProducerQueue = getEnvDefault("DG_APIKEY_PRODUCER_QUEUE", "securitytrails.apikey.req")
	cfg.APIKeyProducerRoutingKey = getEnvDefault("DG_APIKEY_PRODUCER_ROUTING_KEY", "securitytrails.apikey.req")

	// --- RPC-шлюз ---

	cfg.GatewayConsumerExchange = getEnvDefault("DG_GATEWAY_CONSUMER_EXCHANGE", "aggregator")
	cfg.GatewayConsumerQueue = getEnvDefault("DG_GATEWAY_CONSUMER_QUEUE", "aggregator.req")
	cfg.GatewayConsumerRoutingKey = getEnvDefault("DG_GATEWAY_CONSUMER_ROUTING_KEY", "aggregator.req")
	cfg.GatewayProducerExchange = getEnvDefault("DG_GATEWAY_PRODUCER_EXCHANGE", "aggregator")
	cfg.GatewayProducerQueue = getEnvDefault("DG_GATEWAY_PRODUCER_QUEUE", "aggregator.res")
	cfg.GatewayProducerRoutingKey = getEnvDefault("DG_GATEWAY_PRODUCER_ROUTING_KEY", "aggregator.res")

	// --- Пул аккаунтов ---

	// DG_REQUESTS_CAPACITY — целевой бюджет пула (по умолчанию 100)
	cfg.RequestsCapacity, err = getEnvPositiveInt("DG_REQUESTS_CAPACITY", 100)
	if err != nil {
		return nil, fmt.Errorf("DG_REQUESTS_CAPACITY: %w", err)
	}

	// DG_REQUESTS_PER_ACCOUNT — ожидаемый бюджет нового аккаунта (по умолчанию 50)
	cfg.RequestsPerAccount, err = getEnvPositiveInt("DG_REQUESTS_PER_ACCOUNT", 50)
	if err != nil {
		return nil, fmt.Errorf("DG_REQUESTS_PER_ACCOUNT: %w", err)
	}

	// DG_MAX_PENDING_REQUESTS — лимит незавершённых фабрикаций (по умолчанию 5)
	cfg.MaxPendingRequests, err = getEnvPositiveInt("DG_MAX_PENDING_REQUESTS", 5)
	if err != nil {
		return nil, fmt.Errorf("DG_MAX_PENDING_REQUESTS: %w", err)
	}

	// DG_STORAGE_UUID_EXPIRE_TIME — TTL correlation-токена в секундах (по умолчанию 800)
	expireSeconds, err := getEnvPositiveInt("DG_STORAGE_UUID_EXPIRE_TIME", 800)
	if err != nil {
		return nil, fmt.Errorf("DG_STORAGE_UUID_EXPIRE_TIME: %w", err)
	}
	cfg.StorageUUIDExpireTime = time.Duration(expireSeconds) * time.Second

	// DG_SYNC_INACCURACY — полоса гистерезиса (по умолчанию 70)
	cfg.SyncInaccuracy, err = getEnvPositiveInt("DG_SYNC_INACCURACY", 70)
	if err != nil {
		return nil, fmt.Errorf("DG_SYNC_INACCURACY: %w", err)
	}

	// --- SecurityTrails ---

	// DG_SECURITYTRAILS_BASE_URL — базовый URL API
	cfg.SecurityTrailsBaseURL = strings.TrimRight(
		getEnvDefault("DG_SECURITYTRAILS_BASE_URL", "https://api.securitytrails.com/v1"), "/")

	// --- Анализ доменов ---

	// DG_FETCH_MAX_ATTEMPTS — попытки при плохом ключе (по умолчанию 5)
	cfg.FetchMaxAttempts, err = getEnvPositiveInt("DG_FETCH_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("DG_FETCH_MAX_ATTEMPTS: %w", err)
	}

	// DG_FETCH_RETRY_DELAY — пауза между попытками (по умолчанию 2s)
	cfg.FetchRetryDelay, err = getEnvDuration("DG_FETCH_RETRY_DELAY", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DG_FETCH_RETRY_DELAY: %w", err)
	}

	// DG_ANALYZE_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.AnalyzeCacheSize, err = getEnvPositiveInt("DG_ANALYZE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DG_ANALYZE_CACHE_SIZE: %w", err)
	}

	// DG_ANALYZE_CACHE_TTL — TTL кэша результатов (по умолчанию 10m)
	cfg.AnalyzeCacheTTL, err = getEnvDuration("DG_ANALYZE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DG_ANALYZE_CACHE_TTL: %w", err)
	}

	// --- Graceful shutdown ---

	// DG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// RedisAddr возвращает адрес Redis в формате host:port.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// AMQPURI возвращает URI подключения к RabbitMQ.
func (c *Config) AMQPURI() string {
	scheme := "amqp"
	if c.AMQPIsSSL {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d%s",
		scheme, c.AMQPUser, c.AMQPPassword, c.AMQPHost, c.AMQPPort, c.AMQPVHost)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvPositiveInt — как getEnvInt, но значение обязано быть строго положительным.
func getEnvPositiveInt(key string, defaultVal int) (int, error) {
	n, err := getEnvInt(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение %d должно быть положительным", n)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
