// provider.go — менеджер пула аккаунтов SecurityTrails.
//
// AccountProvider владеет очередью аккаунтов и трекером незавершённых
// фабрикаций, выполняет алгоритм стабилизации (health check) и выдаёт
// аккаунты потребителям. Новые аккаунты запрашиваются асинхронно через
// брокер сообщений: внешний worker создаёт аккаунт и присылает ответ
// с тем же correlation-токеном.
//
// Health check:
//  1. Удалить истёкшие correlation-токены
//  2. Если пул заполнен (с учётом гистерезиса) — выход
//  3. Пересинхронизировать очередь минимальным покрывающим набором из БД
//  4. Если бюджет достигнут — выход
//  5. Вычислить спрос: ceil((capacity - len) / perAccount) - pending
//  6. Спрос покрыт — выход (сбросить loading, если фабрикаций нет)
//  7. Достигнут лимит незавершённых фабрикаций — выход
//  8. Отправить min(спрос, свободные слоты) запросов фабрикации
//
// Prometheus-метрики:
//   - domain_guard_pool_remaining_requests — остаток бюджета пула
//   - domain_guard_pool_gets_total — выдачи аккаунтов
//   - domain_guard_fabrications_dispatched_total — отправленные запросы фабрикации
//   - domain_guard_fabrication_responses_total — ответы фабрикации по исходу
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/domainguard/gateway/internal/domain/model"
)

// Prometheus-метрики пула.
var (
	poolRemainingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "domain_guard_pool_remaining_requests",
		Help: "Суммарный остаток бюджета запросов аккаунтов в пуле",
	})
	poolGets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "domain_guard_pool_gets_total",
		Help: "Количество выдач аккаунтов из пула",
	})
	fabricationsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "domain_guard_fabrications_dispatched_total",
		Help: "Количество отправленных запросов фабрикации аккаунтов",
	})
	fabricationResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_guard_fabrication_responses_total",
		Help: "Количество обработанных ответов фабрикации по исходу",
	}, []string{"outcome"})
)

// PendingStorage — TTL-множество correlation-токенов незавершённых фабрикаций.
// Наличие токена означает "фабрикация отправлена, ответ ещё не обработан".
type PendingStorage interface {
	// Add регистрирует токен с временем жизни ttl.
	Add(ctx context.Context, token string, ttl time.Duration) error
	// Remove удаляет токен (ответ обработан).
	Remove(ctx context.Context, token string) error
	// RemoveExpired удаляет истёкшие токены и возвращает их.
	RemoveExpired(ctx context.Context) ([]string, error)
	// CountAlive возвращает число ещё живых токенов.
	CountAlive(ctx context.Context) (int, error)
}

// FabricationProducer — отправка запроса фабрикации внешнему worker'у.
type FabricationProducer interface {
	// FabricateAccount публикует запрос фабрикации с correlation-токеном.
	FabricateAccount(ctx context.Context, token string) error
}

// AccountStore — персистентность аккаунтов, необходимая пулу.
type AccountStore interface {
	// CreateAccount сохраняет новый аккаунт и возвращает его с идентификатором.
	CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error)
	// FetchMinimal возвращает минимальный набор активных аккаунтов,
	// покрывающий requiredBudget, и суммарный бюджет набора.
	FetchMinimal(ctx context.Context, requiredBudget int) (int, []*model.Account, error)
	// SaveBudget транзакционно сохраняет остаток бюджета аккаунта
	// и деактивирует его при нулевом остатке.
	SaveBudget(ctx context.Context, account *model.Account) error
	// SaveStatus транзакционно сохраняет активность и бюджет аккаунта.
	SaveStatus(ctx context.Context, account *model.Account) error
}

// Verifier — проверка api-ключа через usage-endpoint провайдера.
type Verifier interface {
	// Verify возвращает активность ключа и остаток месячного бюджета.
	Verify(ctx context.Context, apiKey string) (bool, int)
}

// FabricationResult — декодированный исход ответа фабрикации.
type FabricationResult struct {
	// CorrelationID — токен, связывающий ответ с запросом фабрикации
	CorrelationID string
	// Success — фабрикация завершилась созданием аккаунта
	Success bool
	// Error — текст ошибки или статус при неуспехе
	Error string
	// Account — несохранённый аккаунт (только при успехе, бюджет не установлен)
	Account *model.Account
}

// ProviderConfig — параметры алгоритма пополнения пула.
type ProviderConfig struct {
	// RequestsCapacity — целевой суммарный бюджет пула
	RequestsCapacity int
	// RequestsPerAccount — ожидаемый бюджет одного нового аккаунта
	RequestsPerAccount int
	// MaxPendingRequests — лимит одновременных незавершённых фабрикаций
	MaxPendingRequests int
	// SyncInaccuracy — полоса гистерезиса при проверке заполненности
	SyncInaccuracy int
	// TokenTTL — время жизни correlation-токена
	TokenTTL time.Duration
}

// AccountProvider — менеджер пула аккаунтов.
type AccountProvider struct {
	queue    *ReusableQueue[*model.Account]
	pending  PendingStorage
	producer FabricationProducer
	store    AccountStore
	verifier Verifier
	cfg      ProviderConfig
	logger   *slog.Logger

	// mu защищает loadingAccounts
	mu              sync.Mutex
	loadingAccounts bool

	// tasksCtx/tasksCancel/tasks — супервизия фоновых задач фабрикации
	tasksCtx    context.Context
	tasksCancel context.CancelFunc
	tasks       sync.WaitGroup
}

// NewAccountProvider создаёт менеджер пула. Очередь ключуется api-ключом.
func NewAccountProvider(
	pending PendingStorage,
	producer FabricationProducer,
	store AccountStore,
	verifier Verifier,
	cfg ProviderConfig,
	logger *slog.Logger,
) *AccountProvider {
	tasksCtx, tasksCancel := context.WithCancel(context.Background())

	return &AccountProvider{
		queue: NewReusableQueue(func(a *model.Account) string {
			return a.APIKey
		}),
		pending:     pending,
		producer:    producer,
		store:       store,
		verifier:    verifier,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "account_provider")),
		tasksCtx:    tasksCtx,
		tasksCancel: tasksCancel,
	}
}

// Initialize выполняет первый health check и прогревает пул.
func (p *AccountProvider) Initialize(ctx context.Context) {
	p.logger.Info("Инициализация пула аккаунтов",
		slog.Int("requests_capacity", p.cfg.RequestsCapacity),
		slog.Int("requests_per_account", p.cfg.RequestsPerAccount),
		slog.Int("max_pending_requests", p.cfg.MaxPendingRequests),
	)
	p.HealthCheck(ctx)
}

// Get выдаёт аккаунт с ненулевым бюджетом, дожидаясь его появления.
// Бюджет уменьшается на единицу и сохраняется; аккаунт с нулевым
// остатком деактивируется в БД. Ошибка сохранения возвращается
// вызывающему — состояние бюджета иначе было бы неопределённым.
func (p *AccountProvider) Get(ctx context.Context) (*model.Account, error) {
	p.HealthCheck(ctx)

	account, err := p.queue.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ожидание аккаунта из пула: %w", err)
	}

	account.DecrementRequests()
	if err := p.store.SaveBudget(ctx, account); err != nil {
		return nil, fmt.Errorf("сохранение бюджета аккаунта: %w", err)
	}

	poolGets.Inc()
	p.HealthCheck(ctx)

	return account, nil
}

// ExpireAccount обрабатывает аккаунт, оказавшийся неработоспособным
// посреди использования: исключает его из очереди, перепроверяет статус
// и бюджет через usage-endpoint провайдера, сохраняет результат и
// возвращает обновлённый аккаунт.
func (p *AccountProvider) ExpireAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	p.queue.Expire(account)

	isActive, available := p.verifier.Verify(ctx, account.APIKey)
	account.SetStatus(isActive, available)

	if err := p.store.SaveStatus(ctx, account); err != nil {
		return nil, fmt.Errorf("сохранение статуса аккаунта: %w", err)
	}

	p.logger.Info("Аккаунт перепроверен после сбоя",
		slog.String("email", account.Email),
		slog.Bool("is_active", isActive),
		slog.Int("available_requests", available),
	)

	return account, nil
}

// OnFabricationResponse обрабатывает ответ фабрикации.
// Correlation-токен удаляется из трекера при любом исходе, в том числе
// при ошибке сохранения аккаунта. Успешно сфабрикованный аккаунт
// верифицируется, сохраняется и добавляется в очередь.
func (p *AccountProvider) OnFabricationResponse(ctx context.Context, result *FabricationResult) {
	if err := p.pending.Remove(ctx, result.CorrelationID); err != nil {
		p.logger.Warn("Ошибка удаления correlation-токена",
			slog.String("token", result.CorrelationID),
			slog.String("error", err.Error()),
		)
	}

	if !result.Success {
		fabricationResponses.WithLabelValues("failure").Inc()
		p.logger.Warn("Фабрикация аккаунта завершилась неудачей",
			slog.String("token", result.CorrelationID),
			slog.String("error", result.Error),
		)
		p.HealthCheck(ctx)
		return
	}

	account := result.Account
	isActive, available := p.verifier.Verify(ctx, account.APIKey)
	account.SetStatus(isActive, available)

	if !isActive || available <= 0 {
		fabricationResponses.WithLabelValues("verification_failed").Inc()
		p.logger.Warn("Сфабрикованный аккаунт не прошёл верификацию",
			slog.String("token", result.CorrelationID),
			slog.String("email", account.Email),
			slog.Bool("is_active", isActive),
			slog.Int("available_requests", available),
		)
		p.HealthCheck(ctx)
		return
	}

	created, err := p.store.CreateAccount(ctx, account)
	if err != nil {
		fabricationResponses.WithLabelValues("store_failed").Inc()
		p.logger.Error("Ошибка сохранения сфабрикованного аккаунта",
			slog.String("token", result.CorrelationID),
			slog.String("email", account.Email),
			slog.String("error", err.Error()),
		)
		p.HealthCheck(ctx)
		return
	}

	if err := p.queue.Put(created, created.Budget()); err != nil {
		p.logger.Warn("Сфабрикованный аккаунт не добавлен в очередь",
			slog.String("email", created.Email),
			slog.String("error", err.Error()),
		)
	}

	fabricationResponses.WithLabelValues("success").Inc()
	p.logger.Info("Сфабрикованный аккаунт добавлен в пул",
		slog.String("email", created.Email),
		slog.Int("available_requests", created.Budget()),
	)

	p.HealthCheck(ctx)
}

// HealthCheck — идемпотентная стабилизация пула: пересинхронизация с БД
// и запрос недостающих аккаунтов через фабрикацию. Никогда не возвращает
// ошибку; внутренние сбои логируются и исправляются следующим вызовом.
// Безопасен при конкурентных вызовах: повторные проходы вырождаются в
// no-op, так как расчёт спроса перечитывает живые счётчики.
func (p *AccountProvider) HealthCheck(ctx context.Context) {
	defer poolRemainingRequests.Set(float64(p.queue.Len()))

	// 1. Истёкшие токены освобождают слоты спроса
	expired, err := p.pending.RemoveExpired(ctx)
	if err != nil {
		p.logger.Warn("Ошибка очистки истёкших correlation-токенов",
			slog.String("error", err.Error()),
		)
	} else if len(expired) > 0 {
		p.logger.Info("Удалены истёкшие correlation-токены",
			slog.Int("count", len(expired)),
		)
	}

	loading := p.isLoading()

	// 2. Пул достаточно заполнен — с гистерезисом, чтобы не дёргать БД
	if !loading && p.queue.Len() >= p.cfg.RequestsCapacity-p.cfg.SyncInaccuracy {
		return
	}

	// 3. Пересинхронизация очереди минимальным покрывающим набором
	if !loading {
		p.reseedFromStore(ctx)
	}

	// 4. Набор из БД покрыл бюджет
	if p.queue.Len() >= p.cfg.RequestsCapacity {
		return
	}

	// 5. Спрос на новые аккаунты
	p.setLoading(true)

	accountsToRequest := int(math.Ceil(
		float64(p.cfg.RequestsCapacity-p.queue.Len()) / float64(p.cfg.RequestsPerAccount),
	))

	// Без точного числа незавершённых фабрикаций спрос не вычислить:
	// подстановка нуля привела бы к двойной фабрикации. Ждём следующего вызова.
	pendingCount, err := p.pending.CountAlive(ctx)
	if err != nil {
		p.logger.Warn("Ошибка подсчёта незавершённых фабрикаций",
			slog.String("error", err.Error()),
		)
		return
	}

	demand := accountsToRequest - pendingCount

	// 6. Спрос покрыт уже отправленными фабрикациями
	if demand <= 0 {
		if pendingCount == 0 {
			p.setLoading(false)
		}
		return
	}

	// 7. Лимит одновременных фабрикаций
	if pendingCount >= p.cfg.MaxPendingRequests {
		return
	}

	// 8. Отправляем недостающие запросы, не превышая лимит
	toSend := demand
	if slots := p.cfg.MaxPendingRequests - pendingCount; toSend > slots {
		toSend = slots
	}

	p.logger.Info("Запрос фабрикации новых аккаунтов",
		slog.Int("demand", demand),
		slog.Int("pending", pendingCount),
		slog.Int("to_send", toSend),
	)

	for i := 0; i < toSend; i++ {
		p.dispatchFabrication(ctx)
	}
}

// Shutdown отменяет и дожидается всех фоновых задач фабрикации.
// Незавершённые correlation-токены остаются в трекере и истекают по TTL.
func (p *AccountProvider) Shutdown() {
	p.tasksCancel()
	p.tasks.Wait()
	p.logger.Info("Пул аккаунтов остановлен")
}

// reseedFromStore заменяет содержимое очереди минимальным покрывающим
// набором активных аккаунтов из БД. Ошибка БД оставляет очередь как есть.
func (p *AccountProvider) reseedFromStore(ctx context.Context) {
	total, accounts, err := p.store.FetchMinimal(ctx, p.cfg.RequestsCapacity)
	if err != nil {
		p.logger.Error("Ошибка выборки аккаунтов из БД",
			slog.String("error", err.Error()),
		)
		return
	}

	p.queue.Flush()
	for _, account := range accounts {
		if err := p.queue.Put(account, account.Budget()); err != nil {
			p.logger.Warn("Аккаунт с нулевым бюджетом пропущен при пересинхронизации",
				slog.String("email", account.Email),
			)
		}
	}

	p.logger.Info("Очередь пересинхронизирована с БД",
		slog.Int("accounts", len(accounts)),
		slog.Int("total_budget", total),
	)
}

// dispatchFabrication регистрирует correlation-токен и публикует запрос
// фабрикации. Регистрация синхронная: расчёт спроса в следующем health check
// обязан увидеть токен в CountAlive, иначе два подряд вызова отправили бы
// двойную волну фабрикаций. В фоновую задачу уходит только публикация;
// сбой одной задачи не влияет на остальные.
func (p *AccountProvider) dispatchFabrication(ctx context.Context) {
	token := uuid.New().String()

	if err := p.pending.Add(ctx, token, p.cfg.TokenTTL); err != nil {
		p.logger.Error("Ошибка регистрации correlation-токена",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return
	}

	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()

		if err := p.producer.FabricateAccount(p.tasksCtx, token); err != nil {
			p.logger.Error("Ошибка публикации запроса фабрикации",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
			return
		}

		fabricationsDispatched.Inc()
		p.logger.Info("Запрос фабрикации отправлен", slog.String("token", token))
	}()
}

// isLoading сообщает, идёт ли волна фабрикации.
func (p *AccountProvider) isLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadingAccounts
}

// setLoading переключает признак волны фабрикации.
func (p *AccountProvider) setLoading(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadingAccounts = v
}
