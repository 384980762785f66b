package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/domainguard/gateway/internal/domain/model"
	"github.com/domainguard/gateway/internal/securitytrails"
)

// ErrInvalidDomain — строка не является корневым доменом вида example.com.
var ErrInvalidDomain = errors.New("некорректный корневой домен")

// Prometheus-метрики анализа.
var analyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "domain_guard_analyze_duration_seconds",
	Help:    "Длительность полного анализа домена",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s … ~51s
})

// AccountSource — операции пула аккаунтов, нужные анализу.
type AccountSource interface {
	// Get выдаёт аккаунт с ненулевым бюджетом.
	Get(ctx context.Context) (*model.Account, error)
	// ExpireAccount перепроверяет аккаунт, оказавшийся неработоспособным.
	ExpireAccount(ctx context.Context, account *model.Account) (*model.Account, error)
}

// DNSClient — часть клиента SecurityTrails, нужная анализу.
type DNSClient interface {
	GetDomain(ctx context.Context, domain, apiKey string) (securitytrails.Status, *securitytrails.DomainData, error)
	GetSubdomains(ctx context.Context, domain, apiKey string) (securitytrails.Status, *securitytrails.SubdomainData, error)
	GetHistoryDNS(ctx context.Context, domain string, recordType model.RecordType, apiKey string) (securitytrails.Status, *securitytrails.HistoryData, error)
}

// AnalyzeService собирает сводку по домену: текущие DNS-записи,
// историческая таблица по всем поддерживаемым типам и список поддоменов.
type AnalyzeService struct {
	client      DNSClient
	provider    AccountSource
	cache       *CacheService
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewAnalyzeService создаёт сервис анализа доменов.
func NewAnalyzeService(
	client DNSClient,
	provider AccountSource,
	cache *CacheService,
	maxAttempts int,
	retryDelay time.Duration,
	logger *slog.Logger,
) *AnalyzeService {
	return &AnalyzeService{
		client:      client,
		provider:    provider,
		cache:       cache,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger.With(slog.String("component", "analyze")),
	}
}

// Analyze возвращает сводку по корневому домену. Если провайдер не дал
// сведений о базовом домене, возвращается пустая сводка. Успешные сводки
// кэшируются на TTL кэша.
func (s *AnalyzeService) Analyze(ctx context.Context, domain string) (*model.DomainSummary, error) {
	if !model.IsRootDomain(domain) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDomain, domain)
	}

	if cached, ok := s.cache.Get(domain); ok {
		return cached, nil
	}

	start := time.Now()
	defer func() {
		analyzeDuration.Observe(time.Since(start).Seconds())
	}()

	status, data, err := fetchWithRetry(ctx, s, func(ctx context.Context, apiKey string) (securitytrails.Status, *securitytrails.DomainData, error) {
		return s.client.GetDomain(ctx, domain, apiKey)
	})
	if err != nil {
		return nil, fmt.Errorf("запрос сведений о домене: %w", err)
	}
	if status != securitytrails.StatusFetched || data == nil {
		s.logger.Info("Сведения о домене недоступны",
			slog.String("domain", domain),
			slog.String("status", status.String()),
		)
		return &model.DomainSummary{Hostname: domain, Subdomains: []string{}}, nil
	}

	current := mapCurrentDNS(data)

	// Поддомены и шесть типов исторических записей запрашиваются конкурентно
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		subdomains = []string{}
		history    = make(map[model.RecordType]*securitytrails.HistoryData, len(model.SupportedRecordTypes))
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		list := s.fetchSubdomains(ctx, domain)
		mu.Lock()
		subdomains = list
		mu.Unlock()
	}()

	for _, recordType := range model.SupportedRecordTypes {
		wg.Add(1)
		go func(rt model.RecordType) {
			defer wg.Done()
			data := s.fetchHistory(ctx, domain, rt)
			mu.Lock()
			history[rt] = data
			mu.Unlock()
		}(recordType)
	}

	wg.Wait()

	summary := &model.DomainSummary{
		Hostname:   domain,
		Current:    current,
		History:    mapHistoryDNS(history),
		Subdomains: subdomains,
	}

	s.cache.Set(domain, summary)
	return summary, nil
}

// fetchSubdomains возвращает список поддоменов; при любом сбое — пустой список.
func (s *AnalyzeService) fetchSubdomains(ctx context.Context, domain string) []string {
	status, data, err := fetchWithRetry(ctx, s, func(ctx context.Context, apiKey string) (securitytrails.Status, *securitytrails.SubdomainData, error) {
		return s.client.GetSubdomains(ctx, domain, apiKey)
	})
	if err != nil {
		s.logger.Warn("Ошибка запроса поддоменов",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		return []string{}
	}
	if status != securitytrails.StatusFetched || data == nil {
		return []string{}
	}
	return data.Subdomains
}

// fetchHistory возвращает историю записей одного типа; при сбое — nil.
func (s *AnalyzeService) fetchHistory(ctx context.Context, domain string, recordType model.RecordType) *securitytrails.HistoryData {
	status, data, err := fetchWithRetry(ctx, s, func(ctx context.Context, apiKey string) (securitytrails.Status, *securitytrails.HistoryData, error) {
		return s.client.GetHistoryDNS(ctx, domain, recordType, apiKey)
	})
	if err != nil {
		s.logger.Warn("Ошибка запроса истории записей",
			slog.String("domain", domain),
			slog.String("record_type", string(recordType)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if status != securitytrails.StatusFetched {
		return nil
	}
	return data
}

// fetchWithRetry выполняет запрос к провайдеру с аккаунтом из пула.
// Исчерпанный или отозванный ключ отправляется на перепроверку,
// после паузы запрос повторяется с новым аккаунтом, не более maxAttempts раз.
func fetchWithRetry[T any](
	ctx context.Context,
	s *AnalyzeService,
	call func(ctx context.Context, apiKey string) (securitytrails.Status, *T, error),
) (securitytrails.Status, *T, error) {
	account, err := s.provider.Get(ctx)
	if err != nil {
		return securitytrails.StatusUndefined, nil, err
	}

	status, data, err := call(ctx, account.APIKey)

	for attempts := 0; attempts < s.maxAttempts && err == nil && isBadKeyStatus(status); attempts++ {
		s.logger.Warn("Неработоспособный api-ключ",
			slog.String("status", status.String()),
			slog.String("email", account.Email),
		)

		if _, expErr := s.provider.ExpireAccount(ctx, account); expErr != nil {
			s.logger.Warn("Ошибка перепроверки аккаунта",
				slog.String("email", account.Email),
				slog.String("error", expErr.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return securitytrails.StatusUndefined, nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}

		account, err = s.provider.Get(ctx)
		if err != nil {
			return securitytrails.StatusUndefined, nil, err
		}
		status, data, err = call(ctx, account.APIKey)
	}

	return status, data, err
}

// isBadKeyStatus — статусы, требующие замены аккаунта.
func isBadKeyStatus(status securitytrails.Status) bool {
	return status == securitytrails.StatusAPIKeyExhausted ||
		status == securitytrails.StatusUnauthorized
}
