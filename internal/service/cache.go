// Пакет service — бизнес-логика шлюза: верификация api-ключей,
// анализ доменов и кэш результатов.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/domainguard/gateway/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "domain_guard_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш сводок анализа.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "domain_guard_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша сводок анализа.",
	})
)

// CacheService — LRU-кэш сводок анализа доменов с автоматическим TTL.
// Повторный запрос того же домена в пределах TTL не тратит бюджет ключей.
type CacheService struct {
	cache *expirable.LRU[string, *model.DomainSummary]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.DomainSummary](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает сводку из кэша по имени домена.
func (c *CacheService) Get(domain string) (*model.DomainSummary, bool) {
	val, ok := c.cache.Get(domain)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет сводку в кэше.
func (c *CacheService) Set(domain string, summary *model.DomainSummary) {
	c.cache.Add(domain, summary)
}
