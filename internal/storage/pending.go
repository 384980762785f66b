// Пакет storage — внешнее TTL-хранилище correlation-токенов
// незавершённых фабрикаций на базе Redis sorted set.
//
// Токен — member множества, score — unix-время истечения
// (insertedAt + ttl). Живость оценивается лениво при чтении,
// активных таймеров нет: внешний worker может никогда не ответить,
// и токен просто истекает, освобождая слот спроса.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingStore — трекер correlation-токенов в Redis.
type PendingStore struct {
	client *redis.Client
	key    string
}

// NewPendingStore создаёт трекер над заданным ключом sorted set.
func NewPendingStore(client *redis.Client, key string) *PendingStore {
	return &PendingStore{client: client, key: key}
}

// Add регистрирует токен с временем жизни ttl.
func (s *PendingStore) Add(ctx context.Context, token string, ttl time.Duration) error {
	expireAt := float64(time.Now().Add(ttl).UnixMilli()) / 1000

	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  expireAt,
		Member: token,
	}).Err()
	if err != nil {
		return fmt.Errorf("ошибка регистрации токена в Redis: %w", err)
	}
	return nil
}

// Remove удаляет токен: его ответ обработан.
func (s *PendingStore) Remove(ctx context.Context, token string) error {
	if err := s.client.ZRem(ctx, s.key, token).Err(); err != nil {
		return fmt.Errorf("ошибка удаления токена из Redis: %w", err)
	}
	return nil
}

// RemoveExpired удаляет токены, чьё время жизни прошло, и возвращает их.
func (s *PendingStore) RemoveExpired(ctx context.Context) ([]string, error) {
	now := s.nowScore()

	expired, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истёкших токенов из Redis: %w", err)
	}

	if len(expired) == 0 {
		return nil, nil
	}

	if err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("ошибка удаления истёкших токенов из Redis: %w", err)
	}

	return expired, nil
}

// CountAlive возвращает число токенов, ещё не переживших свой TTL.
func (s *PendingStore) CountAlive(ctx context.Context) (int, error) {
	n, err := s.client.ZCount(ctx, s.key, s.nowScore(), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта живых токенов в Redis: %w", err)
	}
	return int(n), nil
}

// nowScore — текущее время в формате score для границ диапазонов.
func (s *PendingStore) nowScore() string {
	return strconv.FormatFloat(float64(time.Now().UnixMilli())/1000, 'f', 3, 64)
}
