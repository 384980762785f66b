// Пакет pool — пул переиспользуемых аккаунтов SecurityTrails.
// ReusableQueue — очередь с ограниченным числом выдач каждого элемента;
// AccountProvider — менеджер пула с алгоритмом пополнения через фабрикацию.
package pool

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidBudget — неположительный бюджет выдач при добавлении в очередь.
var ErrInvalidBudget = errors.New("бюджет выдач должен быть больше нуля")

// itemTracking — учёт выдач одного элемента очереди.
type itemTracking struct {
	// budget — сколько раз элемент можно выдать
	budget int
	// retrievals — сколько раз элемент уже выдан
	retrievals int
	// expired — элемент помечен истёкшим (ленивое удаление при следующем Get)
	expired bool
}

// ReusableQueue — FIFO-очередь переиспользуемых элементов.
// Каждый элемент выдаётся ограниченное число раз, после чего покидает очередь.
// Идентичность элемента определяется функцией keyFn.
type ReusableQueue[T any] struct {
	keyFn func(T) string

	mu        sync.Mutex
	items     []T
	tracking  map[string]*itemTracking
	remaining int
	waiters   []chan struct{}
}

// NewReusableQueue создаёт очередь с функцией извлечения идентичности элемента.
func NewReusableQueue[T any](keyFn func(T) string) *ReusableQueue[T] {
	return &ReusableQueue[T]{
		keyFn:    keyFn,
		tracking: make(map[string]*itemTracking),
	}
}

// Put добавляет элемент в хвост очереди с бюджетом выдач expiresAfter.
// Счётчик оставшихся выдач очереди увеличивается на expiresAfter.
// Неположительный бюджет — ошибка ErrInvalidBudget, очередь не изменяется.
func (q *ReusableQueue[T]) Put(item T, expiresAfter int) error {
	if expiresAfter <= 0 {
		return ErrInvalidBudget
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracking[q.keyFn(item)] = &itemTracking{
		budget:     expiresAfter,
		retrievals: 0,
		expired:    false,
	}
	q.items = append(q.items, item)
	q.remaining += expiresAfter
	q.notifyLocked()

	return nil
}

// Get возвращает элемент из головы очереди, дожидаясь его появления.
// Истёкшие элементы отбрасываются и никогда не возвращаются.
// Элемент, не исчерпавший бюджет выдач, возвращается в хвост очереди;
// исчерпавший — выдаётся последний раз без возврата.
// Ожидающие вызовы обслуживаются в порядке поступления.
func (q *ReusableQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	for {
		q.mu.Lock()
		for len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			key := q.keyFn(item)

			track, ok := q.tracking[key]
			if !ok || track.expired {
				// Ленивое удаление: учёт уже снят в Expire, берём следующий элемент
				delete(q.tracking, key)
				continue
			}

			q.remaining--

			if track.retrievals >= track.budget {
				// Последняя выдача: элемент покидает очередь
				delete(q.tracking, key)
				q.mu.Unlock()
				return item, nil
			}

			track.retrievals++
			q.items = append(q.items, item)
			q.notifyLocked()
			q.mu.Unlock()
			return item, nil
		}

		// Очередь пуста — встаём в FIFO-очередь ожидания
		waiter := make(chan struct{}, 1)
		q.waiters = append(q.waiters, waiter)
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.abandonWaiter(waiter)
			return zero, ctx.Err()
		case <-waiter:
		}
	}
}

// Expire помечает элемент истёкшим без удаления из структуры очереди
// (удаление ленивое, при следующем Get) и снимает с общего счётчика
// ещё не израсходованные выдачи элемента.
func (q *ReusableQueue[T]) Expire(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := q.keyFn(item)
	track, ok := q.tracking[key]
	if !ok || track.expired {
		return
	}

	track.expired = true
	q.remaining -= track.budget - track.retrievals
}

// Flush атомарно очищает очередь: элементы, учёт выдач и счётчик.
// Используется перед полной пересинхронизацией с хранилищем.
func (q *ReusableQueue[T]) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.tracking = make(map[string]*itemTracking)
	q.remaining = 0
}

// Len возвращает суммарное число оставшихся выдач всех элементов очереди.
// Это мера доступного бюджета пула, а не количество различных элементов.
func (q *ReusableQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining
}

// notifyLocked будит первый ожидающий вызов Get. Вызывается под mu.
func (q *ReusableQueue[T]) notifyLocked() {
	if len(q.waiters) == 0 {
		return
	}
	waiter := q.waiters[0]
	q.waiters = q.waiters[1:]
	select {
	case waiter <- struct{}{}:
	default:
	}
}

// abandonWaiter удаляет отменённый вызов из очереди ожидания.
// Если сигнал уже был отправлен этому вызову — передаёт его следующему,
// чтобы пробуждение не потерялось.
func (q *ReusableQueue[T]) abandonWaiter(waiter chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.waiters {
		if w == waiter {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}

	select {
	case <-waiter:
		q.notifyLocked()
	default:
	}
}
