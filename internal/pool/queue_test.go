package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newStringQueue — очередь строк с тождественной идентичностью.
func newStringQueue() *ReusableQueue[string] {
	return NewReusableQueue(func(s string) string { return s })
}

func TestReusableQueue_PutAccumulatesBudget(t *testing.T) {
	q := newStringQueue()

	if err := q.Put("a", 3); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	if err := q.Put("b", 5); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	if got := q.Len(); got != 8 {
		t.Errorf("Len() = %d, ожидается 8 (сумма бюджетов)", got)
	}
}

func TestReusableQueue_InvalidBudget(t *testing.T) {
	q := newStringQueue()

	for _, budget := range []int{0, -1} {
		if err := q.Put("a", budget); !errors.Is(err, ErrInvalidBudget) {
			t.Errorf("Put с бюджетом %d: err = %v, ожидается ErrInvalidBudget", budget, err)
		}
	}

	// Очередь не должна измениться
	if got := q.Len(); got != 0 {
		t.Errorf("Len() после неудачных Put = %d, ожидается 0", got)
	}
}

func TestReusableQueue_GetDecrementsByOne(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	if err := q.Put("a", 3); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	for want := 2; want >= 0; want-- {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get вернул ошибку: %v", err)
		}
		if item != "a" {
			t.Fatalf("Get вернул %q, ожидается a", item)
		}
		if got := q.Len(); got != want {
			t.Errorf("Len() = %d, ожидается %d", got, want)
		}
	}
}

func TestReusableQueue_RoundRobinReuse(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	if err := q.Put("a", 2); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	if err := q.Put("b", 2); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	// Элементы чередуются: после выдачи элемент возвращается в хвост
	want := []string{"a", "b", "a", "b"}
	for i, expected := range want {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get #%d вернул ошибку: %v", i, err)
		}
		if item != expected {
			t.Errorf("Get #%d = %q, ожидается %q", i, item, expected)
		}
	}
}

func TestReusableQueue_ExpireRemovesRemaining(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	if err := q.Put("a", 5); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	if err := q.Put("b", 3); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	// Одна выдача a: retrievals=1
	if item, err := q.Get(ctx); err != nil || item != "a" {
		t.Fatalf("Get = (%q, %v), ожидается a", item, err)
	}

	lenBefore := q.Len()
	q.Expire("a")

	// Снимается неизрасходованная часть бюджета: 5 - 1 = 4
	if got := q.Len(); got != lenBefore-4 {
		t.Errorf("Len() после Expire = %d, ожидается %d", got, lenBefore-4)
	}

	// Истёкший элемент больше не выдаётся
	for i := 0; i < 3; i++ {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get вернул ошибку: %v", err)
		}
		if item == "a" {
			t.Fatal("Get вернул истёкший элемент")
		}
	}
}

func TestReusableQueue_ExpireUnknownIsNoop(t *testing.T) {
	q := newStringQueue()

	if err := q.Put("a", 2); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	q.Expire("unknown")
	if got := q.Len(); got != 2 {
		t.Errorf("Len() после Expire неизвестного элемента = %d, ожидается 2", got)
	}

	// Повторный Expire не снимает бюджет дважды
	q.Expire("a")
	q.Expire("a")
	if got := q.Len(); got != 0 {
		t.Errorf("Len() после двойного Expire = %d, ожидается 0", got)
	}
}

func TestReusableQueue_GetBlocksUntilPut(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		item, err := q.Get(ctx)
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- item
	}()

	// Get должен висеть, пока очередь пуста
	select {
	case got := <-done:
		t.Fatalf("Get вернул %q до появления элемента", got)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Put("a", 1); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	select {
	case got := <-done:
		if got != "a" {
			t.Errorf("Get = %q, ожидается a", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Get не проснулся после Put")
	}
}

func TestReusableQueue_GetCancelledByContext(t *testing.T) {
	q := newStringQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get с истёкшим контекстом: err = %v, ожидается DeadlineExceeded", err)
	}
}

func TestReusableQueue_Flush(t *testing.T) {
	q := newStringQueue()

	if err := q.Put("a", 3); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	if err := q.Put("b", 2); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	q.Flush()

	if got := q.Len(); got != 0 {
		t.Errorf("Len() после Flush = %d, ожидается 0", got)
	}

	// Очередь пригодна к повторному использованию
	if err := q.Put("c", 1); err != nil {
		t.Fatalf("Put после Flush вернул ошибку: %v", err)
	}
	item, err := q.Get(context.Background())
	if err != nil || item != "c" {
		t.Errorf("Get после Flush = (%q, %v), ожидается c", item, err)
	}
}

func TestReusableQueue_ExpiredSkippedInsideGet(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	if err := q.Put("a", 2); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	if err := q.Put("b", 1); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	q.Expire("a")
	lenAfterExpire := q.Len()

	// Голова очереди истекла: Get пропускает её и возвращает следующий элемент,
	// счётчик уменьшается ровно на одну выдачу b
	item, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get вернул ошибку: %v", err)
	}
	if item != "b" {
		t.Errorf("Get = %q, ожидается b", item)
	}
	if got := q.Len(); got != lenAfterExpire-1 {
		t.Errorf("Len() = %d, ожидается %d", got, lenAfterExpire-1)
	}
}

func TestReusableQueue_FIFOWaiters(t *testing.T) {
	q := newStringQueue()
	ctx := context.Background()

	first := make(chan string, 1)
	second := make(chan string, 1)

	go func() {
		item, _ := q.Get(ctx)
		first <- item
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		item, _ := q.Get(ctx)
		second <- item
	}()
	time.Sleep(20 * time.Millisecond)

	if err := q.Put("a", 1); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}

	// Первый ожидающий обслуживается первым
	select {
	case got := <-first:
		if got != "a" {
			t.Errorf("первый ожидающий получил %q, ожидается a", got)
		}
	case <-time.After(time.Second):
		t.Fatal("первый ожидающий не проснулся")
	}

	select {
	case got := <-second:
		t.Fatalf("второй ожидающий получил %q до появления второго элемента", got)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Put("b", 1); err != nil {
		t.Fatalf("Put вернул ошибку: %v", err)
	}
	select {
	case got := <-second:
		if got != "b" {
			t.Errorf("второй ожидающий получил %q, ожидается b", got)
		}
	case <-time.After(time.Second):
		t.Fatal("второй ожидающий не проснулся")
	}
}
