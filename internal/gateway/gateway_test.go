package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/domainguard/gateway/internal/domain/model"
	"github.com/domainguard/gateway/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	summary *model.DomainSummary
	err     error
	calls   []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, domain string) (*model.DomainSummary, error) {
	f.calls = append(f.calls, domain)
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type publishedReply struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	mu      sync.Mutex
	replies []publishedReply
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, publishedReply{exchange: exchange, key: key, msg: msg})
	return nil
}

func newTestConsumer(analyzer Analyzer, pub replyPublisher) *Consumer {
	return &Consumer{
		pub:      pub,
		analyzer: analyzer,
		logger:   testLogger(),
	}
}

func analyzeDelivery(body string) amqp.Delivery {
	return amqp.Delivery{
		Body:          []byte(body),
		ReplyTo:       "aggregator.res",
		CorrelationId: "corr-1",
	}
}

func TestParseAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDomain string
	}{
		{
			name:       "корректный запрос",
			body:       `{"event": "analyze_domain", "data": {"domain": "example.com"}}`,
			wantDomain: "example.com",
		},
		{name: "не JSON", body: `{{{`},
		{name: "неизвестное событие", body: `{"event": "other", "data": {"domain": "example.com"}}`},
		{name: "событие не строка", body: `{"event": 7, "data": {"domain": "example.com"}}`},
		{name: "нет data", body: `{"event": "analyze_domain"}`},
		{name: "data не объект", body: `{"event": "analyze_domain", "data": "example.com"}`},
		{name: "нет domain", body: `{"event": "analyze_domain", "data": {}}`},
		{name: "пустой domain", body: `{"event": "analyze_domain", "data": {"domain": ""}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, reason := parseAnalyzeRequest([]byte(tt.body))
			if domain != tt.wantDomain {
				t.Errorf("domain = %q, ожидается %q", domain, tt.wantDomain)
			}
			if tt.wantDomain == "" && reason == "" {
				t.Error("для невалидного запроса ожидается причина отбраковки")
			}
		})
	}
}

func TestHandle_RepliesWithSummary(t *testing.T) {
	analyzer := &fakeAnalyzer{summary: &model.DomainSummary{
		Hostname:   "example.com",
		Subdomains: []string{"www"},
	}}
	pub := &fakePublisher{}
	c := newTestConsumer(analyzer, pub)

	c.handle(context.Background(), analyzeDelivery(`{"event": "analyze_domain", "data": {"domain": "example.com"}}`))

	if len(pub.replies) != 1 {
		t.Fatalf("опубликовано ответов: %d, ожидается 1", len(pub.replies))
	}
	reply := pub.replies[0]
	if reply.exchange != "" || reply.key != "aggregator.res" {
		t.Errorf("ответ направлен в %q/%q, ожидается default exchange / aggregator.res",
			reply.exchange, reply.key)
	}
	if reply.msg.CorrelationId != "corr-1" {
		t.Errorf("correlation_id = %q, ожидается corr-1", reply.msg.CorrelationId)
	}

	var envelope analyzeReply
	if err := json.Unmarshal(reply.msg.Body, &envelope); err != nil {
		t.Fatalf("ошибка разбора тела ответа: %v", err)
	}
	if envelope.Status != statusOK || envelope.Data == nil || envelope.Data.Hostname != "example.com" {
		t.Errorf("неожиданный ответ: %+v", envelope)
	}
}

func TestHandle_InvalidDomainReportedInReply(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("%w: bad", service.ErrInvalidDomain)}
	pub := &fakePublisher{}
	c := newTestConsumer(analyzer, pub)

	c.handle(context.Background(), analyzeDelivery(`{"event": "analyze_domain", "data": {"domain": "bad"}}`))

	if len(pub.replies) != 1 {
		t.Fatalf("опубликовано ответов: %d, ожидается 1", len(pub.replies))
	}

	var envelope analyzeReply
	if err := json.Unmarshal(pub.replies[0].msg.Body, &envelope); err != nil {
		t.Fatalf("ошибка разбора тела ответа: %v", err)
	}
	if envelope.Status != statusError || !strings.Contains(envelope.Error, "домен") {
		t.Errorf("неожиданный ответ: %+v", envelope)
	}
}

func TestHandle_InternalErrorHidden(t *testing.T) {
	// Внутренняя ошибка не раскрывается запросившему
	analyzer := &fakeAnalyzer{err: errors.New("пул недоступен")}
	pub := &fakePublisher{}
	c := newTestConsumer(analyzer, pub)

	c.handle(context.Background(), analyzeDelivery(`{"event": "analyze_domain", "data": {"domain": "example.com"}}`))

	var envelope analyzeReply
	if err := json.Unmarshal(pub.replies[0].msg.Body, &envelope); err != nil {
		t.Fatalf("ошибка разбора тела ответа: %v", err)
	}
	if envelope.Status != statusError || strings.Contains(envelope.Error, "пул") {
		t.Errorf("внутренняя ошибка просочилась в ответ: %+v", envelope)
	}
}

func TestHandle_DropsWithoutReplyMetadata(t *testing.T) {
	analyzer := &fakeAnalyzer{summary: &model.DomainSummary{Hostname: "example.com"}}
	pub := &fakePublisher{}
	c := newTestConsumer(analyzer, pub)

	d := analyzeDelivery(`{"event": "analyze_domain", "data": {"domain": "example.com"}}`)
	d.ReplyTo = ""
	c.handle(context.Background(), d)

	d = analyzeDelivery(`{"event": "analyze_domain", "data": {"domain": "example.com"}}`)
	d.CorrelationId = ""
	c.handle(context.Background(), d)

	if len(analyzer.calls) != 0 {
		t.Error("запрос без reply-метаданных не должен доходить до анализа")
	}
	if len(pub.replies) != 0 {
		t.Errorf("опубликовано ответов: %d, ожидается 0", len(pub.replies))
	}
}

func TestHandle_DropsMalformedBody(t *testing.T) {
	analyzer := &fakeAnalyzer{summary: &model.DomainSummary{Hostname: "example.com"}}
	pub := &fakePublisher{}
	c := newTestConsumer(analyzer, pub)

	c.handle(context.Background(), analyzeDelivery(`{"event": "other"}`))

	if len(analyzer.calls) != 0 || len(pub.replies) != 0 {
		t.Error("невалидное тело должно отбрасываться без ответа")
	}
}
