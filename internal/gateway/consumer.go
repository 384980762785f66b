package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/domainguard/gateway/internal/broker"
)

// Prometheus-метрики RPC-канала.
var gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "domain_guard_gateway_requests_total",
	Help: "Общее количество RPC-запросов анализа по исходам.",
}, []string{"outcome"})

// replyPublisher — часть AMQP-канала, нужная для публикации ответов.
type replyPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer принимает RPC-запросы анализа и публикует ответы в reply-очередь
// запросившего. Запросы без reply_to или correlation_id отбрасываются:
// ответить на них некуда.
type Consumer struct {
	ch       *amqp.Channel
	pub      replyPublisher
	queue    string
	analyzer Analyzer
	logger   *slog.Logger

	tasks sync.WaitGroup
}

// NewConsumer объявляет топологию RPC-канала и возвращает consumer.
func NewConsumer(ch *amqp.Channel, exchange, queue, routingKey string, analyzer Analyzer, logger *slog.Logger) (*Consumer, error) {
	if err := broker.DeclareDirectBinding(ch, exchange, queue, routingKey, true); err != nil {
		return nil, err
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return nil, err
	}

	return &Consumer{
		ch:       ch,
		pub:      ch,
		queue:    queue,
		analyzer: analyzer,
		logger:   logger.With(slog.String("component", "gateway_consumer")),
	}, nil
}

// Consume читает запросы до отмены контекста или закрытия канала.
// Каждый запрос обрабатывается в отдельной горутине: анализ делает
// несколько HTTP-запросов и не должен блокировать очередь.
func (c *Consumer) Consume(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("Приём RPC-запросов анализа запущен", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.tasks.Wait()
			c.logger.Info("Приём RPC-запросов анализа остановлен")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				c.tasks.Wait()
				c.logger.Info("Канал RPC-запросов закрыт")
				return nil
			}
			c.tasks.Add(1)
			go func(d amqp.Delivery) {
				defer c.tasks.Done()
				c.handle(ctx, d)
			}(delivery)
		}
	}
}

// handle валидирует, анализирует и отвечает на один запрос.
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	defer delivery.Ack(false) //nolint:errcheck // запросивший повторит по своему таймауту

	if delivery.ReplyTo == "" || delivery.CorrelationId == "" {
		gatewayRequestsTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn("Запрос без reply_to или correlation_id отброшен")
		return
	}

	domain, reason := parseAnalyzeRequest(delivery.Body)
	if domain == "" {
		gatewayRequestsTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn("Запрос отброшен", slog.String("reason", reason))
		return
	}

	summary, err := c.analyzer.Analyze(ctx, domain)
	if err != nil {
		c.logger.Warn("Ошибка анализа домена",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		gatewayRequestsTotal.WithLabelValues("error").Inc()
	} else {
		gatewayRequestsTotal.WithLabelValues("ok").Inc()
	}

	body, err := buildReply(summary, err)
	if err != nil {
		c.logger.Error("Ошибка сериализации ответа", slog.String("error", err.Error()))
		return
	}

	// Ответ уходит через default exchange напрямую в reply-очередь
	pubErr := c.pub.PublishWithContext(ctx,
		"",
		delivery.ReplyTo,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: delivery.CorrelationId,
			DeliveryMode:  amqp.Transient,
			Body:          body,
		},
	)
	if pubErr != nil {
		c.logger.Error("Ошибка публикации ответа",
			slog.String("reply_to", delivery.ReplyTo),
			slog.String("error", pubErr.Error()),
		)
	}
}
