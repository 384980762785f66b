package broker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/domainguard/gateway/internal/pool"
)

// ResponseHandler — получатель декодированных ответов фабрикации.
type ResponseHandler interface {
	OnFabricationResponse(ctx context.Context, result *pool.FabricationResult)
}

// APIKeyConsumer читает ответы фабрикации из очереди.
// Невалидные сообщения логируются и отбрасываются: consume-цикл
// не прерывается ни при каком содержимом сообщения.
type APIKeyConsumer struct {
	ch      *amqp.Channel
	queue   string
	handler ResponseHandler
	logger  *slog.Logger
}

// NewAPIKeyConsumer объявляет топологию входящего канала фабрикации
// и возвращает consumer.
func NewAPIKeyConsumer(ch *amqp.Channel, exchange, queue, routingKey string, handler ResponseHandler, logger *slog.Logger) (*APIKeyConsumer, error) {
	if err := DeclareDirectBinding(ch, exchange, queue, routingKey, true); err != nil {
		return nil, err
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return nil, err
	}

	return &APIKeyConsumer{
		ch:      ch,
		queue:   queue,
		handler: handler,
		logger:  logger.With(slog.String("component", "apikey_consumer")),
	}, nil
}

// Consume читает сообщения до отмены контекста или закрытия канала.
func (c *APIKeyConsumer) Consume(ctx context.Context) error {
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

	c.logger.Info("Приём ответов фабрикации запущен", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Приём ответов фабрикации остановлен")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Info("Канал ответов фабрикации закрыт")
				return nil
			}
			c.handle(ctx, delivery)
		}
	}
}

// handle валидирует и обрабатывает одно сообщение.
func (c *APIKeyConsumer) handle(ctx context.Context, delivery amqp.Delivery) {
	defer delivery.Ack(false) //nolint:errcheck // переотправка обрабатывается TTL токена

	req, reason := validateRequest(delivery.Body)
	if req == nil {
		c.logger.Warn("Сообщение отброшено", slog.String("reason", reason))
		return
	}

	switch req.event {
	case EventAccountResponse:
		result := mapAccountResponse(req.id, req.data)
		c.handler.OnFabricationResponse(ctx, result)
	default:
		c.logger.Warn("Неожиданное событие", slog.String("event", req.event))
	}
}
