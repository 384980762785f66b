package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// APIKeyProducer публикует запросы фабрикации аккаунтов.
// Публикация fire-and-forget: корреляция с ответом логическая,
// через токен в теле сообщения, а не через broker-level reply.
type APIKeyProducer struct {
	ch         *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewAPIKeyProducer объявляет топологию исходящего канала фабрикации
// и возвращает producer.
func NewAPIKeyProducer(ch *amqp.Channel, exchange, queue, routingKey string, logger *slog.Logger) (*APIKeyProducer, error) {
	if err := DeclareDirectBinding(ch, exchange, queue, routingKey, false); err != nil {
		return nil, err
	}

	return &APIKeyProducer{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With(slog.String("component", "apikey_producer")),
	}, nil
}

// fabricateRequest — тело запроса фабрикации.
type fabricateRequest struct {
	Event string `json:"event"`
	ID    string `json:"_id"`
}

// FabricateAccount публикует запрос фабрикации с correlation-токеном.
func (p *APIKeyProducer) FabricateAccount(ctx context.Context, token string) error {
	body, err := json.Marshal(fabricateRequest{
		Event: EventFabricateAccount,
		ID:    token,
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса фабрикации: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("ошибка публикации запроса фабрикации: %w", err)
	}

	p.logger.Debug("Запрос фабрикации опубликован", slog.String("token", token))
	return nil
}
