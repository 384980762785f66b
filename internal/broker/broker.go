// Пакет broker — транспорт RabbitMQ: подключение, объявление топологии
// и канал фабрикации аккаунтов (исходящие запросы, входящие ответы).
package broker

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// События канала фабрикации.
const (
	// EventFabricateAccount — исходящий запрос фабрикации аккаунта.
	EventFabricateAccount = "fabricate_account"
	// EventAccountResponse — входящий ответ внешнего worker'а.
	EventAccountResponse = "account_response"
)

// Статусы ответа фабрикации.
const (
	StatusNotFound   = "not_found"
	StatusForbidden  = "forbidden"
	StatusProcessing = "processing"
	StatusRejected   = "rejected"
	StatusReady      = "ready"
)

// Connect устанавливает соединение с RabbitMQ.
func Connect(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	logger.Info("Подключение к RabbitMQ установлено")
	return conn, nil
}

// DeclareDirectBinding объявляет direct exchange, очередь с единственным
// активным потребителем и связывает их routing key.
func DeclareDirectBinding(ch *amqp.Channel, exchange, queue, routingKey string, durableQueue bool) error {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeDirect,
		false, // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("ошибка объявления exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		durableQueue,
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-single-active-consumer": true},
	); err != nil {
		return fmt.Errorf("ошибка объявления очереди %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("ошибка привязки очереди %s к %s: %w", queue, exchange, err)
	}

	return nil
}
