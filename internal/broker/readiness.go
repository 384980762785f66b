package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// ReadinessChecker — проверка готовности RabbitMQ для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	conn *amqp.Connection
}

// NewReadinessChecker создаёт проверку готовности RabbitMQ.
func NewReadinessChecker(conn *amqp.Connection) *ReadinessChecker {
	return &ReadinessChecker{conn: conn}
}

// CheckReady проверяет состояние соединения с RabbitMQ.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	if c.conn == nil || c.conn.IsClosed() {
		return "fail", "соединение с RabbitMQ закрыто"
	}
	return "ok", "соединение активно"
}
