package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// PlansExchange — topic-exchange для событий планов.
const PlansExchange = "plans"

// Ключи маршрутизации событий планов.
const (
	RoutingPlanCreated   = "plan.created"
	RoutingPlanCancelled = "plan.cancelled"
	RoutingPlanExpired   = "plan.expired"
)

// QueueConfig описывает очередь и шаблон привязки к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetPlanQueues возвращает очереди, которые объявляются при старте.
func GetPlanQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "plans.audit", RoutingKey: "plan.#"},
	}
}

// SetupChannel открывает канал, объявляет exchange планов и привязывает очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		PlansExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, PlansExchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
