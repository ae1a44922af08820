package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена обменников и DLQ.
const (
	// ExchangeWork — direct-обменник для всех рабочих очередей.
	// Routing key совпадает с именем очереди.
	ExchangeWork = "gather.work"

	// ExchangeDLQ — обменник для dead-letter сообщений.
	ExchangeDLQ = "gather.dlq"

	// QueueDLQ — очередь для сообщений, исчерпавших лимит доставок.
	QueueDLQ = "dlq.work"

	// RoutingKeyDLQ — routing key для dead-letter сообщений.
	RoutingKeyDLQ = "work"
)

// DefaultDeliveryLimit — сколько раз сообщение доставляется до ухода в DLQ.
const DefaultDeliveryLimit = 10

// Topology — описание очередей Gather.
type Topology struct {
	// Queues — рабочие очереди: входные очереди воркеров и очередь слияния.
	Queues []string

	// DeliveryLimit — x-delivery-limit quorum-очередей.
	DeliveryLimit int
}

// queueArgs возвращает аргументы рабочей очереди.
//
// Quorum-очередь считает доставки сама: после DeliveryLimit
// повторов (nack с requeue) сообщение уходит в DLQ.
func (t Topology) queueArgs() amqp.Table {
	limit := t.DeliveryLimit
	if limit <= 0 {
		limit = DefaultDeliveryLimit
	}
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int32(limit),
		"x-dead-letter-exchange":    ExchangeDLQ,
		"x-dead-letter-routing-key": RoutingKeyDLQ,
	}
}

// Setup объявляет обменники, очереди и привязки.
// Операция идемпотентна и повторяется после каждого reconnect.
func (t Topology) Setup(ctx context.Context, conn *Connection) error {
	return conn.WithPublishChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Обменники
		for _, name := range []string{ExchangeWork, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				name,     // name
				"direct", // type
				true,     // durable
				false,    // auto-deleted
				false,    // internal
				false,    // no-wait
				nil,      // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", name, err)
			}
		}

		// 2. DLQ
		if _, err := ch.QueueDeclare(QueueDLQ, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueDLQ, err)
		}
		if err := ch.QueueBind(QueueDLQ, RoutingKeyDLQ, ExchangeDLQ, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueDLQ, ExchangeDLQ, err)
		}

		// 3. Рабочие очереди
		args := t.queueArgs()
		for _, q := range t.Queues {
			if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q, err)
			}
			if err := ch.QueueBind(q, q, ExchangeWork, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q, ExchangeWork, err)
			}
		}

		return nil
	})
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder
	b.WriteString("Gather RabbitMQ topology:\n")
	fmt.Fprintf(&b, "  %s (direct)\n", ExchangeWork)
	for _, q := range t.Queues {
		fmt.Fprintf(&b, "  ├── %s [routing: %s, DLQ: %s]\n", q, q, QueueDLQ)
	}
	fmt.Fprintf(&b, "  %s (direct)\n", ExchangeDLQ)
	fmt.Fprintf(&b, "  └── %s [routing: %s]\n", QueueDLQ, RoutingKeyDLQ)
	return b.String()
}
