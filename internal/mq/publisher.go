package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует сообщения в RabbitMQ.
//
// Канал публикации работает в режиме publisher confirms:
// Send возвращается только после подтверждения брокером.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

var _ Sender = (*Publisher)(nil)

// Send публикует тело в очередь queue через ExchangeWork.
func (p *Publisher) Send(ctx context.Context, queue string, body []byte) (string, error) {
	id := uuid.NewString()

	err := p.conn.WithPublishChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			ExchangeWork, // exchange
			queue,        // routing key
			true,         // mandatory: без привязанной очереди сообщение вернётся
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    id,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeWork, queue, err)
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm for %s: %w", queue, err)
		}
		if !acked {
			return fmt.Errorf("broker rejected message for %s", queue)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	p.logger.Debug("published message",
		"exchange", ExchangeWork,
		"queue", queue,
		"message_id", id,
	)

	return id, nil
}
