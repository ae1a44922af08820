package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// defaultEmptyPollInterval — пауза между пустыми basic.get внутри окна ожидания.
const defaultEmptyPollInterval = 250 * time.Millisecond

// Consumer получает сообщения из очередей RabbitMQ пачками (basic.get).
//
// В отличие от push-подписки, опрос даёт воркеру явный контроль
// над размером пачки и временем ожидания.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	interval time.Duration
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// EmptyPollInterval — пауза между пустыми basic.get.
	EmptyPollInterval time.Duration
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.EmptyPollInterval
	if interval <= 0 {
		interval = defaultEmptyPollInterval
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		interval: interval,
	}
}

var _ Receiver = (*Consumer)(nil)

// Receive забирает до max сообщений из очереди, ожидая не дольше wait.
// Возвращается сразу, как только получено хотя бы одно сообщение
// и очередь опустела, или набрано max.
func (c *Consumer) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]*Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)

	var out []*Delivery
	for {
		raw, ok, err := c.get(ctx, queue)
		if err != nil {
			// Уже полученные сообщения возвращаем в очередь.
			for _, d := range out {
				_ = d.Nack(true)
			}
			return nil, err
		}

		if ok {
			c.logger.Debug("received message",
				"queue", queue,
				"message_id", raw.MessageId,
				"redelivered", raw.Redelivered,
			)
			out = append(out, &Delivery{Raw: raw})
			if len(out) >= max {
				return out, nil
			}
			continue
		}

		if len(out) > 0 || !time.Now().Before(deadline) {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(min(c.interval, time.Until(deadline))):
		}
	}
}

// get выполняет один basic.get без auto-ack.
func (c *Consumer) get(ctx context.Context, queue string) (amqp.Delivery, bool, error) {
	var (
		raw amqp.Delivery
		ok  bool
	)
	err := c.conn.WithGetChannel(ctx, func(ch *amqp.Channel) error {
		var err error
		raw, ok, err = ch.Get(queue, false)
		if err != nil {
			return fmt.Errorf("get from %s: %w", queue, err)
		}
		return nil
	})
	return raw, ok, err
}
