package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender отправляет сообщение в очередь и возвращает его message id.
// Возврат без ошибки означает, что брокер принял сообщение.
type Sender interface {
	Send(ctx context.Context, queue string, body []byte) (string, error)
}

// Receiver получает до max сообщений, ожидая не дольше wait.
// Пустой результат без ошибки — нормальный исход пустого опроса.
type Receiver interface {
	Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]*Delivery, error)
}

// Queue объединяет отправку и получение.
type Queue interface {
	Sender
	Receiver
}

// Delivery — полученное сообщение с методами ack/nack.
//
// Пока сообщение не подтверждено, оно остаётся за получателем;
// Nack(true) возвращает его в очередь для повторной доставки.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// ID возвращает message id.
func (d *Delivery) ID() string {
	return d.Raw.MessageId
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}
