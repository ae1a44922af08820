package mq

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultVisibilityTimeout — через сколько неподтверждённое сообщение
// снова становится доступным в MemoryQueue.
const DefaultVisibilityTimeout = 30 * time.Second

// ErrUnknownDelivery — ack/nack по неизвестному delivery tag.
var ErrUnknownDelivery = errors.New("unknown delivery tag")

// MemoryQueue — in-memory очередь для тестов и локального запуска.
//
// Семантика at-least-once: полученное сообщение невидимо для других
// получателей до Ack, Nack или истечения visibility timeout.
// Реализует amqp.Acknowledger, поэтому Delivery одинаков для обеих реализаций.
type MemoryQueue struct {
	mu         sync.Mutex
	queues     map[string][]*memMessage
	inflight   map[uint64]*memMessage
	dead       []*memMessage
	nextTag    uint64
	visibility time.Duration
	now        func() time.Time

	sendErr error
}

type memMessage struct {
	queue      string
	id         string
	body       []byte
	visibleAt  time.Time
	deliveries int
	tag        uint64
}

// NewMemoryQueue создаёт пустую очередь.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &MemoryQueue{
		queues:     make(map[string][]*memMessage),
		inflight:   make(map[uint64]*memMessage),
		visibility: visibility,
		now:        time.Now,
	}
}

var (
	_ Queue             = (*MemoryQueue)(nil)
	_ amqp.Acknowledger = (*MemoryQueue)(nil)
)

// SetSendError заставляет Send возвращать err (nil — снять).
func (q *MemoryQueue) SetSendError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendErr = err
}

// Send кладёт копию тела в очередь.
func (q *MemoryQueue) Send(ctx context.Context, queue string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sendErr != nil {
		return "", q.sendErr
	}

	msg := &memMessage{
		queue: queue,
		id:    uuid.NewString(),
		body:  slices.Clone(body),
	}
	q.queues[queue] = append(q.queues[queue], msg)
	return msg.id, nil
}

// Receive забирает до max видимых сообщений, ожидая не дольше wait.
func (q *MemoryQueue) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]*Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if out := q.take(queue, max); len(out) > 0 || !time.Now().Before(deadline) {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(10*time.Millisecond, time.Until(deadline))):
		}
	}
}

// take выдаёт видимые сообщения и делает их невидимыми на visibility.
func (q *MemoryQueue) take(queue string, max int) []*Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*Delivery
	for _, msg := range q.queues[queue] {
		if len(out) >= max {
			break
		}
		if msg.visibleAt.After(now) {
			continue
		}
		if msg.tag != 0 {
			// Истёк visibility timeout: старый tag больше недействителен.
			delete(q.inflight, msg.tag)
		}

		q.nextTag++
		msg.tag = q.nextTag
		msg.deliveries++
		msg.visibleAt = now.Add(q.visibility)
		q.inflight[msg.tag] = msg

		out = append(out, &Delivery{Raw: amqp.Delivery{
			Acknowledger: q,
			DeliveryTag:  msg.tag,
			MessageId:    msg.id,
			ContentType:  "application/json",
			Redelivered:  msg.deliveries > 1,
			RoutingKey:   queue,
			Exchange:     ExchangeWork,
			Body:         slices.Clone(msg.body),
		}})
	}
	return out
}

// Ack удаляет сообщение из очереди.
func (q *MemoryQueue) Ack(tag uint64, multiple bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.inflight[tag]
	if !ok {
		return ErrUnknownDelivery
	}
	q.remove(msg)
	return nil
}

// Nack возвращает сообщение в очередь (requeue) или переносит в dead letters.
func (q *MemoryQueue) Nack(tag uint64, multiple bool, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.inflight[tag]
	if !ok {
		return ErrUnknownDelivery
	}
	if requeue {
		delete(q.inflight, tag)
		msg.tag = 0
		msg.visibleAt = time.Time{}
		return nil
	}
	q.remove(msg)
	q.dead = append(q.dead, msg)
	return nil
}

// Reject эквивалентен Nack для одного сообщения.
func (q *MemoryQueue) Reject(tag uint64, requeue bool) error {
	return q.Nack(tag, false, requeue)
}

// remove удаляет сообщение из очереди и из in-flight. Вызывается под mu.
func (q *MemoryQueue) remove(msg *memMessage) {
	delete(q.inflight, msg.tag)
	q.queues[msg.queue] = slices.DeleteFunc(q.queues[msg.queue], func(m *memMessage) bool {
		return m == msg
	})
}

// Len возвращает число сообщений в очереди, включая невидимые.
func (q *MemoryQueue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue])
}

// Bodies возвращает тела всех сообщений очереди в порядке отправки.
func (q *MemoryQueue) Bodies(queue string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, 0, len(q.queues[queue]))
	for _, msg := range q.queues[queue] {
		out = append(out, slices.Clone(msg.body))
	}
	return out
}

// DeadLetters возвращает число сообщений, отклонённых без requeue.
func (q *MemoryQueue) DeadLetters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}
