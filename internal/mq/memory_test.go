package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SendReceiveAck(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)

	id, err := q.Send(ctx, "work.a", []byte(`{"requestId":"r1"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := q.Receive(ctx, "work.a", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID())
	assert.JSONEq(t, `{"requestId":"r1"}`, string(got[0].Body()))
	assert.False(t, got[0].Raw.Redelivered)

	// Пока сообщение не подтверждено, оно невидимо.
	again, err := q.Receive(ctx, "work.a", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, got[0].Ack())
	assert.Equal(t, 0, q.Len("work.a"))
	assert.ErrorIs(t, got[0].Ack(), ErrUnknownDelivery)
}

func TestMemoryQueue_NackRequeue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	_, err := q.Send(ctx, "work.a", []byte(`1`))
	require.NoError(t, err)

	got, err := q.Receive(ctx, "work.a", 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, got[0].Nack(true))

	redelivered, err := q.Receive(ctx, "work.a", 1, 0)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.True(t, redelivered[0].Raw.Redelivered)
	assert.Equal(t, got[0].ID(), redelivered[0].ID())

	require.NoError(t, redelivered[0].Nack(false))
	assert.Equal(t, 0, q.Len("work.a"))
	assert.Equal(t, 1, q.DeadLetters())
}

func TestMemoryQueue_VisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.Send(ctx, "work.a", []byte(`1`))
	require.NoError(t, err)

	first, err := q.Receive(ctx, "work.a", 1, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	now = now.Add(2 * time.Minute)
	second, err := q.Receive(ctx, "work.a", 1, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)

	// Старый tag после истечения timeout недействителен.
	assert.ErrorIs(t, first[0].Ack(), ErrUnknownDelivery)
	require.NoError(t, second[0].Ack())
}

func TestMemoryQueue_ReceiveRespectsMax(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	for i := 0; i < 5; i++ {
		_, err := q.Send(ctx, "work.a", []byte(`{}`))
		require.NoError(t, err)
	}

	got, err := q.Receive(ctx, "work.a", 3, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMemoryQueue_ReceiveWaitsAndCancels(t *testing.T) {
	q := NewMemoryQueue(time.Minute)

	start := time.Now()
	got, err := q.Receive(context.Background(), "empty", 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Receive(ctx, "empty", 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_SendError(t *testing.T) {
	q := NewMemoryQueue(0)
	boom := errors.New("broker down")
	q.SetSendError(boom)

	_, err := q.Send(context.Background(), "work.a", []byte(`{}`))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, q.Len("work.a"))

	q.SetSendError(nil)
	_, err = q.Send(context.Background(), "work.a", []byte(`{}`))
	assert.NoError(t, err)
}

func TestTopology_QueueArgs(t *testing.T) {
	args := Topology{Queues: []string{"work.a"}}.queueArgs()
	assert.Equal(t, amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int32(DefaultDeliveryLimit),
		"x-dead-letter-exchange":    ExchangeDLQ,
		"x-dead-letter-routing-key": RoutingKeyDLQ,
	}, args)

	args = Topology{DeliveryLimit: 3}.queueArgs()
	assert.Equal(t, int32(3), args["x-delivery-limit"])
}

func TestTopology_Info(t *testing.T) {
	info := Topology{Queues: []string{"work.a", "merge.trigger"}}.Info()
	assert.Contains(t, info, "work.a")
	assert.Contains(t, info, "merge.trigger")
	assert.Contains(t, info, QueueDLQ)
}
