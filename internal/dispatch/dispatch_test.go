package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/repo/memory"
)

func testWorkers() domain.WorkerSet {
	return domain.NewWorkerSet(
		domain.Worker{Name: "a", Queue: "work.a", Bucket: "out"},
		domain.Worker{Name: "b", Queue: "work.b", Bucket: "out"},
	)
}

func newTestService(store repo.Store, queue mq.Sender) *Service {
	return New(Config{
		Store:   store,
		Sender:  queue,
		Workers: testWorkers(),
		NewID:   func() string { return "req-1" },
	})
}

func TestResolvePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"payload field", `{"payload":{"repo":"x"}}`, `{"repo":"x"}`},
		{"whole object", `{"repo":"x"}`, `{"repo":"x"}`},
		{"array", `[1,2]`, `[1,2]`},
		{"string payload", `{"payload":"scan me"}`, `"scan me"`},
		{"number", `7`, `7`},
		{"compacted", "{ \"payload\" : { \"a\" : 1 } }", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePayload([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResolvePayload_Rejects(t *testing.T) {
	for _, raw := range []string{
		``,
		`   `,
		`null`,
		`{}`,
		`{"payload":null}`,
		`{"payload":{}}`,
		`{"payload":""}`,
		`{"payload":"   "}`,
		`""`,
		`{"payload":`,
		`not json`,
	} {
		_, err := ResolvePayload([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidPayload, "raw=%q", raw)
	}
}

func TestDispatch_InvalidPayloadHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	queue := mq.NewMemoryQueue(time.Minute)
	svc := newTestService(store, queue)

	_, err := svc.Dispatch(ctx, []byte(`{"payload":{}}`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = store.Get(ctx, "req-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Equal(t, 0, queue.Len("work.a"))
	assert.Equal(t, 0, queue.Len("work.b"))
}

func TestDispatch_RecordsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	queue := mq.NewMemoryQueue(time.Minute)
	svc := newTestService(store, queue)

	res, err := svc.Dispatch(ctx, []byte(`{"payload":{"repo":"x","depth":3}}`))
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Len(t, res.MessageIDs, 2)
	assert.NotEmpty(t, res.MessageIDs["a"])
	assert.NotEmpty(t, res.MessageIDs["b"])

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.WorkerStatus{
		"a": domain.WorkerStatusInProgress,
		"b": domain.WorkerStatusInProgress,
	}, rec.Engine)
	assert.Equal(t, domain.FinalStatusPending, rec.FinalStatus)

	for _, q := range []string{"work.a", "work.b"} {
		bodies := queue.Bodies(q)
		require.Len(t, bodies, 1)
		env, err := domain.DecodeEnvelope(bodies[0])
		require.NoError(t, err)
		assert.Equal(t, "req-1", env.RequestID)
		assert.JSONEq(t, `{"repo":"x","depth":3}`, string(env.Payload))
	}
}

// recordingSender проверяет, что запись существует в момент отправки.
type recordingSender struct {
	store     repo.Store
	sawRecord bool
	failOn    string
}

func (s *recordingSender) Send(ctx context.Context, queue string, body []byte) (string, error) {
	if queue == s.failOn {
		return "", errors.New("broker unavailable")
	}
	_, err := s.store.Get(ctx, "req-1")
	s.sawRecord = err == nil
	return "m-" + queue, nil
}

func TestDispatch_RecordWrittenBeforeEnqueue(t *testing.T) {
	store := memory.New()
	sender := &recordingSender{store: store}
	svc := newTestService(store, sender)

	_, err := svc.Dispatch(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.True(t, sender.sawRecord)
}

func TestDispatch_PartialEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sender := &recordingSender{store: store, failOn: "work.b"}
	svc := newTestService(store, sender)

	_, err := svc.Dispatch(ctx, []byte(`{"a":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnqueue)

	// Запись не откатывается.
	_, err = store.Get(ctx, "req-1")
	assert.NoError(t, err)
}
