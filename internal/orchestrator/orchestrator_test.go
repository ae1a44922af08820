package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/repo/memory"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type mergerFixture struct {
	store  *memory.Store
	blobs  *blob.MemoryStore
	queue  *mq.MemoryQueue
	merger *Merger
}

func newMergerFixture(t *testing.T) *mergerFixture {
	t.Helper()
	f := &mergerFixture{
		store: memory.New(),
		blobs: blob.NewMemoryStore(),
		queue: mq.NewMemoryQueue(time.Minute),
	}
	f.merger = New(Config{
		Store:        f.store,
		Blobs:        f.blobs,
		Receiver:     f.queue,
		Queue:        testMergeQueue,
		Workers:      testWorkers(),
		MergedBucket: "merged",
		PollWait:     time.Millisecond,
		Now:          func() time.Time { return fixedNow },
	})
	return f
}

// seedMerging создаёт запись в MERGING с результатами обоих воркеров.
func (f *mergerFixture) seedMerging(t *testing.T, requestID string) {
	t.Helper()
	ctx := context.Background()
	createRecord(t, f.store, requestID, "a", "b")
	for _, name := range []string{"a", "b"} {
		out := `{"requestId":"` + requestID + `","payload":{"serviceName":"` + name + `"}}`
		require.NoError(t, f.blobs.Put(ctx, "out", name+"/"+requestID+".json", []byte(out)))
	}
	require.NoError(t, f.store.Update(ctx, requestID,
		repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{}))
}

func TestMerger_MergesAndFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	f.seedMerging(t, "r1")

	outcome, err := f.merger.Merge(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeMerged, outcome)

	rec, err := f.store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalStatusDone, rec.FinalStatus)
	assert.Equal(t, "r1.json", rec.MergedKey)
	require.NotNil(t, rec.MergedAt)
	assert.Equal(t, fixedNow, *rec.MergedAt)

	data, err := f.blobs.Get(ctx, "merged", "r1.json")
	require.NoError(t, err)
	var doc domain.MergedDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "r1", doc.RequestID)
	require.Len(t, doc.Items, 2)
	assert.JSONEq(t, `{"requestId":"r1","payload":{"serviceName":"a"}}`, string(doc.Items[0]))
	assert.JSONEq(t, `{"requestId":"r1","payload":{"serviceName":"b"}}`, string(doc.Items[1]))
}

func TestMerger_IdempotentFinalize(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	f.seedMerging(t, "r1")

	_, err := f.merger.Merge(ctx, "r1")
	require.NoError(t, err)
	first, err := f.blobs.Get(ctx, "merged", "r1.json")
	require.NoError(t, err)

	gets := f.blobs.Gets()
	outcome, err := f.merger.Merge(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeAlreadyDone, outcome)
	assert.Equal(t, gets, f.blobs.Gets(), "no blob reads for an already merged request")

	second, err := f.blobs.Get(ctx, "merged", "r1.json")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// racingStore финализирует запись "другим" слиянием перед нашей финализацией.
type racingStore struct {
	*memory.Store
	winnerAt time.Time
	raced    bool
}

func (s *racingStore) Update(ctx context.Context, id string, upd repo.Update, cond repo.Condition) error {
	if !s.raced && upd.FinalStatus == domain.FinalStatusDone {
		s.raced = true
		err := s.Store.Update(ctx, id,
			repo.Update{FinalStatus: domain.FinalStatusDone, MergedKey: domain.MergedKey(id), MergedAt: &s.winnerAt},
			repo.Condition{FinalStatus: domain.FinalStatusMerging})
		if err != nil {
			return err
		}
	}
	return s.Store.Update(ctx, id, upd, cond)
}

func TestMerger_LostFinalizeKeepsDocumentInSync(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	f.seedMerging(t, "r1")

	winnerAt := fixedNow.Add(-time.Second)
	store := &racingStore{Store: f.store, winnerAt: winnerAt}
	merger := New(Config{
		Store:        store,
		Blobs:        f.blobs,
		Receiver:     f.queue,
		Queue:        testMergeQueue,
		Workers:      testWorkers(),
		MergedBucket: "merged",
		Now:          func() time.Time { return fixedNow },
	})

	outcome, err := merger.Merge(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeAlreadyDone, outcome)

	rec, err := f.store.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec.MergedAt)
	assert.True(t, winnerAt.Equal(*rec.MergedAt))

	data, err := f.blobs.Get(ctx, "merged", "r1.json")
	require.NoError(t, err)
	var doc domain.MergedDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.True(t, winnerAt.Equal(doc.MergedAt), "document mergedAt %s, record %s", doc.MergedAt, winnerAt)
	assert.Len(t, doc.Items, 2)
}

func TestMerger_PendingIsStale(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	createRecord(t, f.store, "r1", "a", "b")

	outcome, err := f.merger.Merge(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeStale, outcome)
	assert.Empty(t, f.blobs.Keys("merged"))
}

func TestMerger_MissingOutputFails(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	createRecord(t, f.store, "r1", "a")
	require.NoError(t, f.store.Update(ctx, "r1",
		repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{}))

	_, err := f.merger.Merge(ctx, "r1")
	assert.ErrorIs(t, err, ErrMissingOutput)
	assert.Empty(t, f.blobs.Keys("merged"), "no partial merge")

	rec, err := f.store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalStatusMerging, rec.FinalStatus)
}

func TestMerger_MissingBlobFails(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	createRecord(t, f.store, "r1", "a", "b")
	require.NoError(t, f.store.Update(ctx, "r1",
		repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{}))

	_, err := f.merger.Merge(ctx, "r1")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestMerger_OrderIndependence(t *testing.T) {
	ctx := context.Background()

	build := func(order []string) []byte {
		f := newMergerFixture(t)
		createRecord(t, f.store, "r1")
		for _, name := range order {
			key := name + "/r1.json"
			out := `{"requestId":"r1","payload":{"serviceName":"` + name + `"}}`
			require.NoError(t, f.blobs.Put(ctx, "out", key, []byte(out)))
			require.NoError(t, f.store.Update(ctx, "r1", repo.Update{
				Engine:  map[string]domain.WorkerStatus{name: domain.WorkerStatusDone},
				Outputs: map[string]string{name: key},
			}, repo.Condition{HasWorkers: []string{name}}))
		}
		require.NoError(t, f.store.Update(ctx, "r1",
			repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{}))

		_, err := f.merger.Merge(ctx, "r1")
		require.NoError(t, err)
		data, err := f.blobs.Get(ctx, "merged", "r1.json")
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, build([]string{"a", "b"}), build([]string{"b", "a"}))
}

func TestMerger_PollOnceAcksAndNacks(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	f.seedMerging(t, "r1")

	_, err := f.queue.Send(ctx, testMergeQueue, []byte(`{"requestId":"r1"}`))
	require.NoError(t, err)
	_, err = f.queue.Send(ctx, testMergeQueue, []byte(`{"requestId":"  "}`))
	require.NoError(t, err)
	_, err = f.queue.Send(ctx, testMergeQueue, []byte(`garbage`))
	require.NoError(t, err)

	n, err := f.merger.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Валидный trigger подтверждён, пустой requestId остался в очереди,
	// нераспознанное сообщение ушло в DLQ.
	bodies := f.queue.Bodies(testMergeQueue)
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"requestId":"  "}`, string(bodies[0]))
	assert.Equal(t, 1, f.queue.DeadLetters())

	rec, err := f.store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalStatusDone, rec.FinalStatus)
}

func TestMerger_FailedMergeIsRedelivered(t *testing.T) {
	ctx := context.Background()
	f := newMergerFixture(t)
	createRecord(t, f.store, "r1", "a")
	require.NoError(t, f.store.Update(ctx, "r1",
		repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{}))

	_, err := f.queue.Send(ctx, testMergeQueue, []byte(`{"requestId":"r1"}`))
	require.NoError(t, err)

	_, err = f.merger.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.Len(testMergeQueue))
	assert.Equal(t, 0, f.queue.DeadLetters())
}

func TestMerger_StartStop(t *testing.T) {
	f := newMergerFixture(t)
	f.merger.idleSleep = 5 * time.Millisecond
	f.seedMerging(t, "r1")

	_, err := f.queue.Send(context.Background(), testMergeQueue, []byte(`{"requestId":"r1"}`))
	require.NoError(t, err)

	require.NoError(t, f.merger.Start(context.Background()))
	assert.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), "r1")
		return err == nil && rec.FinalStatus == domain.FinalStatusDone
	}, 2*time.Second, 5*time.Millisecond)

	f.merger.Stop()
	assert.True(t, f.merger.IsStopped())
}

func TestBuildMergedDocument_RejectsInvalidOutput(t *testing.T) {
	_, err := BuildMergedDocument("r1", [][]byte{[]byte(`{"ok":true}`), []byte(`{`)}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidOutput)
}
