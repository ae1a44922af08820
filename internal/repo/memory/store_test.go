package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/repo"
)

func TestStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := domain.NewRecord("r1", []string{"a"}, time.Now())
	require.NoError(t, s.Create(ctx, rec))
	assert.ErrorIs(t, s.Create(ctx, rec), repo.ErrAlreadyExists)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusInProgress, got.Engine["a"])

	// Изменение копии не влияет на хранилище.
	got.Engine["a"] = domain.WorkerStatusDone
	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStatusInProgress, again.Engine["a"])

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStore_UpdateConditions(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, domain.NewRecord("r1", []string{"a"}, time.Now())))

	err := s.Update(ctx, "missing", repo.Update{FinalStatus: domain.FinalStatusMerging}, repo.Condition{})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	err = s.Update(ctx, "r1",
		repo.Update{Engine: map[string]domain.WorkerStatus{"x": domain.WorkerStatusDone}},
		repo.Condition{HasWorkers: []string{"x"}})
	assert.ErrorIs(t, err, repo.ErrConditionFailed)

	err = s.Update(ctx, "r1",
		repo.Update{FinalStatus: domain.FinalStatusMerging},
		repo.Condition{FinalStatus: domain.FinalStatusPending, WorkersDone: []string{"a"}})
	assert.ErrorIs(t, err, repo.ErrConditionFailed)

	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.NotContains(t, rec.Engine, "x")
	assert.Equal(t, domain.FinalStatusPending, rec.FinalStatus)
}

func TestStore_ConcurrentCASHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := domain.NewRecord("r1", []string{"a", "b"}, time.Now())
	rec.Engine["a"] = domain.WorkerStatusDone
	rec.Engine["b"] = domain.WorkerStatusDone
	require.NoError(t, s.Create(ctx, rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "r1",
				repo.Update{FinalStatus: domain.FinalStatusMerging},
				repo.Condition{FinalStatus: domain.FinalStatusPending, WorkersDone: []string{"a", "b"}})
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, repo.ErrConditionFailed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_ListStale(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.SetClock(func() time.Time { return base })

	require.NoError(t, s.Create(ctx, domain.NewRecord("old", []string{"a"}, base.Add(-time.Hour))))
	require.NoError(t, s.Create(ctx, domain.NewRecord("fresh", []string{"a"}, base)))

	before := base.Add(-30 * time.Minute)
	stale, err := s.ListStale(ctx, repo.StaleFilter{Status: domain.FinalStatusPending, Before: before, Limit: 10})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].RequestID)

	stale, err = s.ListStale(ctx, repo.StaleFilter{Status: domain.FinalStatusMerging, Before: base.Add(time.Hour), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStore_ListStale_WorkersDoneSkipsUnfinished(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	workers := []string{"a", "b"}
	s := New()

	// Старые записи с незавершённым воркером b
	for i, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.Create(ctx, domain.NewRecord(id, workers, base.Add(-time.Hour+time.Duration(i)*time.Minute))))
	}
	s.SetClock(func() time.Time { return base.Add(-30 * time.Minute) })
	require.NoError(t, s.Create(ctx, domain.NewRecord("ready", workers, base.Add(-30*time.Minute))))
	require.NoError(t, s.Update(ctx, "ready",
		repo.Update{Engine: map[string]domain.WorkerStatus{"a": domain.WorkerStatusDone, "b": domain.WorkerStatusDone}},
		repo.Condition{}))

	before := base.Add(-10 * time.Minute)
	ready, err := s.ListStale(ctx, repo.StaleFilter{Status: domain.FinalStatusPending, Before: before, WorkersDone: workers, Limit: 2})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "ready", ready[0].RequestID)

	unfinished := repo.StaleFilter{Status: domain.FinalStatusPending, Before: before, WorkersDone: workers, Unfinished: true, Limit: 2}
	list, err := s.ListStale(ctx, unfinished)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := s.CountStale(ctx, unfinished)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
