package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPayload_Normalizes(t *testing.T) {
	a, err := HashPayload([]byte(`{"b":1,"a":[1,2]}`))
	require.NoError(t, err)
	b, err := HashPayload([]byte(" { \"a\" : [1, 2], \"b\" : 1 } "))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := HashPayload([]byte(`{"a":[1,2],"b":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	big1, err := HashPayload([]byte(`{"n":9007199254740993}`))
	require.NoError(t, err)
	big2, err := HashPayload([]byte(`{"n":9007199254740992}`))
	require.NoError(t, err)
	assert.NotEqual(t, big1, big2, "large integers keep full precision")

	_, err = HashPayload([]byte(`{`))
	assert.Error(t, err)
}

func TestGuard_Flow(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(time.Hour))

	replay, err := g.Begin(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay, "first use reserves the key")

	_, err = g.Begin(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)

	_, err = g.Begin(ctx, "k1", "h2")
	assert.ErrorIs(t, err, ErrConflict)

	resp := json.RawMessage(`{"requestId":"r1"}`)
	require.NoError(t, g.Finish(ctx, "k1", "h1", resp))

	replay, err = g.Begin(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.JSONEq(t, string(resp), string(replay))

	_, err = g.Begin(ctx, "k1", "h2")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGuard_AbortReleasesKey(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(time.Hour))

	_, err := g.Begin(ctx, "k1", "h1")
	require.NoError(t, err)
	require.NoError(t, g.Abort(ctx, "k1"))

	replay, err := g.Begin(ctx, "k1", "h2")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, reserved, err := s.Reserve(ctx, "k", "h")
	require.NoError(t, err)
	assert.True(t, reserved)

	_, reserved, err = s.Reserve(ctx, "k", "h")
	require.NoError(t, err)
	assert.False(t, reserved)

	now = now.Add(2 * time.Minute)
	_, reserved, err = s.Reserve(ctx, "k", "other")
	require.NoError(t, err)
	assert.True(t, reserved, "expired key can be reserved again")
}
