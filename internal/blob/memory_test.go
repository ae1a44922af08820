package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "out", "a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "out", "a.json", []byte(`{"v":1}`)))
	require.NoError(t, s.Put(ctx, "out", "a.json", []byte(`{"v":2}`)))

	data, err := s.Get(ctx, "out", "a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
	assert.Equal(t, 2, s.Gets())

	_, err = s.Get(ctx, "other", "a.json")
	assert.ErrorIs(t, err, ErrNotFound, "buckets are isolated")
}

func TestMemoryStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "out", "b/2.json", nil))
	require.NoError(t, s.Put(ctx, "out", "a/1.json", nil))
	require.NoError(t, s.Put(ctx, "merged", "r.json", nil))

	assert.Equal(t, []string{"a/1.json", "b/2.json"}, s.Keys("out"))
	assert.Equal(t, []string{"r.json"}, s.Keys("merged"))
}
