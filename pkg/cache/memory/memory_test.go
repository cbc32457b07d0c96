package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	now = now.Add(59 * time.Minute)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestExpiredReadKeepsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var s *Store
	refresh := false
	s = New().WithClock(func() time.Time {
		if refresh {
			// Simulate a writer running between Get's read and its delete.
			refresh = false
			require.NoError(t, s.Set(ctx, "k", []byte("fresh"), time.Hour))
		}
		return now
	})

	require.NoError(t, s.Set(ctx, "k", []byte("stale"), time.Minute))
	now = now.Add(2 * time.Minute)

	refresh = true
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("fresh"), v)
}

func TestZeroTTLNotStored(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 0, s.Len())
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "a", []byte("1"), time.Minute)
	_ = s.Set(ctx, "b", []byte("2"), time.Minute)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}
