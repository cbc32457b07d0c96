package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr(), Prefix: "giftrouter:llm:"})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestGetMiss(t *testing.T) {
	s, _ := newTestStore(t)
	v, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSetGetWithPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Set(ctx, "abc", []byte(`{"x":1}`), time.Hour))
	assert.True(t, mr.Exists("giftrouter:llm:abc"))

	v, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(v))
}

func TestServerSideExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Set(ctx, "abc", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearOnlyOwnNamespace(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, []byte("v"), time.Hour))
	}
	require.NoError(t, mr.Set("session:42", "keep"))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("giftrouter:llm:a"))
	assert.True(t, mr.Exists("session:42"))
}

func TestClearWithoutPrefixRefuses(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, mr.Set("session:42", "keep"))
	require.NoError(t, s.Set(ctx, "abc", []byte("v"), time.Hour))

	err := s.Clear(ctx)
	assert.ErrorIs(t, err, ErrNoPrefix)
	assert.True(t, mr.Exists("session:42"))
	assert.True(t, mr.Exists("abc"))
}

func TestUnreachable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, s.Ping(ctx))
	_, _, err := s.Get(ctx, "abc")
	assert.Error(t, err)
}
