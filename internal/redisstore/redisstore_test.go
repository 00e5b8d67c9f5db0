package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avinash-1994/Nexxo-sub001/store"
)

func setupTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	opts.URL = fmt.Sprintf("redis://%s", mr.Addr())
	s, err := New(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, mr
}

func TestNew(t *testing.T) {
	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := New(Options{URL: fmt.Sprintf("redis://%s", addr), ConnectTimeout: 200 * time.Millisecond})
		require.Error(t, err)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := New(Options{URL: "://nope"})
		require.Error(t, err)
	})
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, Options{})

	key := store.InputKey("src/a.ts", "abc")
	require.NoError(t, s.Set(ctx, key, []byte("compiled")))
	assert.True(t, mr.Exists("nexxo:"+key), "keys are prefixed")

	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("compiled"), v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchSetAndStats(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, Options{Prefix: "build:", TTL: time.Minute})

	require.NoError(t, s.BatchSet(ctx, []store.Entry{
		{Key: "graph:1", Value: []byte("aa")},
		{Key: "plan:2", Value: []byte("bbb")},
	}))
	require.NoError(t, s.BatchSet(ctx, nil))
	require.NoError(t, mr.Set("other:key", "not ours"))

	assert.Equal(t, time.Minute, mr.TTL("build:graph:1"))

	_, _, _ = s.Get(ctx, "graph:1")
	_, _, _ = s.Get(ctx, "nope")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Entries: 2, Bytes: 5, Hits: 1, Misses: 1}, stats)
}
