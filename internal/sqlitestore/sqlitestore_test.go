package sqlitestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avinash-1994/Nexxo-sub001/store"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := DefaultPath(t.TempDir())
	s, err := Open(path)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("export const x = 1;\n"), 500)
	require.NoError(t, s.Set(ctx, store.InputKey("src/a.ts", "h1"), big))
	require.NoError(t, s.BatchSet(ctx, []store.Entry{
		{Key: "graph:abc", Value: []byte("{}")},
		{Key: "plan:def", Value: nil},
	}))

	got, ok, err := s.Get(ctx, store.InputKey("src/a.ts", "h1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, got)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	var compressed int
	require.NoError(t, s.db.QueryRow("SELECT length(value) FROM artifacts WHERE key = ?", store.InputKey("src/a.ts", "h1")).Scan(&compressed))
	assert.Less(t, compressed, len(big), "values are stored compressed")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Entries)
	assert.Equal(t, int64(len(big)+2), stats.Bytes)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	require.NoError(t, s.Close())

	// values survive a reopen
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "graph:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("{}"), v)
}
