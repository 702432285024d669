package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	v, found, err := s.Get(context.Background(), "processLogs")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "processLogs", "first"))
	require.NoError(t, s.Set(ctx, "processLogs", "second"))

	v, found, err := s.Get(ctx, "processLogs")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", v)
}

func TestReopenKeepsValues(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "aiTrialToken", "tok"))
	require.NoError(t, s.Close())

	s, err = New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	v, found, err := s.Get(ctx, "aiTrialToken")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tok", v)
}
