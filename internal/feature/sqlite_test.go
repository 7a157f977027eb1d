package feature

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopewatch/evac-cli/internal/geo"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "features.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_MissThenHit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	feats := []Feature{
		{Location: geo.Point{Lat: 10.1, Lng: 76.2}, Kind: KindWater},
		{Location: geo.Point{Lat: 10.2, Lng: 76.3}, Kind: KindCliff},
	}
	require.NoError(t, s.Put(ctx, "10.10:76.20:5", feats))

	got, ok, err := s.Get(ctx, "10.10:76.20:5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, feats, got)
}

func TestSQLiteStore_EmptyResultIsCached(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// A confirmed empty area is still a useful cache entry.
	require.NoError(t, s.Put(ctx, "k", nil))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []Feature{{Kind: KindWater}}))
	require.NoError(t, s.Put(ctx, "k", []Feature{{Kind: KindQuarry}}))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, KindQuarry, got[0].Kind)
}

func TestSQLiteStore_Prune(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "fresh", nil))
	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
