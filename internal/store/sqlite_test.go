package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbackops/kbsync/internal/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kbsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := types.PublishedRecord{
		Key:             "FB-1",
		DescendantCount: 4,
		Fingerprint:     types.Fingerprint("summary text"),
		Status:          types.StatusPublished,
		RemoteID:        "doc-17",
	}
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "FB-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.Equal(t, types.StatusPublished, got.Status)
	assert.Equal(t, "doc-17", got.RemoteID)
	assert.False(t, got.UpdatedAt.IsZero())

	// Upsert replaces prior state for the key.
	rec.Status = types.StatusFailed
	rec.DescendantCount = 5
	require.NoError(t, s.Upsert(ctx, rec))

	got, err = s.Get(ctx, "FB-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 5, got.DescendantCount)

	list, err := s.ListPublished(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLiteGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "FB-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpsertRejectsBadStatus(t *testing.T) {
	s := openTestStore(t)
	err := s.Upsert(context.Background(), types.PublishedRecord{Key: "FB-1", Status: "bogus"})
	assert.Error(t, err)
}

func TestSQLiteRemoveAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"FB-1", "FB-2", "FB-3"} {
		require.NoError(t, s.Upsert(ctx, types.PublishedRecord{Key: key, Status: types.StatusPublished}))
	}

	require.NoError(t, s.Remove(ctx, "FB-2"))
	require.NoError(t, s.Remove(ctx, "FB-2")) // removing a missing key is fine

	list, err := s.ListPublished(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.Purge(ctx))
	list, err = s.ListPublished(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteRunLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LastRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordRun(ctx, types.RunSummary{
		Mode: types.ModeInit, TargetSize: 10, Processed: 10, StartedAt: time.Now().UTC(), Duration: "3s",
	}))
	require.NoError(t, s.RecordRun(ctx, types.RunSummary{
		Mode: types.ModeUpdate, TargetSize: 10, Processed: 2, Failed: 1, StartedAt: time.Now().UTC(), Duration: "1s",
	}))

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ModeUpdate, last.Mode)
	assert.Equal(t, 1, last.Failed)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kbsync.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, types.PublishedRecord{Key: "FB-1", Status: types.StatusPublished}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(ctx, "FB-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, got.Status)
}
