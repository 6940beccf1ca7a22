package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytuploader/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(id string, row int, account string, created time.Time) *core.Run {
	return &core.Run{
		ID:        id,
		RowIndex:  row,
		Account:   account,
		Title:     "clip " + id,
		Trigger:   core.TriggerSchedule,
		Status:    core.RunStatusProcessing,
		StartedAt: created,
		CreatedAt: created,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)

	var mode string
	require.NoError(t, s.DB.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	started := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	run := newRun("r1", 2, "main", started)
	require.NoError(t, s.InsertRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusProcessing, got.Status)
	assert.Nil(t, got.EndedAt)
	assert.Nil(t, got.VideoURL)
	assert.True(t, started.Equal(got.StartedAt))

	url := "https://youtu.be/abc"
	ended := started.Add(3 * time.Minute)
	require.NoError(t, s.CompleteRun(ctx, "r1", core.RunStatusDone, 2, ended, &url, nil))

	got, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusDone, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.VideoURL)
	assert.Equal(t, url, *got.VideoURL)
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.CompleteRun(ctx, "missing", core.RunStatusFailed, 1, ended, nil, nil), ErrRunNotFound)
}

func TestListRunsFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, account := range []string{"a", "b", "a"} {
		run := newRun(string(rune('1'+i)), i+2, account, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.InsertRun(ctx, run))
	}
	require.NoError(t, s.CompleteRun(ctx, "1", core.RunStatusFailed, 3, base, nil, nil))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)

	byAccount, err := s.ListRuns(ctx, RunFilter{Account: "a"})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	failed, err := s.ListRuns(ctx, RunFilter{Status: core.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "1", failed[0].ID)

	page, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2", page[0].ID)
}

func TestMarkAbandoned(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertRun(ctx, newRun("done", 2, "a", base)))
	require.NoError(t, s.CompleteRun(ctx, "done", core.RunStatusDone, 1, base, nil, nil))
	require.NoError(t, s.InsertRun(ctx, newRun("stale", 3, "a", base.Add(time.Hour))))

	stale, err := s.MarkAbandoned(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, 3, stale[0].RowIndex)

	got, err := s.GetRun(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusAbandoned, got.Status)
	require.NotNil(t, got.Error)

	stale, err = s.MarkAbandoned(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestPruneRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertRun(ctx, newRun(string(rune('a'+i)), i+2, "a", base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := s.PruneRuns(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	left, err := s.ListRuns(ctx, RunFilter{Limit: -1})
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "e", left[0].ID)
	assert.Equal(t, "d", left[1].ID)
}

func TestTouchAccount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t1 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	require.NoError(t, s.TouchAccount(ctx, "b", core.RunStatusDone, t1))
	require.NoError(t, s.TouchAccount(ctx, "a", core.RunStatusFailed, t1))
	require.NoError(t, s.TouchAccount(ctx, "b", core.RunStatusDone, t2))
	require.NoError(t, s.TouchAccount(ctx, "b", core.RunStatusFailed, t2))

	usage, err := s.ListAccountUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "a", usage[0].Name)
	assert.Equal(t, 1, usage[0].UploadsFailed)
	assert.Equal(t, "b", usage[1].Name)
	assert.Equal(t, 2, usage[1].UploadsDone)
	assert.Equal(t, 1, usage[1].UploadsFailed)
	require.NotNil(t, usage[1].LastUsedAt)
	assert.True(t, t2.Equal(*usage[1].LastUsedAt))
}

func TestStoreSatisfiesRunRecorder(t *testing.T) {
	var _ core.RunRecorder = openTestStore(t)
}
