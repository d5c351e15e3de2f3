package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRecordAndGetJob(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	rec := JobRecord{
		ID:            "job-1",
		Filename:      "dance.gif",
		Caption:       "SALE",
		Status:        StatusSucceeded,
		Frames:        3,
		TrackedFrames: 2,
		LostFrames:    1,
		Detected:      true,
		ElapsedMS:     420,
		CreatedAt:     time.UnixMilli(1_700_000_000_123),
	}
	require.NoError(t, s.RecordJob(ctx, rec))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.Caption, got.Caption)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.Frames, got.Frames)
	assert.Equal(t, rec.TrackedFrames, got.TrackedFrames)
	assert.Equal(t, rec.LostFrames, got.LostFrames)
	assert.True(t, got.Detected)
	assert.Equal(t, rec.ElapsedMS, got.ElapsedMS)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListJobsNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordJob(ctx, JobRecord{
			ID: id, Filename: id + ".gif", Caption: "x", Status: StatusFailed,
			Error: "boom", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "boom", all[0].Error)

	two, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRecordJobReplacesAndDefaultsTime(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordJob(ctx, JobRecord{ID: "j", Filename: "f.gif", Caption: "c", Status: StatusFailed}))
	require.NoError(t, s.RecordJob(ctx, JobRecord{ID: "j", Filename: "f.gif", Caption: "c", Status: StatusSucceeded}))

	got, err := s.GetJob(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)

	all, err := s.ListJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReopenKeepsData(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.RecordJob(context.Background(), JobRecord{ID: "keep", Filename: "f", Caption: "c", Status: StatusSucceeded}))
	require.NoError(t, s.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	_, err = again.GetJob(context.Background(), "keep")
	assert.NoError(t, err)
}
