package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-stt-go/internal/manifest"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/types"
)

func TestEnqueueEntries(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	st, db, err := store.Open(filepath.Join(t.TempDir(), "cli.db"), entry)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := context.Background()
	user := uuid.New()

	existing := &types.Interview{CreatorID: user, Name: "existing", AudioLocation: "/data/e.mp3"}
	require.NoError(t, st.CreateInterview(ctx, existing))

	q := queue.NewMemory(8)
	queued, skipped := enqueueEntries(ctx, st, q, []manifest.Entry{
		{Row: 2, UserID: user, InterviewID: existing.ID},
		{Row: 3, UserID: user, AudioLocation: "/data/focus_group.mp3"},
		{Row: 4, UserID: user, InterviewID: uuid.New()},
	}, entry)

	assert.Equal(t, 2, queued)
	require.Len(t, skipped, 1)
	assert.Equal(t, 4, skipped[0].Row)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, first.Task.InterviewID)
	assert.Equal(t, "/data/e.mp3", first.Task.AudioLocation)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	created, err := st.GetInterview(ctx, user, second.Task.InterviewID)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "focus_group", created.Name)
	assert.Equal(t, types.StatusUploaded, created.Status)
}

func TestEnqueueEntriesRemovesCreatedInterviewWhenQueueFails(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	st, db, err := store.Open(filepath.Join(t.TempDir(), "cli.db"), entry)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := context.Background()
	user := uuid.New()

	existing := &types.Interview{CreatorID: user, Name: "existing", AudioLocation: "/data/e.mp3"}
	require.NoError(t, st.CreateInterview(ctx, existing))

	q := queue.NewMemory(8)
	require.NoError(t, q.Close())
	queued, skipped := enqueueEntries(ctx, st, q, []manifest.Entry{
		{Row: 2, UserID: user, InterviewID: existing.ID},
		{Row: 3, UserID: user, AudioLocation: "/data/focus_group.mp3"},
	}, entry)

	assert.Zero(t, queued)
	assert.Len(t, skipped, 2)

	list, err := st.ListInterviews(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, existing.ID, list[0].ID)
}
