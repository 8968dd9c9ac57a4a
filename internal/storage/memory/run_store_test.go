package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chunkgen/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.StartRun(ctx, id, "world", 9, start))
	require.NoError(t, s.StartRun(ctx, id, "other", 1, start.Add(time.Hour)))

	rec, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "world", rec.Region)
	require.Equal(t, store.RunRunning, rec.Status)
	require.Nil(t, rec.FinishedAt)

	require.NoError(t, s.UpdateProgress(ctx, id, store.RunProgress{Completed: 4, Failed: 1, Pass: 1, At: start.Add(time.Second)}))
	rec, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(4), rec.Completed)
	require.Equal(t, start.Add(time.Second), rec.UpdatedAt)

	msg := "dispatch cell (1, 2): world unloaded"
	end := start.Add(time.Minute)
	require.NoError(t, s.FinishRun(ctx, id, store.RunError, store.RunProgress{Completed: 5, Failed: 1, Pass: 2, At: end}, &msg))
	msg = "mutated"

	rec, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunError, rec.Status)
	require.Equal(t, 2, rec.Pass)
	require.NotNil(t, rec.FinishedAt)
	require.Equal(t, end, *rec.FinishedAt)
	require.Equal(t, "dispatch cell (1, 2): world unloaded", *rec.ErrorMessage)

	// Late progress after a terminal status is ignored.
	require.NoError(t, s.UpdateProgress(ctx, id, store.RunProgress{Completed: 9}))
	rec, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(5), rec.Completed)
}

func TestRunStoreErrors(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	missing := uuid.New()

	_, err := s.GetRun(ctx, missing)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.UpdateProgress(ctx, missing, store.RunProgress{}), store.ErrNotFound)
	require.ErrorIs(t, s.FinishRun(ctx, missing, store.RunDone, store.RunProgress{}, nil), store.ErrNotFound)
	require.Error(t, s.FinishRun(ctx, missing, store.RunRunning, store.RunProgress{}, nil))
	require.Error(t, s.FinishRun(ctx, missing, "bogus", store.RunProgress{}, nil))
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, s.StartRun(ctx, ids[i], "world", 1, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, s.FinishRun(ctx, ids[1], store.RunDone, store.RunProgress{Completed: 1, At: base}, nil))

	all, err := s.ListRuns(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, ids[3], all[0].ID)
	require.Equal(t, ids[0], all[3].ID)

	page, err := s.ListRuns(ctx, nil, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{ids[2], ids[1]}, []uuid.UUID{page[0].ID, page[1].ID})

	done := store.RunDone
	filtered, err := s.ListRuns(ctx, &done, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, ids[1], filtered[0].ID)

	empty, err := s.ListRuns(ctx, nil, 10, 50)
	require.NoError(t, err)
	require.Empty(t, empty)
}
