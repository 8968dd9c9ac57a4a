package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chunkgen/internal/store"
)

var runColumnNames = []string{
	"id", "region", "status", "total", "completed", "failed", "pass",
	"started_at", "updated_at", "finished_at", "error_message",
}

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return s, mock
}

func TestNewRunStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE runs")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(nil, "runs")
	require.Error(t, err)
}

func TestRunStoreStartRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(id, "world", "running", int64(9), start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), id, "world", 9, start))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreUpdateProgress(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	at := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE runs SET completed").
		WithArgs(int64(4), int64(1), 1, at, id, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateProgress(context.Background(), id, store.RunProgress{Completed: 4, Failed: 1, Pass: 1, At: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreFinishRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	at := time.Unix(1700000200, 0).UTC()
	msg := "boom"

	mock.ExpectExec("UPDATE runs SET status").
		WithArgs("error", int64(2), int64(1), 2, at, &msg, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs SET status").
		WithArgs("done", int64(0), int64(0), 1, at, (*string)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, s.FinishRun(ctx, id, store.RunError, store.RunProgress{Completed: 2, Failed: 1, Pass: 2, At: at}, &msg))
	err := s.FinishRun(ctx, id, store.RunDone, store.RunProgress{Pass: 1, At: at}, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Error(t, s.FinishRun(ctx, id, store.RunRunning, store.RunProgress{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(time.Minute)

	mock.ExpectQuery("SELECT id, region, status").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumnNames).
			AddRow(id.String(), "world", "done", int64(9), int64(9), int64(0), 2, start, end, &end, (*string)(nil)))

	rec, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.Equal(t, store.RunDone, rec.Status)
	require.Equal(t, int64(9), rec.Completed)
	require.Equal(t, 2, rec.Pass)
	require.NotNil(t, rec.FinishedAt)
	require.Equal(t, end, *rec.FinishedAt)
	require.Nil(t, rec.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, region, status").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	a, b := uuid.New(), uuid.New()
	stopped := store.RunStopped
	filter := "stopped"

	mock.ExpectQuery("SELECT id, region, status").
		WithArgs(&filter, 10, 0).
		WillReturnRows(pgxmock.NewRows(runColumnNames).
			AddRow(a.String(), "world", "stopped", int64(9), int64(2), int64(0), 1, start.Add(time.Hour), start.Add(time.Hour), (*time.Time)(nil), (*string)(nil)).
			AddRow(b.String(), "nether", "stopped", int64(4), int64(1), int64(1), 1, start, start, (*time.Time)(nil), (*string)(nil)))

	runs, err := s.ListRuns(context.Background(), &stopped, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, a, runs[0].ID)
	require.Equal(t, "nether", runs[1].Region)
	require.Equal(t, store.RunStopped, runs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunsQueryError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, region, status").
		WithArgs(pgxmock.AnyArg(), 5, 5).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListRuns(context.Background(), nil, 5, 5)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}
