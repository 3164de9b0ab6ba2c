package imagequeue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/menu"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock, 3, 24*time.Hour, fixedClock{now: testNow}, zap.NewNop()), mock
}

func TestEnqueueInsertsNewItem(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT id, status, retry_count FROM image_queue`).
		WithArgs(int64(7), "https://x/img/p.jpg").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO image_queue`).
		WithArgs(int64(7), "https://x/img/p.jpg", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.Enqueue(context.Background(), 7, "https://x/img/p.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueReusesExistingPendingItem(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	// Same (dish, url) twice: the pending row is returned as is, no second
	// row and no update.
	mock.ExpectQuery(`SELECT id, status, retry_count FROM image_queue`).
		WithArgs(int64(7), "https://x/img/p.jpg").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "retry_count"}).
			AddRow(int64(42), "pending", 0))

	id, err := s.Enqueue(context.Background(), 7, "https://x/img/p.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRevivesRetriableFailedItem(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT id, status, retry_count FROM image_queue`).
		WithArgs(int64(7), "https://x/img/p.jpg").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "retry_count"}).
			AddRow(int64(42), "failed", 1))
	mock.ExpectExec(`UPDATE image_queue`).
		WithArgs("pending", int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := s.Enqueue(context.Background(), 7, "https://x/img/p.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueLeavesExhaustedItemAlone(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	// retry_count at the bound: no reset to pending, the item waits for
	// the cleanup sweep.
	mock.ExpectQuery(`SELECT id, status, retry_count FROM image_queue`).
		WithArgs(int64(7), "https://x/img/p.jpg").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "retry_count"}).
			AddRow(int64(42), "failed", 3))

	id, err := s.Enqueue(context.Background(), 7, "https://x/img/p.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDueOrdersAndBoundsSelection(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, dish_id, image_url, status, priority, retry_count`).
		WithArgs(3, 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "dish_id", "image_url", "status", "priority", "retry_count", "created_at", "updated_at",
		}).
			AddRow(int64(1), int64(7), "https://x/a.jpg", menu.StatusPending, 1, 0, now, now).
			AddRow(int64(2), int64(8), "https://x/b.jpg", menu.StatusFailed, 1, 2, now, now))

	items, err := s.Due(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, menu.StatusPending, items[0].Status)
	require.Equal(t, menu.StatusFailed, items[1].Status)
	require.Equal(t, 2, items[1].RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedBurnsOneRetry(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE image_queue`).
		WithArgs("failed", int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkFailed(context.Background(), 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	for _, status := range []string{"downloading", "completed", "skipped"} {
		mock.ExpectExec(`UPDATE image_queue SET status`).
			WithArgs(status, int64(42)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	ctx := context.Background()
	require.NoError(t, s.MarkDownloading(ctx, 42))
	require.NoError(t, s.MarkCompleted(ctx, 42))
	require.NoError(t, s.MarkSkipped(ctx, 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupSweepsExpiredItems(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectExec(`DELETE FROM image_queue`).
		WithArgs(testNow.Add(-24*time.Hour), 3).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	removed, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM image_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("completed", 5).
			AddRow("failed", 1))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, menu.QueueStats{
		Total:     9,
		Pending:   3,
		Completed: 5,
		Failed:    1,
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClear(t *testing.T) {
	t.Parallel()

	s, mock := newTestStore(t)

	mock.ExpectExec(`DELETE FROM image_queue`).
		WillReturnResult(pgxmock.NewResult("DELETE", 9))

	removed, err := s.Clear(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(9), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
