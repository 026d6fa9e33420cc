package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

var taskColumns = []string{"id", "kind", "payload", "status", "attempts", "max_attempts", "next_attempt_at", "last_error", "created_at", "updated_at"}

func TestTaskRepo_Enqueue(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	id := uuid.Must(uuid.NewV4())
	at := time.Now()
	mock.ExpectExec(`INSERT INTO dispatch_tasks`).
		WithArgs(id, "webhook.deliver", "{}", 0, 5, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.Enqueue(context.Background(), model.Task{ID: id, Kind: "webhook.deliver", MaxAttempts: 5, NextAttemptAt: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Lease(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`UPDATE dispatch_tasks\s+SET attempts = attempts \+ CASE WHEN status='started' THEN 1 ELSE 0 END.*FOR UPDATE SKIP LOCKED`).
		WithArgs("worker-1", now.Add(30*time.Second), now, 8).
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow(id, "stream.decision", []byte(`{"x":1}`), "started", 2, 3, now, "boom", now, now))

	got, err := r.Lease(context.Background(), "worker-1", now, 30*time.Second, 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.TaskStarted, got[0].Status)
	require.Equal(t, 2, got[0].Attempts)
	require.JSONEq(t, `{"x":1}`, string(got[0].Payload))
}

func TestTaskRepo_MarkTransitions_GuardedByLease(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	id := uuid.Must(uuid.NewV4())
	next := time.Now().Add(time.Minute)

	mock.ExpectExec(`SET status='pending', attempts=attempts\+1`).
		WithArgs(id, "w", next, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status='dead', attempts=LEAST\(attempts\+1, max_attempts\)`).
		WithArgs(id, "w", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status='dead', attempts=LEAST\(attempts\+1, max_attempts\)`).
		WithArgs(id, "w", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`SET status='succeeded'`).
		WithArgs(id, "other").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, r.MarkRetry(ctx, id, "w", next, "boom"))
	require.NoError(t, r.MarkDead(ctx, id, "w", "boom"))
	require.ErrorIs(t, r.MarkDead(ctx, id, "w", "boom"), errs.ErrLeaseLost)
	require.ErrorIs(t, r.MarkSucceeded(ctx, id, "other"), errs.ErrLeaseLost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_ListDeadAndRequeue(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`WHERE status='dead'\s+ORDER BY finished_at DESC`).
		WithArgs(int64(50), int64(0)).
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow(id, "webhook.deliver", []byte(`{}`), "dead", 5, 5, now, "status 500", now, now))
	mock.ExpectExec(`SET status='pending', attempts=0`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status='pending', attempts=0`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dead, err := r.ListDead(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, model.TaskDead, dead[0].Status)

	require.NoError(t, r.Requeue(context.Background(), id, now))
	require.ErrorIs(t, r.Requeue(context.Background(), id, now), errs.ErrNotFound)
}
