package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

// TaskRepo persists retriable dispatch tasks. Leases use FOR UPDATE SKIP LOCKED so
// several dispatcher processes can poll the same table.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a TaskRepo.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskCols = `id, kind, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at`

func scanTask(row scanner) (model.Task, error) {
	var (
		t       model.Task
		status  string
		payload []byte
	)
	err := row.Scan(&t.ID, &t.Kind, &payload, &status, &t.Attempts, &t.MaxAttempts,
		&t.NextAttemptAt, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	t.Status = model.TaskStatus(status)
	t.Payload = payload
	return t, err
}

// Enqueue stores a pending task.
func (r *TaskRepo) Enqueue(ctx context.Context, t model.Task) error {
	const q = `
INSERT INTO dispatch_tasks (id, kind, payload, status, attempts, max_attempts, next_attempt_at)
VALUES ($1,$2,$3,'pending',$4,$5,$6)`
	payload := string(t.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.Kind, payload, t.Attempts, t.MaxAttempts, t.NextAttemptAt)
	if isUniqueViolation(err) {
		// already persisted by an earlier flush
		return nil
	}
	return err
}

// Lease claims due pending tasks and tasks whose lease has expired. An expired
// lease means the previous holder died mid-attempt, so that attempt is counted.
func (r *TaskRepo) Lease(ctx context.Context, owner string, now time.Time, ttl time.Duration, limit int) ([]model.Task, error) {
	const q = `
UPDATE dispatch_tasks
SET attempts = attempts + CASE WHEN status='started' THEN 1 ELSE 0 END,
    last_error = CASE WHEN status='started' THEN 'lease expired' ELSE last_error END,
    status='started', lease_owner=$1, lease_expires_at=$2, updated_at=now()
WHERE id IN (
    SELECT id FROM dispatch_tasks
    WHERE (status='pending' AND next_attempt_at <= $3)
       OR (status='started' AND lease_expires_at <= $3)
    ORDER BY next_attempt_at, created_at
    LIMIT $4
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskCols
	rows, err := r.db.Pool.Query(ctx, q, owner, now.Add(ttl), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkSucceeded moves a leased task to succeeded.
func (r *TaskRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, owner string) error {
	const q = `
UPDATE dispatch_tasks
SET status='succeeded', lease_owner=NULL, lease_expires_at=NULL, finished_at=now(), updated_at=now()
WHERE id=$1 AND status='started' AND lease_owner=$2`
	return r.guarded(ctx, q, id, owner)
}

// MarkRetry counts the failed attempt and puts the task back to pending.
func (r *TaskRepo) MarkRetry(ctx context.Context, id uuid.UUID, owner string, next time.Time, lastErr string) error {
	const q = `
UPDATE dispatch_tasks
SET status='pending', attempts=attempts+1, next_attempt_at=$3, last_error=$4,
    lease_owner=NULL, lease_expires_at=NULL, updated_at=now()
WHERE id=$1 AND status='started' AND lease_owner=$2`
	return r.guarded(ctx, q, id, owner, next, lastErr)
}

// MarkDead counts the final attempt and dead-letters the task.
func (r *TaskRepo) MarkDead(ctx context.Context, id uuid.UUID, owner string, lastErr string) error {
	const q = `
UPDATE dispatch_tasks
SET status='dead', attempts=LEAST(attempts+1, max_attempts), last_error=$3,
    lease_owner=NULL, lease_expires_at=NULL, finished_at=now(), updated_at=now()
WHERE id=$1 AND status='started' AND lease_owner=$2`
	return r.guarded(ctx, q, id, owner, lastErr)
}

func (r *TaskRepo) guarded(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrLeaseLost
	}
	return nil
}

// ListDead pages through dead-lettered tasks.
func (r *TaskRepo) ListDead(ctx context.Context, limit, offset int) ([]model.Task, error) {
	lim, off := pageBounds(limit, offset, 50, 500)
	const q = `
SELECT ` + taskCols + `
FROM dispatch_tasks
WHERE status='dead'
ORDER BY finished_at DESC, id
LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, q, int64(lim), int64(off))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Requeue resets a dead task so it runs again with a full attempt budget.
func (r *TaskRepo) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	const q = `
UPDATE dispatch_tasks
SET status='pending', attempts=0, next_attempt_at=$2, last_error='', finished_at=NULL, updated_at=now()
WHERE id=$1 AND status='dead'`
	tag, err := r.db.Pool.Exec(ctx, q, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
