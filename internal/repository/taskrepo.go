package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sendergate/internal/model"
)

// TaskRepository persists retriable dispatch tasks and their attempt counters.
type TaskRepository interface {
	// Enqueue stores a new pending task.
	Enqueue(ctx context.Context, t model.Task) error

	// Lease claims up to limit due tasks for owner until now+ttl. Tasks whose
	// previous lease expired are claimable again.
	Lease(ctx context.Context, owner string, now time.Time, ttl time.Duration, limit int) ([]model.Task, error)

	// MarkSucceeded finishes a leased task. errs.ErrLeaseLost if owner no longer holds it.
	MarkSucceeded(ctx context.Context, id uuid.UUID, owner string) error

	// MarkRetry records a failed attempt and reschedules the task at next.
	MarkRetry(ctx context.Context, id uuid.UUID, owner string, next time.Time, lastErr string) error

	// MarkDead records the final failed attempt and moves the task to dead-letter.
	MarkDead(ctx context.Context, id uuid.UUID, owner string, lastErr string) error

	// ListDead returns dead-lettered tasks, most recently failed first.
	ListDead(ctx context.Context, limit, offset int) ([]model.Task, error)

	// Requeue moves a dead task back to pending with a fresh attempt budget.
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) error
}
