package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/repository"
)

type storedTask struct {
	model.Task
	owner        string
	leaseExpires time.Time
}

// memTaskRepo mirrors the Postgres lease semantics in memory.
type memTaskRepo struct {
	mu        sync.Mutex
	tasks     map[uuid.UUID]*storedTask
	enqErr    error
	deadMarks int
}

var _ repository.TaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo() *memTaskRepo { return &memTaskRepo{tasks: map[uuid.UUID]*storedTask{}} }

func (r *memTaskRepo) Enqueue(_ context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqErr != nil {
		return r.enqErr
	}
	if _, ok := r.tasks[t.ID]; ok {
		return nil
	}
	t.Status = model.TaskPending
	r.tasks[t.ID] = &storedTask{Task: t}
	return nil
}

func (r *memTaskRepo) Lease(_ context.Context, owner string, now time.Time, ttl time.Duration, limit int) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*storedTask
	for _, t := range r.tasks {
		pending := t.Status == model.TaskPending && !t.NextAttemptAt.After(now)
		expired := t.Status == model.TaskStarted && !t.leaseExpires.After(now)
		if pending || expired {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]model.Task, 0, len(due))
	for _, t := range due {
		if t.Status == model.TaskStarted {
			t.Attempts++
			t.LastError = "lease expired"
		}
		t.Status = model.TaskStarted
		t.owner = owner
		t.leaseExpires = now.Add(ttl)
		out = append(out, t.Task)
	}
	return out, nil
}

func (r *memTaskRepo) held(id uuid.UUID, owner string) (*storedTask, error) {
	t, ok := r.tasks[id]
	if !ok || t.Status != model.TaskStarted || t.owner != owner {
		return nil, errs.ErrLeaseLost
	}
	return t, nil
}

func (r *memTaskRepo) MarkSucceeded(_ context.Context, id uuid.UUID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.held(id, owner)
	if err != nil {
		return err
	}
	t.Status, t.owner = model.TaskSucceeded, ""
	return nil
}

func (r *memTaskRepo) MarkRetry(_ context.Context, id uuid.UUID, owner string, next time.Time, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.held(id, owner)
	if err != nil {
		return err
	}
	t.Status, t.owner = model.TaskPending, ""
	t.Attempts++
	t.NextAttemptAt, t.LastError = next, lastErr
	return nil
}

func (r *memTaskRepo) MarkDead(_ context.Context, id uuid.UUID, owner string, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.held(id, owner)
	if err != nil {
		return err
	}
	t.Status, t.owner = model.TaskDead, ""
	t.Attempts = min(t.Attempts+1, t.MaxAttempts)
	t.LastError = lastErr
	r.deadMarks++
	return nil
}

func (r *memTaskRepo) ListDead(context.Context, int, int) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskDead {
			out = append(out, t.Task)
		}
	}
	return out, nil
}

func (r *memTaskRepo) Requeue(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != model.TaskDead {
		return errs.ErrNotFound
	}
	t.Status, t.Attempts, t.NextAttemptAt, t.LastError = model.TaskPending, 0, now, ""
	return nil
}

func (r *memTaskRepo) get(id uuid.UUID) model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id].Task
}

func (r *memTaskRepo) only() model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		return t.Task
	}
	return model.Task{}
}

func (r *memTaskRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

var errBoom = errors.New("boom")
