// Package dispatch runs side effects off the request path.
//
// Fire-and-forget tasks are executed once from an in-memory queue. Retriable
// tasks are persisted through a repository.TaskRepository and leased by
// pollers, so the attempt counter survives worker crashes and the next delay
// is always derived from the stored count. Periodic jobs run through Scheduler.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/repository"
)

// Class selects the delivery semantics of a task kind.
type Class int

const (
	// FireAndForget tasks get one attempt; failures are logged only.
	FireAndForget Class = iota
	// Retriable tasks are persisted and retried with exponential backoff.
	Retriable
)

func (c Class) String() string {
	if c == Retriable {
		return "retriable"
	}
	return "fire_and_forget"
}

// Handler executes one task. Handlers must tolerate duplicate execution.
// Return errs.Permanent(err) to skip the remaining retries.
type Handler func(ctx context.Context, payload []byte) error

// Spec registers a task kind.
type Spec struct {
	Class      Class
	MaxRetries int // retriable only; 0 uses Config.MaxRetries
	Handler    Handler
}

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers        int
	QueueSize      int
	BacklogSize    int
	BatchSize      int
	PollInterval   time.Duration
	LeaseTTL       time.Duration
	BaseDelay      time.Duration
	MaxRetries     int
	EnqueueTimeout time.Duration
	TaskTimeout    time.Duration
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.BacklogSize <= 0 {
		c.BacklogSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 500 * time.Millisecond
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 20 * time.Second
	}
}

// Dispatcher owns the queue, the backlog and the worker pool.
type Dispatcher struct {
	repo  repository.TaskRepository
	cfg   Config
	log   *zap.Logger
	owner string

	mu    sync.RWMutex
	specs map[string]Spec

	queue   chan model.Task
	work    chan model.Task
	backlog *backlog

	now       func() time.Time
	submitted atomic.Int64
	failed    atomic.Int64
}

// New constructs a Dispatcher. Register task kinds before calling Run.
func New(repo repository.TaskRepository, cfg Config, log *zap.Logger) *Dispatcher {
	cfg.withDefaults()
	host, _ := os.Hostname()
	return &Dispatcher{
		repo:    repo,
		cfg:     cfg,
		log:     log.Named("dispatch"),
		owner:   fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.Must(uuid.NewV4()).String()[:8]),
		specs:   make(map[string]Spec),
		queue:   make(chan model.Task, cfg.QueueSize),
		work:    make(chan model.Task),
		backlog: newBacklog(cfg.BacklogSize),
		now:     time.Now,
	}
}

// Register binds a task kind to its handler and class.
func (d *Dispatcher) Register(kind string, spec Spec) {
	if spec.Class == Retriable && spec.MaxRetries <= 0 {
		spec.MaxRetries = d.cfg.MaxRetries
	}
	d.mu.Lock()
	d.specs[kind] = spec
	d.mu.Unlock()
}

func (d *Dispatcher) lookup(kind string) (Spec, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.specs[kind]
	return s, ok
}

// Submit hands a task to the dispatcher without blocking. When the queue is
// full the task is kept in the local backlog and ErrDispatchUnavailable is
// returned; the caller logs it and carries on.
func (d *Dispatcher) Submit(kind string, payload any) error {
	spec, ok := d.lookup(kind)
	if !ok {
		return fmt.Errorf("dispatch: unknown task kind %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: encode %s: %w", kind, err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	t := model.Task{
		ID:            id,
		Kind:          kind,
		Payload:       raw,
		Status:        model.TaskPending,
		MaxAttempts:   spec.MaxRetries,
		NextAttemptAt: d.now(),
		CreatedAt:     d.now(),
	}
	d.submitted.Add(1)

	select {
	case d.queue <- t:
		return nil
	default:
		d.park(t)
		return errs.ErrDispatchUnavailable
	}
}

func (d *Dispatcher) park(t model.Task) {
	if dropped, ok := d.backlog.push(t); ok {
		d.log.Error("backlog full, dropped oldest task",
			zap.String("task_id", dropped.ID.String()),
			zap.String("kind", dropped.Kind),
		)
	}
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Submitted int64
	Failed    int64 // fire-and-forget failures plus dead-lettered tasks
	Queued    int
	Backlog   int
	Dropped   int64
}

// Stats reports queue depths and counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Failed:    d.failed.Load(),
		Queued:    len(d.queue),
		Backlog:   d.backlog.len(),
		Dropped:   d.backlog.droppedCount(),
	}
}

// DeadLetters lists dead-lettered tasks for inspection.
func (d *Dispatcher) DeadLetters(ctx context.Context, limit, offset int) ([]model.Task, error) {
	return d.repo.ListDead(ctx, limit, offset)
}

// Requeue gives a dead-lettered task a fresh attempt budget.
func (d *Dispatcher) Requeue(ctx context.Context, id uuid.UUID) error {
	return d.repo.Requeue(ctx, id, d.now())
}
