package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

const settleTimeout = 5 * time.Second

// Run starts the workers and the poller and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started",
		zap.String("owner", d.owner),
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll", d.cfg.PollInterval),
	)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.pollLoop(ctx)
	}()
	wg.Wait()

	d.drain(ctx)
	st := d.Stats()
	fields := []zap.Field{
		zap.Int("queued_unprocessed", st.Queued),
		zap.Int("backlog_unflushed", st.Backlog),
	}
	if st.Backlog > 0 {
		d.log.Error("dispatcher stopped with unpersisted tasks", fields...)
		return nil
	}
	d.log.Info("dispatcher stopped", fields...)
	return nil
}

// drain empties the queue after the workers stopped. Retriable tasks are
// persisted so another process picks them up; fire-and-forget tasks are
// dropped with a log line.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case t := <-d.queue:
			spec, ok := d.lookup(t.Kind)
			if !ok || spec.Class == FireAndForget {
				d.failed.Add(1)
				d.log.Warn("fire-and-forget task dropped at shutdown",
					zap.String("kind", t.Kind),
					zap.String("task_id", t.ID.String()),
				)
				continue
			}
			if err := d.persist(ctx, t); err != nil {
				d.log.Warn("persist task at shutdown failed", zap.String("task_id", t.ID.String()), zap.Error(err))
				d.park(t)
			}
		default:
			if d.backlog.len() > 0 {
				d.flushBacklog(ctx)
			}
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			d.accept(ctx, t)
		case t := <-d.work:
			d.execute(ctx, t)
		}
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.flushBacklog(ctx)
			for _, t := range d.leaseDue(ctx) {
				select {
				case d.work <- t:
				case <-ctx.Done():
					// lease expires and another poller picks it up
					return
				}
			}
		}
	}
}

// accept runs a fire-and-forget task or persists a retriable one.
func (d *Dispatcher) accept(ctx context.Context, t model.Task) {
	spec, ok := d.lookup(t.Kind)
	if !ok {
		d.log.Error("unknown task kind", zap.String("kind", t.Kind))
		return
	}
	if spec.Class == FireAndForget {
		if err := d.invoke(ctx, spec.Handler, t); err != nil {
			d.failed.Add(1)
			d.log.Warn("fire-and-forget task failed",
				zap.String("kind", t.Kind),
				zap.String("task_id", t.ID.String()),
				zap.Error(err),
			)
		}
		return
	}
	if err := d.persist(ctx, t); err != nil {
		d.log.Warn("persist task failed, kept in backlog",
			zap.String("kind", t.Kind),
			zap.String("task_id", t.ID.String()),
			zap.Error(err),
		)
		d.park(t)
	}
}

func (d *Dispatcher) persist(ctx context.Context, t model.Task) error {
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.EnqueueTimeout)
	defer cancel()
	return d.repo.Enqueue(ectx, t)
}

// flushBacklog retries parked tasks in FIFO order and stops at the first failure.
func (d *Dispatcher) flushBacklog(ctx context.Context) {
	items := d.backlog.drain()
	for i, t := range items {
		spec, ok := d.lookup(t.Kind)
		if !ok {
			continue
		}
		var err error
		if spec.Class == Retriable {
			err = d.persist(ctx, t)
		} else {
			select {
			case d.queue <- t:
			default:
				err = errs.ErrDispatchUnavailable
			}
		}
		if err != nil {
			d.backlog.pushFront(items[i:])
			return
		}
	}
	if len(items) > 0 {
		d.log.Info("backlog flushed", zap.Int("tasks", len(items)))
	}
}

// leaseDue claims due retriable tasks for this owner.
func (d *Dispatcher) leaseDue(ctx context.Context) []model.Task {
	tasks, err := d.repo.Lease(ctx, d.owner, d.now(), d.cfg.LeaseTTL, d.cfg.BatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.log.Warn("lease tasks failed", zap.Error(err))
		}
		return nil
	}
	return tasks
}

// execute runs a leased retriable task and records the outcome.
func (d *Dispatcher) execute(ctx context.Context, t model.Task) {
	spec, ok := d.lookup(t.Kind)
	var runErr error
	switch {
	case !ok:
		runErr = errs.Permanent(fmt.Errorf("no handler for kind %q", t.Kind))
	case t.Attempts >= t.MaxAttempts:
		// every attempt died with its worker
		runErr = errs.Permanent(errors.New("attempts exhausted by expired leases"))
	default:
		runErr = d.invoke(ctx, spec.Handler, t)
	}
	d.settle(ctx, t, runErr)
}

// settle applies the state machine transition for one finished attempt.
func (d *Dispatcher) settle(ctx context.Context, t model.Task, runErr error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("kind", t.Kind),
		zap.String("task_id", t.ID.String()),
		zap.Int("attempt", t.Attempts+1),
		zap.Int("max_attempts", t.MaxAttempts),
	}

	var err error
	switch {
	case runErr == nil:
		err = d.repo.MarkSucceeded(sctx, t.ID, d.owner)
	case errs.IsPermanent(runErr) || t.Attempts+1 >= t.MaxAttempts:
		d.failed.Add(1)
		d.log.Error("task dead-lettered", append(fields, zap.Error(runErr))...)
		err = d.repo.MarkDead(sctx, t.ID, d.owner, runErr.Error())
	default:
		delay := Backoff(d.cfg.BaseDelay, t.Attempts)
		d.log.Warn("task failed, retry scheduled", append(fields, zap.Duration("delay", delay), zap.Error(runErr))...)
		err = d.repo.MarkRetry(sctx, t.ID, d.owner, d.now().Add(delay), runErr.Error())
	}
	if err != nil {
		d.log.Warn("record task outcome failed", append(fields, zap.Error(err))...)
	}
}

// invoke calls the handler with a timeout and turns panics into errors.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, t model.Task) (err error) {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(hctx, t.Payload)
}
