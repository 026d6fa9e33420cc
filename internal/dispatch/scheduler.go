package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/lease"
)

// Schedule yields the next run time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Every fires on multiples of the interval (hourly jobs run on the hour).
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	d := time.Duration(e)
	return after.Truncate(d).Add(d)
}

// DailyAt fires once per day at Hour:Minute in Loc (UTC when nil).
type DailyAt struct {
	Hour, Minute int
	Loc          *time.Location
}

func (s DailyAt) Next(after time.Time) time.Time {
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, loc)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Job is a periodic task guarded by a lease named after it.
type Job struct {
	Name     string
	Schedule Schedule
	// LeaseTTL must exceed the job runtime and stay below the schedule period.
	LeaseTTL time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their schedules. Any number of processes may run the
// same jobs; the lease lets one of them execute each tick.
type Scheduler struct {
	locker lease.Locker
	log    *zap.Logger
	jobs   []Job
	now    func() time.Time
}

// NewScheduler constructs a Scheduler.
func NewScheduler(locker lease.Locker, log *zap.Logger) *Scheduler {
	return &Scheduler{locker: locker, log: log.Named("scheduler"), now: time.Now}
}

// Add registers a job. Call before Run.
func (s *Scheduler) Add(j Job) { s.jobs = append(s.jobs, j) }

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for {
		next := j.Schedule.Next(s.now())
		s.log.Debug("job scheduled", zap.String("job", j.Name), zap.Time("at", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_, _ = s.RunOnce(ctx, j)
		}
	}
}

// RunOnce executes j if its lease is free. On success the lease is kept until
// it expires, so other processes firing on the same tick skip it; on failure
// it is released so another process may try.
func (s *Scheduler) RunOnce(ctx context.Context, j Job) (bool, error) {
	release, ok, err := s.locker.TryAcquire(ctx, "job:"+j.Name, j.LeaseTTL)
	if err != nil {
		s.log.Warn("job lease failed", zap.String("job", j.Name), zap.Error(err))
		return false, err
	}
	if !ok {
		s.log.Debug("job skipped, lease held elsewhere", zap.String("job", j.Name))
		return false, nil
	}

	start := s.now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.Name), zap.Error(err))
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if rerr := release(rctx); rerr != nil {
			s.log.Warn("job lease release failed", zap.String("job", j.Name), zap.Error(rerr))
		}
		return true, err
	}
	s.log.Info("job finished", zap.String("job", j.Name), zap.Duration("dur", s.now().Sub(start)))
	return true, nil
}
