package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by every server process.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing max attempts per window.
func NewPG(pool *pgxpool.Pool, window time.Duration, max int) *PG {
	return NewPGWithQuerier(pool, window, max)
}

// NewPGWithQuerier constructs the limiter over any querier (tests pass a fake).
func NewPGWithQuerier(q pgxQuerier, window time.Duration, max int) *PG {
	if max < 1 {
		max = 1
	}
	return &PG{pool: q, window: window, max: max}
}

// Allow increments the counter, restarting the window when it has elapsed.
func (l *PG) Allow(ctx context.Context, senderID, channel string) (bool, error) {
	const q = `
INSERT INTO notify_throttle (sender_id, channel, hits, window_start)
VALUES ($1,$2,1,now())
ON CONFLICT (sender_id, channel) DO UPDATE
SET
  hits = CASE WHEN now() - notify_throttle.window_start > $3::interval THEN 1 ELSE notify_throttle.hits + 1 END,
  window_start = CASE WHEN now() - notify_throttle.window_start > $3::interval THEN now() ELSE notify_throttle.window_start END
RETURNING hits`
	var hits int
	if err := l.pool.QueryRow(ctx, q, senderID, channel, l.window).Scan(&hits); err != nil {
		return false, err
	}
	return hits <= l.max, nil
}

// Reset drops the counter for (sender, channel).
func (l *PG) Reset(ctx context.Context, senderID, channel string) error {
	const q = `DELETE FROM notify_throttle WHERE sender_id=$1 AND channel=$2`
	_, err := l.pool.Exec(ctx, q, senderID, channel)
	return err
}
